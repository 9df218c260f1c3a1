package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelhub/review-api/internal/dto"
	"github.com/reelhub/review-api/internal/middleware"
	"github.com/reelhub/review-api/internal/models"
	appErrors "github.com/reelhub/review-api/pkg/errors"
	"github.com/reelhub/review-api/pkg/response"
)

type feedbackService interface {
	CreateFeedback(ctx context.Context, actor *models.JWTClaims, submissionID string, req dto.CreateFeedbackRequest) (*models.Feedback, error)
	ListFeedback(ctx context.Context, actor *models.JWTClaims, submissionID string) ([]models.Feedback, error)
	UpdateFeedback(ctx context.Context, actor *models.JWTClaims, feedbackID string, req dto.UpdateFeedbackRequest) (*models.Feedback, error)
	DeleteFeedback(ctx context.Context, actor *models.JWTClaims, feedbackID string) error
}

// FeedbackHandler exposes reviewer feedback endpoints.
type FeedbackHandler struct {
	service feedbackService
}

// NewFeedbackHandler builds a new handler.
func NewFeedbackHandler(service feedbackService) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

// Register mounts the feedback routes on an authenticated group.
func (h *FeedbackHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/submissions/:id/feedbacks", h.List)
	rg.POST("/submissions/:id/feedbacks", h.Create)
	rg.PATCH("/feedbacks/:id", h.Update)
	rg.DELETE("/feedbacks/:id", h.Delete)
}

// Create godoc
// @Summary Leave feedback on a submission
// @Tags Feedback
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.CreateFeedbackRequest true "Feedback"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/feedbacks [post]
func (h *FeedbackHandler) Create(c *gin.Context) {
	var req dto.CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid feedback payload"))
		return
	}
	feedback, err := h.service.CreateFeedback(c.Request.Context(), middleware.Claims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, feedback)
}

// List godoc
// @Summary List feedback of a submission
// @Tags Feedback
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/feedbacks [get]
func (h *FeedbackHandler) List(c *gin.Context) {
	items, err := h.service.ListFeedback(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []models.Feedback{}
	}
	response.OK(c, items)
}

// Update godoc
// @Summary Edit feedback content or anchors
// @Tags Feedback
// @Accept json
// @Produce json
// @Param id path string true "Feedback ID"
// @Param payload body dto.UpdateFeedbackRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /feedbacks/{id} [patch]
func (h *FeedbackHandler) Update(c *gin.Context) {
	var req dto.UpdateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid feedback payload"))
		return
	}
	feedback, err := h.service.UpdateFeedback(c.Request.Context(), middleware.Claims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, feedback)
}

// Delete godoc
// @Summary Delete feedback
// @Tags Feedback
// @Param id path string true "Feedback ID"
// @Success 204
// @Router /feedbacks/{id} [delete]
func (h *FeedbackHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteFeedback(c.Request.Context(), middleware.Claims(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
