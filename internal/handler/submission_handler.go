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

type submissionService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateSubmissionRequest) (*models.Submission, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SubmissionDetail, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.SubmissionQuery) ([]models.Submission, *models.Pagination, error)
	Approve(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReviewDecisionRequest) (*models.Submission, error)
	Reject(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReviewDecisionRequest) (*models.Submission, error)
	CancelReview(ctx context.Context, actor *models.JWTClaims, id string) (*models.Submission, error)
	RequestRevision(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReviewDecisionRequest) (*models.Submission, error)
	Bump(ctx context.Context, actor *models.JWTClaims, id string, req dto.BumpSubmissionRequest) (*models.Submission, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
}

// SubmissionHandler exposes the submission review workflow.
type SubmissionHandler struct {
	service submissionService
}

// NewSubmissionHandler builds a new handler.
func NewSubmissionHandler(service submissionService) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

// Register mounts the submission routes on an authenticated group.
func (h *SubmissionHandler) Register(rg *gin.RouterGroup) {
	g := rg.Group("/submissions")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/bump", h.Bump)

	staff := middleware.RequireStaff()
	g.POST("/:id/approve", staff, h.Approve)
	g.POST("/:id/reject", staff, h.Reject)
	g.POST("/:id/cancel-review", staff, h.CancelReview)
	g.POST("/:id/request-revision", staff, h.RequestRevision)
}

// Create godoc
// @Summary Register an uploaded video as a new submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubmissionRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	submission, err := h.service.Create(c.Request.Context(), middleware.Claims(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param assignmentId query string false "Assignment filter"
// @Param workerId query string false "Worker filter (staff only)"
// @Param status query []string false "Status filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	var query dto.SubmissionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), middleware.Claims(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a submission with its version chain
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Delete godoc
// @Summary Delete a pending submission
// @Tags Submissions
// @Param id path string true "Submission ID"
// @Success 204
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), middleware.Claims(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Bump godoc
// @Summary Upload a new version of a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID (any version of the chain)"
// @Param payload body dto.BumpSubmissionRequest true "New version"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/bump [post]
func (h *SubmissionHandler) Bump(c *gin.Context) {
	var req dto.BumpSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bump payload"))
		return
	}
	submission, err := h.service.Bump(c.Request.Context(), middleware.Claims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// Approve godoc
// @Summary Approve a submission and publish its video
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ReviewDecisionRequest false "Optional summary"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/approve [post]
func (h *SubmissionHandler) Approve(c *gin.Context) {
	h.decide(c, h.service.Approve)
}

// Reject godoc
// @Summary Reject a submission
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ReviewDecisionRequest false "Optional reason"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/reject [post]
func (h *SubmissionHandler) Reject(c *gin.Context) {
	h.decide(c, h.service.Reject)
}

// RequestRevision godoc
// @Summary Ask the worker for a new version of a rejected submission
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ReviewDecisionRequest false "Optional note"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/request-revision [post]
func (h *SubmissionHandler) RequestRevision(c *gin.Context) {
	h.decide(c, h.service.RequestRevision)
}

// CancelReview godoc
// @Summary Undo an approve or reject decision
// @Tags Review
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/cancel-review [post]
func (h *SubmissionHandler) CancelReview(c *gin.Context) {
	submission, err := h.service.CancelReview(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, submission)
}

type decisionFunc func(ctx context.Context, actor *models.JWTClaims, id string, req dto.ReviewDecisionRequest) (*models.Submission, error)

// decide binds the optional decision body; an empty body is allowed.
func (h *SubmissionHandler) decide(c *gin.Context, fn decisionFunc) {
	var req dto.ReviewDecisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
			return
		}
	}
	submission, err := fn(c.Request.Context(), middleware.Claims(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, submission)
}
