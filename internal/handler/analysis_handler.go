package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelhub/review-api/internal/middleware"
	"github.com/reelhub/review-api/internal/models"
	"github.com/reelhub/review-api/pkg/response"
)

type analysisService interface {
	Trigger(ctx context.Context, actor *models.JWTClaims, submissionID string) (*models.AnalysisResult, error)
	GetResult(ctx context.Context, actor *models.JWTClaims, submissionID string) (*models.AnalysisResult, error)
}

// AnalysisHandler exposes the automatic video analysis.
type AnalysisHandler struct {
	service analysisService
}

// NewAnalysisHandler builds a new handler.
func NewAnalysisHandler(service analysisService) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

// Register mounts the analysis routes on an authenticated group.
func (h *AnalysisHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/submissions/:id/analysis", h.Trigger)
	rg.GET("/submissions/:id/analysis", h.Get)
}

// Trigger godoc
// @Summary Queue analysis of a submission
// @Description Returns 200 with the stored result when analysis already finished, 202 when a run was queued.
// @Tags Analysis
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /submissions/{id}/analysis [post]
func (h *AnalysisHandler) Trigger(c *gin.Context) {
	result, err := h.service.Trigger(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusAccepted
	if result.Status == models.AnalysisStatusDone {
		status = http.StatusOK
	}
	response.JSON(c, status, result, nil)
}

// Get godoc
// @Summary Get the analysis result of a submission
// @Tags Analysis
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/analysis [get]
func (h *AnalysisHandler) Get(c *gin.Context) {
	result, err := h.service.GetResult(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
