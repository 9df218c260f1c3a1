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

type pricingService interface {
	SetVideoRate(ctx context.Context, actor *models.JWTClaims, videoID string, req dto.SetRateRequest) error
	SetWorkerRate(ctx context.Context, actor *models.JWTClaims, workerID string, req dto.SetRateRequest) error
}

// PricingHandler exposes rate override management.
type PricingHandler struct {
	service pricingService
}

// NewPricingHandler builds a new handler.
func NewPricingHandler(service pricingService) *PricingHandler {
	return &PricingHandler{service: service}
}

// Register mounts the pricing routes on an authenticated group.
func (h *PricingHandler) Register(rg *gin.RouterGroup) {
	staff := middleware.RequireStaff()
	rg.PUT("/videos/:id/rate", staff, h.SetVideoRate)
	rg.PUT("/workers/:id/rate", staff, h.SetWorkerRate)
}

// SetVideoRate godoc
// @Summary Set or clear the per-video rate override
// @Tags Pricing
// @Accept json
// @Param id path string true "Video ID"
// @Param payload body dto.SetRateRequest true "Rate; null clears"
// @Success 204
// @Router /videos/{id}/rate [put]
func (h *PricingHandler) SetVideoRate(c *gin.Context) {
	h.set(c, h.service.SetVideoRate)
}

// SetWorkerRate godoc
// @Summary Set or clear a worker's personal rate
// @Tags Pricing
// @Accept json
// @Param id path string true "Worker ID"
// @Param payload body dto.SetRateRequest true "Rate; null clears"
// @Success 204
// @Router /workers/{id}/rate [put]
func (h *PricingHandler) SetWorkerRate(c *gin.Context) {
	h.set(c, h.service.SetWorkerRate)
}

func (h *PricingHandler) set(c *gin.Context, fn func(context.Context, *models.JWTClaims, string, dto.SetRateRequest) error) {
	var req dto.SetRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rate payload"))
		return
	}
	if err := fn(c.Request.Context(), middleware.Claims(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
