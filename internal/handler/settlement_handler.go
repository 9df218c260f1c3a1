package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reelhub/review-api/internal/dto"
	"github.com/reelhub/review-api/internal/middleware"
	"github.com/reelhub/review-api/internal/models"
	"github.com/reelhub/review-api/internal/service"
	appErrors "github.com/reelhub/review-api/pkg/errors"
	"github.com/reelhub/review-api/pkg/response"
)

type settlementService interface {
	Generate(ctx context.Context, actor *models.JWTClaims, year, month int) ([]models.SettlementSummary, error)
	Regenerate(ctx context.Context, actor *models.JWTClaims, year, month int) (*models.RegenerationReport, error)
	ListByPeriod(ctx context.Context, actor *models.JWTClaims, year, month int) ([]models.Settlement, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.SettlementDetail, error)
	Confirm(ctx context.Context, actor *models.JWTClaims, id string) (*models.Settlement, error)
	Complete(ctx context.Context, actor *models.JWTClaims, id string) (*models.Settlement, error)
	AdjustItem(ctx context.Context, actor *models.JWTClaims, itemID string, amount *int64) (*models.SettlementItem, error)
}

type statementRenderer interface {
	Render(ctx context.Context, actor *models.JWTClaims, id, format string) (*service.Statement, error)
}

// SettlementHandler exposes monthly settlement generation and payout tracking.
type SettlementHandler struct {
	service    settlementService
	statements statementRenderer
}

// NewSettlementHandler builds a new handler.
func NewSettlementHandler(service settlementService, statements statementRenderer) *SettlementHandler {
	return &SettlementHandler{service: service, statements: statements}
}

// Register mounts the settlement routes on an authenticated group.
func (h *SettlementHandler) Register(rg *gin.RouterGroup) {
	staff := middleware.RequireStaff()
	g := rg.Group("/settlements")
	g.POST("/generate", staff, h.Generate)
	g.POST("/regenerate", staff, h.Regenerate)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/confirm", staff, h.Confirm)
	g.POST("/:id/complete", staff, h.Complete)
	g.GET("/:id/statement", h.Statement)
	rg.PATCH("/settlement-items/:id", staff, h.AdjustItem)
}

// Generate godoc
// @Summary Generate settlements for a month
// @Tags Settlements
// @Accept json
// @Produce json
// @Param payload body dto.SettlementPeriodRequest true "Period"
// @Success 201 {object} response.Envelope
// @Router /settlements/generate [post]
func (h *SettlementHandler) Generate(c *gin.Context) {
	var req dto.SettlementPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid period payload"))
		return
	}
	summaries, err := h.service.Generate(c.Request.Context(), middleware.Claims(c), req.Year, req.Month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.GenerateSettlementsResponse{Year: req.Year, Month: req.Month, Settlements: summaries})
}

// Regenerate godoc
// @Summary Rebuild unconfirmed settlements of a month
// @Tags Settlements
// @Accept json
// @Produce json
// @Param payload body dto.SettlementPeriodRequest true "Period"
// @Success 200 {object} response.Envelope
// @Router /settlements/regenerate [post]
func (h *SettlementHandler) Regenerate(c *gin.Context) {
	var req dto.SettlementPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid period payload"))
		return
	}
	report, err := h.service.Regenerate(c.Request.Context(), middleware.Claims(c), req.Year, req.Month)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// List godoc
// @Summary List settlements of a month
// @Tags Settlements
// @Produce json
// @Param year query int true "Year"
// @Param month query int true "Month"
// @Success 200 {object} response.Envelope
// @Router /settlements [get]
func (h *SettlementHandler) List(c *gin.Context) {
	var req dto.SettlementPeriodRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.ListByPeriod(c.Request.Context(), middleware.Claims(c), req.Year, req.Month)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []models.Settlement{}
	}
	response.OK(c, items)
}

// Get godoc
// @Summary Get a settlement with items and tax breakdown
// @Tags Settlements
// @Produce json
// @Param id path string true "Settlement ID"
// @Success 200 {object} response.Envelope
// @Router /settlements/{id} [get]
func (h *SettlementHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, detail)
}

// Confirm godoc
// @Summary Confirm a pending settlement
// @Tags Settlements
// @Produce json
// @Param id path string true "Settlement ID"
// @Success 200 {object} response.Envelope
// @Router /settlements/{id}/confirm [post]
func (h *SettlementHandler) Confirm(c *gin.Context) {
	settlement, err := h.service.Confirm(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settlement)
}

// Complete godoc
// @Summary Mark a confirmed settlement as paid
// @Tags Settlements
// @Produce json
// @Param id path string true "Settlement ID"
// @Success 200 {object} response.Envelope
// @Router /settlements/{id}/complete [post]
func (h *SettlementHandler) Complete(c *gin.Context) {
	settlement, err := h.service.Complete(c.Request.Context(), middleware.Claims(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settlement)
}

// AdjustItem godoc
// @Summary Set or clear the manual amount of a settlement item
// @Tags Settlements
// @Accept json
// @Produce json
// @Param id path string true "Settlement item ID"
// @Param payload body dto.AdjustItemRequest true "Adjusted amount; null clears"
// @Success 200 {object} response.Envelope
// @Router /settlement-items/{id} [patch]
func (h *SettlementHandler) AdjustItem(c *gin.Context) {
	var req dto.AdjustItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid adjustment payload"))
		return
	}
	item, err := h.service.AdjustItem(c.Request.Context(), middleware.Claims(c), c.Param("id"), req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

// Statement godoc
// @Summary Download a settlement statement
// @Tags Settlements
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Settlement ID"
// @Param format query string false "pdf (default) or csv"
// @Success 200 {file} binary
// @Router /settlements/{id}/statement [get]
func (h *SettlementHandler) Statement(c *gin.Context) {
	if h.statements == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "statement renderer not configured"))
		return
	}
	statement, err := h.statements.Render(c.Request.Context(), middleware.Claims(c), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, statement.Filename, statement.ContentType, statement.Data)
}
