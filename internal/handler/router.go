package handler

import (
	"github.com/gin-gonic/gin"
)

// Routes groups every handler mounted by the API server.
type Routes struct {
	Health      *MetricsHandler
	Submissions *SubmissionHandler
	Feedback    *FeedbackHandler
	Analysis    *AnalysisHandler
	Pricing     *PricingHandler
	Settlements *SettlementHandler
}

// RegisterRoutes mounts health routes at the root and the API under prefix. The
// middleWares run before every API route, typically JWT authentication.
func RegisterRoutes(r *gin.Engine, prefix string, routes Routes, middleWares ...gin.HandlerFunc) {
	if routes.Health != nil {
		routes.Health.Register(r)
	}

	api := r.Group(prefix, middleWares...)
	if routes.Submissions != nil {
		routes.Submissions.Register(api)
	}
	if routes.Feedback != nil {
		routes.Feedback.Register(api)
	}
	if routes.Analysis != nil {
		routes.Analysis.Register(api)
	}
	if routes.Pricing != nil {
		routes.Pricing.Register(api)
	}
	if routes.Settlements != nil {
		routes.Settlements.Register(api)
	}
}
