package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicgrid/civicgrid-api/internal/service"
	"github.com/civicgrid/civicgrid-api/pkg/response"
)

// AnalyticsHandler serves the dashboard aggregates.
type AnalyticsHandler struct {
	service *service.AnalyticsService
}

// NewAnalyticsHandler creates a new handler.
func NewAnalyticsHandler(svc *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: svc}
}

// Issues godoc
// @Summary Issue analytics
// @Description Aggregated issue counts by category and status
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /analytics/issues [get]
func (h *AnalyticsHandler) Issues(c *gin.Context) {
	analytics, err := h.service.IssueAnalytics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil)
}

// System godoc
// @Summary System metrics snapshot
// @Description Lightweight runtime metrics for the admin dashboard
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.SystemMetrics(), nil)
}
