package handler

import (
	"strconv"
	"strings"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AnalyticsHandler serves the read-only portfolio views. Every view accepts a
// now parameter so historical snapshots can be reproduced.
type AnalyticsHandler struct {
	BaseHandler
	analytics *appledger.AnalyticsService
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(analytics *appledger.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{BaseHandler: newBaseHandler(logger), analytics: analytics}
}

// Summary returns portfolio totals
// GET /analytics/summary
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	now, ok := h.asOf(c)
	if !ok {
		return
	}
	summary, err := h.analytics.Summary(c.Request.Context(), actor.TenantID, now)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Trend returns cash received per calendar month
// GET /analytics/trend
func (h *AnalyticsHandler) Trend(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	now, ok := h.asOf(c)
	if !ok {
		return
	}
	months, ok := h.queryInt(c, "months")
	if !ok {
		return
	}
	trend, err := h.analytics.MonthlyTrend(c.Request.Context(), actor.TenantID, now, months)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, trend)
}

// TopDebtors ranks payers by overdue balance
// GET /analytics/top-debtors
func (h *AnalyticsHandler) TopDebtors(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	now, ok := h.asOf(c)
	if !ok {
		return
	}
	limit, ok := h.queryInt(c, "limit")
	if !ok {
		return
	}
	debtors, err := h.analytics.TopOverdueDebtors(c.Request.Context(), actor.TenantID, now, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, debtors)
}

// Aging groups overdue receivables by days overdue
// GET /analytics/aging
func (h *AnalyticsHandler) Aging(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	now, ok := h.asOf(c)
	if !ok {
		return
	}
	bounds, err := parseBuckets(c.Query("buckets"))
	if err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidInput, "buckets must be a comma separated list of day numbers")
		return
	}
	aging, err := h.analytics.Aging(c.Request.Context(), actor.TenantID, now, bounds)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, aging)
}

// Dashboard returns every view computed at the same instant
// GET /analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	now, ok := h.asOf(c)
	if !ok {
		return
	}
	dashboard, err := h.analytics.Dashboard(c.Request.Context(), actor.TenantID, now)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dashboard)
}

func parseBuckets(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	bounds := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		bounds = append(bounds, n)
	}
	return bounds, nil
}
