package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

const (
	// DefaultTrendMonths is the trailing window of the monthly trend
	DefaultTrendMonths = 6
	// DefaultTopDebtors is the number of debtors returned when no limit is given
	DefaultTopDebtors = 10
)

// AnalyticsService computes receivable KPIs over a tenant snapshot.
// It never writes.
type AnalyticsService struct {
	receivables ledger.ReceivableRepository
	payments    ledger.PaymentEventRepository
	trendMonths int
	topDebtors  int
}

// AnalyticsOption configures an AnalyticsService
type AnalyticsOption func(*AnalyticsService)

// WithTrendMonths sets the default trend window
func WithTrendMonths(n int) AnalyticsOption {
	return func(s *AnalyticsService) {
		if n > 0 {
			s.trendMonths = n
		}
	}
}

// WithTopDebtors sets the default number of top debtors
func WithTopDebtors(n int) AnalyticsOption {
	return func(s *AnalyticsService) {
		if n > 0 {
			s.topDebtors = n
		}
	}
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(receivables ledger.ReceivableRepository, payments ledger.PaymentEventRepository, opts ...AnalyticsOption) *AnalyticsService {
	s := &AnalyticsService{
		receivables: receivables,
		payments:    payments,
		trendMonths: DefaultTrendMonths,
		topDebtors:  DefaultTopDebtors,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dashboard bundles every analytics view computed from one snapshot
type Dashboard struct {
	Summary    ledger.Summary            `json:"summary"`
	Trend      []ledger.MonthlyTotal     `json:"monthly_trend"`
	TopDebtors []ledger.DebtorExposure   `json:"top_overdue_debtors"`
	Aging      []ledger.AgingBucketTotal `json:"overdue_aging"`
}

// Summary returns the headline KPIs at now
func (s *AnalyticsService) Summary(ctx context.Context, tenantID uuid.UUID, now time.Time) (ledger.Summary, error) {
	rs, err := s.snapshot(ctx, tenantID)
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(rs, now), nil
}

// MonthlyTrend returns cash received per month; months <= 0 uses the default window
func (s *AnalyticsService) MonthlyTrend(ctx context.Context, tenantID uuid.UUID, now time.Time, months int) ([]ledger.MonthlyTotal, error) {
	if err := shared.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	if months <= 0 {
		months = s.trendMonths
	}
	if months > 120 {
		return nil, shared.NewValidationError("INVALID_MONTHS", "Trend window must be between 1 and 120 months")
	}
	from, to := ledger.TrendWindow(now, months)
	payments, err := s.payments.ListByPaymentDate(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return ledger.MonthlyTrend(payments, now, months)
}

// TopOverdueDebtors ranks payers by overdue balance; limit <= 0 uses the default
func (s *AnalyticsService) TopOverdueDebtors(ctx context.Context, tenantID uuid.UUID, now time.Time, limit int) ([]ledger.DebtorExposure, error) {
	if limit <= 0 {
		limit = s.topDebtors
	}
	rs, err := s.snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ledger.TopOverdueDebtors(rs, now, limit)
}

// Aging groups overdue receivables by day range; empty lowerBounds uses 1/31/61/91
func (s *AnalyticsService) Aging(ctx context.Context, tenantID uuid.UUID, now time.Time, lowerBounds []int) ([]ledger.AgingBucketTotal, error) {
	buckets := ledger.DefaultAgingBuckets()
	if len(lowerBounds) > 0 {
		b, err := ledger.NewAgingBuckets(lowerBounds)
		if err != nil {
			return nil, err
		}
		buckets = b
	}
	rs, err := s.snapshot(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ledger.OverdueAging(rs, now, buckets), nil
}

// Dashboard computes every view at now using the default parameters
func (s *AnalyticsService) Dashboard(ctx context.Context, tenantID uuid.UUID, now time.Time) (*Dashboard, error) {
	ctx, op := telemetry.Start(ctx, "analytics", "dashboard",
		telemetry.AttrTenantID.String(tenantID.String()))
	defer op.End()

	rs, err := s.snapshot(ctx, tenantID)
	if err != nil {
		return nil, op.Fail(err)
	}
	trend, err := s.MonthlyTrend(ctx, tenantID, now, s.trendMonths)
	if err != nil {
		return nil, op.Fail(err)
	}
	top, err := ledger.TopOverdueDebtors(rs, now, s.topDebtors)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Summary:    ledger.Summarize(rs, now),
		Trend:      trend,
		TopDebtors: top,
		Aging:      ledger.OverdueAging(rs, now, ledger.DefaultAgingBuckets()),
	}, nil
}

func (s *AnalyticsService) snapshot(ctx context.Context, tenantID uuid.UUID) ([]ledger.Receivable, error) {
	if err := shared.RequireTenant(tenantID); err != nil {
		return nil, err
	}
	rs, err := s.receivables.ListAll(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load receivables: %w", err)
	}
	return rs, nil
}
