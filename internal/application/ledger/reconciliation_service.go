package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const repairReason = "reconciled with payment ledger"

// ReconcileCommand selects what to check and whether to repair
type ReconcileCommand struct {
	Actor        shared.Actor
	ReceivableID *uuid.UUID // nil checks every receivable of the tenant
	Repair       bool
}

// ReconciliationReport summarises one reconciliation run
type ReconciliationReport struct {
	TenantID      uuid.UUID                      `json:"tenant_id"`
	RunAt         time.Time                      `json:"run_at"`
	Repair        bool                           `json:"repair"`
	Checked       int                            `json:"checked"`
	Consistent    int                            `json:"consistent"`
	Repaired      int                            `json:"repaired"`
	Counts        map[ledger.DiscrepancyKind]int `json:"counts"`
	Discrepancies []ledger.Discrepancy           `json:"discrepancies"`
}

func (r *ReconciliationReport) add(check ledger.LedgerCheck) {
	r.Checked++
	if check.Consistent() {
		r.Consistent++
		return
	}
	for _, d := range check.Discrepancies {
		r.Counts[d.Kind]++
		r.Discrepancies = append(r.Discrepancies, d)
	}
}

// ReconciliationService compares receivables with their payment ledger and
// audit trail and, on request, repairs them. Repairs only append history.
type ReconciliationService struct {
	txScope     TransactionScope
	receivables ledger.ReceivableRepository
	payments    ledger.PaymentEventRepository
	history     ledger.HistoryRepository
	locker      Locker
	metrics     Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	txScope TransactionScope,
	receivables ledger.ReceivableRepository,
	payments ledger.PaymentEventRepository,
	history ledger.HistoryRepository,
	locker Locker,
	metrics Metrics,
	logger *zap.Logger,
) *ReconciliationService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		txScope:     txScope,
		receivables: receivables,
		payments:    payments,
		history:     history,
		locker:      locker,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile checks the selected receivables and repairs them when cmd.Repair is set
func (s *ReconciliationService) Reconcile(ctx context.Context, cmd ReconcileCommand) (*ReconciliationReport, error) {
	ctx, op := telemetry.Start(ctx, "ledger", "reconcile",
		telemetry.AttrTenantID.String(cmd.Actor.TenantID.String()),
		telemetry.AttrRepair.Bool(cmd.Repair),
	)
	defer op.End()

	if err := cmd.Actor.Validate(); err != nil {
		return nil, op.Fail(err)
	}

	var (
		report *ReconciliationReport
		err    error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("reconcile", map[string]string{
		telemetry.ProfilingLabelTenantID: cmd.Actor.TenantID.String(),
	}), func(ctx context.Context) {
		report, err = s.run(ctx, cmd)
	})
	if err != nil {
		return report, op.Fail(err)
	}
	op.Succeed()
	return report, nil
}

func (s *ReconciliationService) run(ctx context.Context, cmd ReconcileCommand) (*ReconciliationReport, error) {
	tenantID := cmd.Actor.TenantID

	receivables, payments, history, err := s.load(ctx, tenantID, cmd.ReceivableID)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{
		TenantID:      tenantID,
		RunAt:         s.now(),
		Repair:        cmd.Repair,
		Counts:        make(map[ledger.DiscrepancyKind]int),
		Discrepancies: []ledger.Discrepancy{},
	}
	for i := range receivables {
		r := &receivables[i]
		check := ledger.CheckLedger(r, payments[r.ID], history[r.ID])
		report.add(check)
		if !cmd.Repair || !repairable(check) {
			continue
		}
		repaired, err := s.repair(ctx, cmd.Actor, r.ID)
		if err != nil {
			return report, fmt.Errorf("repair receivable %s: %w", r.ID, err)
		}
		if repaired {
			report.Repaired++
		}
	}

	s.metrics.ReconciliationCompleted(ctx, tenantID, len(report.Discrepancies), report.Repaired)
	s.logger.Info("Reconciliation completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("checked", report.Checked),
		zap.Int("consistent", report.Consistent),
		zap.Int("discrepancies", len(report.Discrepancies)),
		zap.Int("repaired", report.Repaired),
		zap.Bool("repair", cmd.Repair))
	return report, nil
}

func repairable(c ledger.LedgerCheck) bool {
	return c.NeedsRebalance() || len(c.MissingHistory) > 0
}

func (s *ReconciliationService) load(ctx context.Context, tenantID uuid.UUID, id *uuid.UUID) (
	[]ledger.Receivable, map[uuid.UUID][]ledger.PaymentEvent, map[uuid.UUID][]ledger.HistoryEntry, error,
) {
	payments := make(map[uuid.UUID][]ledger.PaymentEvent)
	history := make(map[uuid.UUID][]ledger.HistoryEntry)

	if id != nil {
		r, err := s.receivables.FindByID(ctx, tenantID, *id)
		if err != nil {
			return nil, nil, nil, err
		}
		ps, err := s.payments.FindByReceivable(ctx, tenantID, r.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load payments: %w", err)
		}
		hs, err := s.history.ListByReceivable(ctx, tenantID, r.ID)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("load history: %w", err)
		}
		payments[r.ID] = ps
		history[r.ID] = hs
		return []ledger.Receivable{*r}, payments, history, nil
	}

	rs, err := s.receivables.ListAll(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load receivables: %w", err)
	}
	ps, err := s.payments.ListAll(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load payments: %w", err)
	}
	hs, err := s.history.ListAll(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load history: %w", err)
	}
	for _, p := range ps {
		payments[p.ReceivableID] = append(payments[p.ReceivableID], p)
	}
	for _, h := range hs {
		history[h.ReceivableID] = append(history[h.ReceivableID], h)
	}
	return rs, payments, history, nil
}

// repair re-checks one receivable under its lock and fixes what it finds
func (s *ReconciliationService) repair(ctx context.Context, actor shared.Actor, receivableID uuid.UUID) (bool, error) {
	lock, err := s.locker.Acquire(ctx, ReceivableLockKey(actor.TenantID, receivableID))
	if err != nil {
		return false, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release receivable lock", zap.String("receivable_id", receivableID.String()), zap.Error(err))
		}
	}()

	repaired := false
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		r, err := repos.Receivables().FindByID(ctx, actor.TenantID, receivableID)
		if err != nil {
			return err
		}
		payments, err := repos.Payments().FindByReceivable(ctx, actor.TenantID, receivableID)
		if err != nil {
			return err
		}
		history, err := repos.History().ListByReceivable(ctx, actor.TenantID, receivableID)
		if err != nil {
			return err
		}

		check := ledger.CheckLedger(r, payments, history)
		if !repairable(check) {
			return nil
		}
		at := s.now()
		var entries []*ledger.HistoryEntry
		for i := range check.MissingHistory {
			entries = append(entries, ledger.NewReconstructedPaymentHistory(actor, r, &check.MissingHistory[i], at))
		}
		if check.NeedsRebalance() {
			before := ledger.BalanceOf(r)
			r.Rebalance(check.LedgerPaid, check.LedgerOverpaid, check.SettlementDate, actor.UserID)
			if err := repos.Receivables().SaveWithLock(ctx, r); err != nil {
				return err
			}
			entries = append(entries, ledger.NewAdjustmentHistory(actor, r, repairReason, before, ledger.BalanceOf(r), at))
			if before.Status != r.Status {
				entries = append(entries, ledger.NewStatusChangeHistory(actor, r, before.Status, r.Status, at))
			}
		}
		if err := repos.History().Append(ctx, ledger.InWriteOrder(at, entries...)...); err != nil {
			return err
		}
		repaired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if repaired {
		s.logger.Info("Receivable repaired", zap.String("tenant_id", actor.TenantID.String()), zap.String("receivable_id", receivableID.String()))
	}
	return repaired, nil
}
