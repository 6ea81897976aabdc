package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultMaxConflictRetries is the number of automatic retries after a conflict
const DefaultMaxConflictRetries = 1

// RecordPaymentCommand is a request to post a cash event against a receivable
type RecordPaymentCommand struct {
	Actor          shared.Actor
	ReceivableID   uuid.UUID
	Amount         decimal.Decimal
	PaymentDate    time.Time
	Method         string
	ProofRef       string
	Observation    string
	IdempotencyKey string
	// ExpectedVersion pins the call to the receivable version a preview was
	// computed against. A mismatch is a conflict and is never retried.
	ExpectedVersion *int
}

// RecordPaymentResult is the outcome of RecordPayment
type RecordPaymentResult struct {
	Receivable *ledger.Receivable
	Payment    *ledger.PaymentEvent
	Settlement ledger.SettlementResult
	Replayed   bool // true when the idempotency key matched an earlier payment
	Attempts   int
}

// PaymentPreview is the side-effect-free result of PreviewPayment
type PaymentPreview struct {
	Receivable      *ledger.Receivable
	Method          ledger.PaymentMethod
	Settlement      ledger.SettlementResult
	ExpectedVersion int
}

// PaymentRecorder applies payments to receivables. For one receivable the
// write phase runs under a per-receivable lock, inside one transaction, and
// is persisted with a version compare-and-swap.
type PaymentRecorder struct {
	txScope     TransactionScope
	receivables ledger.ReceivableRepository
	locker      Locker
	metrics     Metrics
	logger      *zap.Logger
	maxRetries  int
	now         func() time.Time
}

// RecorderOption configures a PaymentRecorder
type RecorderOption func(*PaymentRecorder)

// WithMaxConflictRetries sets how many times a conflicting write is retried
func WithMaxConflictRetries(n int) RecorderOption {
	return func(s *PaymentRecorder) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRecorderMetrics sets the metrics sink
func WithRecorderMetrics(m Metrics) RecorderOption {
	return func(s *PaymentRecorder) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRecorderLogger sets the logger
func WithRecorderLogger(l *zap.Logger) RecorderOption {
	return func(s *PaymentRecorder) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorderClock sets the clock used for audit timestamps
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(s *PaymentRecorder) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPaymentRecorder creates a new PaymentRecorder
func NewPaymentRecorder(
	txScope TransactionScope,
	receivables ledger.ReceivableRepository,
	locker Locker,
	opts ...RecorderOption,
) *PaymentRecorder {
	s := &PaymentRecorder{
		txScope:     txScope,
		receivables: receivables,
		locker:      locker,
		metrics:     noopMetrics{},
		logger:      zap.NewNop(),
		maxRetries:  DefaultMaxConflictRetries,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordPayment records a payment, updates the receivable and appends its
// history as one unit. Conflicts are retried against fresh state up to the
// configured limit; validation and not-found errors are returned at once.
func (s *PaymentRecorder) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (*RecordPaymentResult, error) {
	ctx, op := telemetry.Start(ctx, "ledger", "record_payment",
		telemetry.AttrTenantID.String(cmd.Actor.TenantID.String()),
		telemetry.AttrReceivableID.String(cmd.ReceivableID.String()),
		telemetry.AttrAmount.String(cmd.Amount.String()),
		telemetry.AttrPaymentMethod.String(cmd.Method),
	)
	defer op.End()

	if err := cmd.Actor.Validate(); err != nil {
		return nil, op.Fail(err)
	}
	key, err := ledger.NormalizeIdempotencyKey(cmd.IdempotencyKey)
	if err != nil {
		return nil, op.Fail(err)
	}
	cmd.IdempotencyKey = key

	var result *RecordPaymentResult
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("record_payment", map[string]string{
		telemetry.ProfilingLabelTenantID: cmd.Actor.TenantID.String(),
	}), func(ctx context.Context) {
		result, err = s.recordWithRetry(ctx, op, cmd)
	})
	if err != nil {
		return nil, op.Fail(err)
	}
	op.Annotate(
		telemetry.AttrPaymentID.String(result.Payment.ID.String()),
		telemetry.AttrStatus.String(result.Receivable.Status.String()),
	)
	op.Succeed()
	return result, nil
}

func (s *PaymentRecorder) recordWithRetry(ctx context.Context, op *telemetry.Op, cmd RecordPaymentCommand) (*RecordPaymentResult, error) {
	retries := s.maxRetries
	if cmd.ExpectedVersion != nil {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		result, err := s.recordOnce(ctx, cmd)
		if err == nil {
			result.Attempts = attempt + 1
			s.observe(ctx, cmd, result)
			return result, nil
		}
		lastErr = err
		if !shared.IsConflict(err) || ctx.Err() != nil {
			break
		}
		willRetry := attempt < retries
		s.metrics.ConflictDetected(ctx, cmd.Actor.TenantID, willRetry)
		s.logger.Warn("Payment write conflict",
			zap.String("tenant_id", cmd.Actor.TenantID.String()),
			zap.String("receivable_id", cmd.ReceivableID.String()),
			zap.Int("attempt", attempt+1),
			zap.Bool("will_retry", willRetry),
			zap.Error(err))
		if willRetry {
			op.Retry(attempt+1, err)
		}
	}
	return nil, lastErr
}

// ConfirmPayment records a payment previously previewed against expectedVersion
func (s *PaymentRecorder) ConfirmPayment(ctx context.Context, cmd RecordPaymentCommand, expectedVersion int) (*RecordPaymentResult, error) {
	cmd.ExpectedVersion = &expectedVersion
	return s.RecordPayment(ctx, cmd)
}

// PreviewPayment validates cmd and computes the settlement it would produce
// without taking locks or writing anything
func (s *PaymentRecorder) PreviewPayment(ctx context.Context, cmd RecordPaymentCommand) (*PaymentPreview, error) {
	ctx, op := telemetry.Start(ctx, "ledger", "preview_payment",
		telemetry.AttrTenantID.String(cmd.Actor.TenantID.String()),
		telemetry.AttrReceivableID.String(cmd.ReceivableID.String()),
	)
	defer op.End()

	if err := cmd.Actor.Validate(); err != nil {
		return nil, op.Fail(err)
	}
	r, err := s.receivables.FindByID(ctx, cmd.Actor.TenantID, cmd.ReceivableID)
	if err != nil {
		return nil, op.Fail(err)
	}
	method, settlement, err := validatePayment(r, cmd)
	if err != nil {
		return nil, op.Fail(err)
	}
	return &PaymentPreview{
		Receivable:      r,
		Method:          method,
		Settlement:      settlement,
		ExpectedVersion: r.Version,
	}, nil
}

func validatePayment(r *ledger.Receivable, cmd RecordPaymentCommand) (ledger.PaymentMethod, ledger.SettlementResult, error) {
	method, err := ledger.ParsePaymentMethod(cmd.Method)
	if err != nil {
		return "", ledger.SettlementResult{}, err
	}
	settlement, err := ledger.ApplyPayment(r, cmd.Amount, cmd.PaymentDate)
	if err != nil {
		return "", ledger.SettlementResult{}, err
	}
	return method, settlement, nil
}

func (s *PaymentRecorder) recordOnce(ctx context.Context, cmd RecordPaymentCommand) (*RecordPaymentResult, error) {
	lock, err := s.locker.Acquire(ctx, ReceivableLockKey(cmd.Actor.TenantID, cmd.ReceivableID))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release receivable lock",
				zap.String("receivable_id", cmd.ReceivableID.String()),
				zap.Error(err))
		}
	}()

	var result *RecordPaymentResult
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		r, err := repos.Receivables().FindByID(ctx, cmd.Actor.TenantID, cmd.ReceivableID)
		if err != nil {
			return err
		}

		if cmd.IdempotencyKey != "" {
			existing, err := repos.Payments().FindByIdempotencyKey(ctx, cmd.Actor.TenantID, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if !existing.Matches(r.ID, cmd.Amount) {
					return shared.NewValidationError("IDEMPOTENCY_KEY_REUSED",
						"Idempotency key was already used for a different payment")
				}
				result = &RecordPaymentResult{Receivable: r, Payment: existing, Replayed: true}
				return nil
			}
		}

		method, settlement, err := validatePayment(r, cmd)
		if err != nil {
			return err
		}
		if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != r.Version {
			return shared.NewConflictError("STALE_PREVIEW",
				fmt.Sprintf("Receivable changed since preview (version %d, now %d)", *cmd.ExpectedVersion, r.Version))
		}

		event, err := ledger.NewPaymentEvent(cmd.Actor, r, settlement, cmd.PaymentDate, ledger.PaymentDetailsInput{
			Method:         method,
			ProofRef:       cmd.ProofRef,
			Observation:    cmd.Observation,
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			return err
		}

		r.ApplySettlement(settlement, cmd.Actor.UserID)
		if err := r.CheckInvariants(); err != nil {
			return fmt.Errorf("settlement rejected: %w", err)
		}
		if err := repos.Receivables().SaveWithLock(ctx, r); err != nil {
			return err
		}
		if err := repos.Payments().Create(ctx, event); err != nil {
			return err
		}

		at := s.now()
		entries := []*ledger.HistoryEntry{ledger.NewPaymentHistory(cmd.Actor, r, event, at)}
		if settlement.StatusChanged() {
			entries = append(entries, ledger.NewStatusChangeHistory(cmd.Actor, r, settlement.PreviousStatus, settlement.NewStatus, at))
		}
		if err := repos.History().Append(ctx, ledger.InWriteOrder(at, entries...)...); err != nil {
			return fmt.Errorf("append payment history: %w", err)
		}

		result = &RecordPaymentResult{Receivable: r, Payment: event, Settlement: settlement}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentRecorder) observe(ctx context.Context, cmd RecordPaymentCommand, result *RecordPaymentResult) {
	if result.Replayed {
		s.metrics.PaymentReplayed(ctx, cmd.Actor.TenantID)
		s.logger.Info("Payment replayed by idempotency key",
			zap.String("tenant_id", cmd.Actor.TenantID.String()),
			zap.String("receivable_id", cmd.ReceivableID.String()),
			zap.String("payment_id", result.Payment.ID.String()))
		return
	}
	s.metrics.PaymentRecorded(ctx, cmd.Actor.TenantID, string(result.Payment.Method), result.Payment.Amount, result.Settlement.SettledNow)
	s.logger.Info("Payment recorded",
		zap.String("tenant_id", cmd.Actor.TenantID.String()),
		zap.String("receivable_id", cmd.ReceivableID.String()),
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("amount", result.Payment.Amount.String()),
		zap.String("status", result.Receivable.Status.String()),
		zap.Int("attempts", result.Attempts))
}
