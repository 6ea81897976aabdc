package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/lock"
	"github.com/erp/receivables/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisLocker_MutualExclusion(t *testing.T) {
	client := NewTestRedis(t)
	ctx := context.Background()
	locker := lock.NewRedisLocker(client,
		lock.WithTimeout(200*time.Millisecond),
		lock.WithTTL(5*time.Second),
		lock.WithRetryInterval(20*time.Millisecond),
	)

	held, err := locker.Acquire(ctx, "ledger:receivable:a")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "ledger:receivable:a")
	var de *shared.DomainError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Equal(t, "LOCK_TIMEOUT", de.Code)

	other, err := locker.Acquire(ctx, "ledger:receivable:b")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, held.Release(ctx))
	again, err := locker.Acquire(ctx, "ledger:receivable:a")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))

	assert.ErrorIs(t, held.Release(ctx), lock.ErrLockNotHeld)
}

// Two recorders sharing a Redis locker stand in for two server instances
func TestConcurrentPayments_RedisLock(t *testing.T) {
	db := NewTestDB(t)
	client := NewTestRedis(t)
	log := zaptest.NewLogger(t)

	newLocker := func() *lock.RedisLocker {
		return lock.NewRedisLocker(client, lock.WithTimeout(20*time.Second), lock.WithTTL(10*time.Second))
	}
	instances := []*testutil.Ledger{
		testutil.NewLedger(db.DB, newLocker(), log),
		testutil.NewLedger(db.DB, newLocker(), log),
	}
	actor := testutil.TestActor()
	r := instances[0].Issue(t, actor, "INV-RACE", "1000", testutil.Day(2026, 1, 31))

	const payers = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		settle int
	)
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := instances[i%2].Recorder.RecordPayment(context.Background(),
				testutil.PaymentCommand(actor, r.ID, "100", testutil.Day(2026, 1, 15)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if res.Settlement.SettledNow {
				settle++
			}
		}(i)
	}
	wg.Wait()
	require.Empty(t, errs)
	assert.Equal(t, 1, settle, "exactly one payment liquidates the receivable")

	ctx := context.Background()
	got, err := instances[0].Queries.Get(ctx, actor.TenantID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusLiquidated, got.Status)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(1000)), got.PaidAmount.String())
	assert.True(t, got.OpenAmount.IsZero())
	assert.True(t, got.OverpaidAmount.Equal(decimal.NewFromInt(1000)), got.OverpaidAmount.String())
	assert.Equal(t, payers+1, got.Version)

	payments, err := instances[0].Queries.ListPayments(ctx, actor.TenantID, r.ID)
	require.NoError(t, err)
	require.Len(t, payments, payers)
	applied := decimal.Zero
	for _, p := range payments {
		applied = applied.Add(p.AppliedAmount)
	}
	assert.True(t, applied.Equal(got.PaidAmount))

	report, err := instances[1].Reconciliation.Reconcile(ctx, appledger.ReconcileCommand{Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Consistent, "%+v", report.Discrepancies)
}

// Without a shared lock the version compare-and-swap still serialises writers
func TestConcurrentPayments_VersionCAS(t *testing.T) {
	db := NewTestDB(t)
	log := zaptest.NewLogger(t)
	actor := testutil.TestActor()

	const payers = 10
	seed := testutil.NewLedger(db.DB, lock.NewInMemoryLocker(), log)
	r := seed.Issue(t, actor, "INV-CAS", "1000", testutil.Day(2026, 1, 31))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		attempts int
	)
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := testutil.NewLedger(db.DB, lock.NewInMemoryLocker(), log,
				appledger.WithMaxConflictRetries(payers+5))
			res, err := l.Recorder.RecordPayment(context.Background(),
				testutil.PaymentCommand(actor, r.ID, "50", testutil.Day(2026, 1, 15)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			attempts += res.Attempts
		}()
	}
	wg.Wait()
	require.Empty(t, errs)
	assert.GreaterOrEqual(t, attempts, payers)

	got, err := seed.Queries.Get(context.Background(), actor.TenantID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, got.Status)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(500)), got.PaidAmount.String())
	assert.True(t, got.OpenAmount.Equal(decimal.NewFromInt(500)), got.OpenAmount.String())
	assert.Equal(t, payers+1, got.Version)
}

func TestConcurrentPayments_SameIdempotencyKey(t *testing.T) {
	db := NewTestDB(t)
	client := NewTestRedis(t)
	l := testutil.NewLedger(db.DB, lock.NewRedisLocker(client, lock.WithTimeout(20*time.Second)), zaptest.NewLogger(t))
	actor := testutil.TestActor()
	r := l.Issue(t, actor, "INV-IDEM", "900", testutil.Day(2026, 1, 31))

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		recorded int
		replayed int
		failures []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := testutil.PaymentCommand(actor, r.ID, "300", testutil.Day(2026, 1, 15))
			cmd.IdempotencyKey = "bank-ref-42"
			res, err := l.Recorder.RecordPayment(context.Background(), cmd)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, err)
			case res.Replayed:
				replayed++
			default:
				recorded++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, recorded)
	assert.Equal(t, callers-1, replayed+len(failures))
	for _, err := range failures {
		var de *shared.DomainError
		require.True(t, errors.As(err, &de), "got %v", err)
		assert.Equal(t, "DUPLICATE_PAYMENT", de.Code)
	}

	payments, err := l.Queries.ListPayments(context.Background(), actor.TenantID, r.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	got, err := l.Queries.Get(context.Background(), actor.TenantID, r.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 2, got.Version)
}
