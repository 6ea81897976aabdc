package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/erp/receivables/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Repositories
// =============================================================================

type MockReceivableRepository struct {
	mock.Mock
}

func (m *MockReceivableRepository) Create(ctx context.Context, r *ledger.Receivable) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockReceivableRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Receivable, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Receivable), args.Error(1)
}

func (m *MockReceivableRepository) FindByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (*ledger.Receivable, error) {
	args := m.Called(ctx, tenantID, documentNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Receivable), args.Error(1)
}

func (m *MockReceivableRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter ledger.ReceivableFilter) ([]ledger.Receivable, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]ledger.Receivable), args.Get(1).(int64), args.Error(2)
}

func (m *MockReceivableRepository) ListAll(ctx context.Context, tenantID uuid.UUID) ([]ledger.Receivable, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]ledger.Receivable), args.Error(1)
}

func (m *MockReceivableRepository) ExistsByDocumentNumber(ctx context.Context, tenantID uuid.UUID, documentNumber string) (bool, error) {
	args := m.Called(ctx, tenantID, documentNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockReceivableRepository) SaveWithLock(ctx context.Context, r *ledger.Receivable) error {
	return m.Called(ctx, r).Error(0)
}

type MockPaymentEventRepository struct {
	mock.Mock
}

func (m *MockPaymentEventRepository) Create(ctx context.Context, e *ledger.PaymentEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockPaymentEventRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ledger.PaymentEvent, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PaymentEvent), args.Error(1)
}

func (m *MockPaymentEventRepository) FindByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]ledger.PaymentEvent, error) {
	args := m.Called(ctx, tenantID, receivableID)
	return args.Get(0).([]ledger.PaymentEvent), args.Error(1)
}

func (m *MockPaymentEventRepository) FindByIdempotencyKey(ctx context.Context, tenantID uuid.UUID, key string) (*ledger.PaymentEvent, error) {
	args := m.Called(ctx, tenantID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PaymentEvent), args.Error(1)
}

func (m *MockPaymentEventRepository) ListByPaymentDate(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]ledger.PaymentEvent, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).([]ledger.PaymentEvent), args.Error(1)
}

func (m *MockPaymentEventRepository) ListAll(ctx context.Context, tenantID uuid.UUID) ([]ledger.PaymentEvent, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]ledger.PaymentEvent), args.Error(1)
}

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) Append(ctx context.Context, entries ...*ledger.HistoryEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func (m *MockHistoryRepository) FindByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID, filter ledger.HistoryFilter) ([]ledger.HistoryEntry, int64, error) {
	args := m.Called(ctx, tenantID, receivableID, filter)
	return args.Get(0).([]ledger.HistoryEntry), args.Get(1).(int64), args.Error(2)
}

func (m *MockHistoryRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter ledger.HistoryFilter) ([]ledger.HistoryEntry, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]ledger.HistoryEntry), args.Get(1).(int64), args.Error(2)
}

func (m *MockHistoryRepository) ListByReceivable(ctx context.Context, tenantID, receivableID uuid.UUID) ([]ledger.HistoryEntry, error) {
	args := m.Called(ctx, tenantID, receivableID)
	return args.Get(0).([]ledger.HistoryEntry), args.Error(1)
}

func (m *MockHistoryRepository) ListAll(ctx context.Context, tenantID uuid.UUID) ([]ledger.HistoryEntry, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]ledger.HistoryEntry), args.Error(1)
}

// =============================================================================
// Fakes
// =============================================================================

type mockRepos struct {
	receivables *MockReceivableRepository
	payments    *MockPaymentEventRepository
	history     *MockHistoryRepository
}

func newMockRepos() *mockRepos {
	return &mockRepos{
		receivables: new(MockReceivableRepository),
		payments:    new(MockPaymentEventRepository),
		history:     new(MockHistoryRepository),
	}
}

func (r *mockRepos) Receivables() ledger.ReceivableRepository { return r.receivables }
func (r *mockRepos) Payments() ledger.PaymentEventRepository { return r.payments }
func (r *mockRepos) History() ledger.HistoryRepository { return r.history }

func (r *mockRepos) assertExpectations(t mock.TestingT) {
	r.receivables.AssertExpectations(t)
	r.payments.AssertExpectations(t)
	r.history.AssertExpectations(t)
}

// fakeTxScope runs fn directly against the mock repositories
type fakeTxScope struct {
	repos *mockRepos
	calls int
}

func (s *fakeTxScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	s.calls++
	return fn(s.repos)
}

type fakeLock struct {
	locker *fakeLocker
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	l.locker.released++
	return nil
}

// fakeLocker grants every lock unless errs still holds queued failures
type fakeLocker struct {
	mu       sync.Mutex
	keys     []string
	released int
	errs     []error
}

func (l *fakeLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		return nil, err
	}
	return &fakeLock{locker: l}, nil
}

type recordingMetrics struct {
	recorded   int
	replayed   int
	conflicts  int
	retries    int
	reconciled int
}

func (m *recordingMetrics) PaymentRecorded(context.Context, uuid.UUID, string, decimal.Decimal, bool) {
	m.recorded++
}

func (m *recordingMetrics) PaymentReplayed(context.Context, uuid.UUID) {
	m.replayed++
}

func (m *recordingMetrics) ConflictDetected(_ context.Context, _ uuid.UUID, willRetry bool) {
	m.conflicts++
	if willRetry {
		m.retries++
	}
}

func (m *recordingMetrics) ReconciliationCompleted(context.Context, uuid.UUID, int, int) {
	m.reconciled++
}
