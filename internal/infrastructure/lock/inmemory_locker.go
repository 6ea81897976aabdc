package lock

import (
	"context"
	"sync"
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
)

// slot is a one-token semaphore shared by every waiter of a key
type slot struct {
	token chan struct{}
	refs  int
}

// InMemoryLocker implements appledger.Locker with per-key semaphores.
// Locks are only exclusive within one process.
type InMemoryLocker struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

// NewInMemoryLocker creates a new in-memory locker
func NewInMemoryLocker(opts ...Option) *InMemoryLocker {
	o := newOptions(opts)
	return &InMemoryLocker{
		slots:   make(map[string]*slot),
		timeout: o.timeout,
	}
}

// Acquire waits for key to be free for at most the configured timeout
func (l *InMemoryLocker) Acquire(ctx context.Context, key string) (appledger.Lock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.token <- struct{}{}:
		return &memoryLock{locker: l, key: key, slot: s}, nil
	case <-timer.C:
		l.unref(key, s)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *InMemoryLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// keys returns the number of keys currently held or waited on
func (l *InMemoryLocker) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// Close is a no-op
func (l *InMemoryLocker) Close() error {
	return nil
}

type memoryLock struct {
	locker   *InMemoryLocker
	key      string
	slot     *slot
	released sync.Once
}

func (m *memoryLock) Release(context.Context) error {
	released := false
	m.released.Do(func() {
		<-m.slot.token
		m.locker.unref(m.key, m.slot)
		released = true
	})
	if !released {
		return ErrLockNotHeld
	}
	return nil
}

var _ Locker = (*InMemoryLocker)(nil)
