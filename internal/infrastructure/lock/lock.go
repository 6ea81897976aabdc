// Package lock provides the receivable write locks used by the payment
// recorder and reconciliation repairs. A Redis backed locker serializes
// writers across processes; the in-memory locker serves single-instance
// deployments and tests.
package lock

import (
	"time"

	appledger "github.com/erp/receivables/internal/application/ledger"
	"github.com/erp/receivables/internal/domain/shared"
)

// ErrLockTimeout is returned when a lock could not be acquired within the
// bounded wait. It is a conflict, so callers may retry.
var ErrLockTimeout = shared.NewConflictError("LOCK_TIMEOUT", "Receivable is being updated by another request, try again")

// ErrLockNotHeld is returned when releasing a lock that already expired or
// was released
var ErrLockNotHeld = shared.NewConflictError("LOCK_NOT_HELD", "Lock is no longer held")

const (
	DefaultTimeout       = 3 * time.Second
	DefaultTTL           = 30 * time.Second
	DefaultRetryInterval = 50 * time.Millisecond
)

// Locker is a ledger locker that owns resources to close on shutdown
type Locker interface {
	appledger.Locker
	Close() error
}

type options struct {
	timeout       time.Duration
	ttl           time.Duration
	retryInterval time.Duration
}

// Option configures a locker
type Option func(*options)

// WithTimeout bounds how long Acquire waits for a held lock
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTTL sets the expiry of a distributed lock. A holder that crashes
// releases the lock after ttl.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithRetryInterval sets the polling interval of the Redis locker
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryInterval = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout, ttl: DefaultTTL, retryInterval: DefaultRetryInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
