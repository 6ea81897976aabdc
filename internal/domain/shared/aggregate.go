package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
}

// BaseAggregateRoot provides common fields for aggregate roots.
// Version is the optimistic concurrency token: repositories only persist
// an aggregate whose stored version equals Version-1.
type BaseAggregateRoot struct {
	BaseEntity
	Version int
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// TenantAggregateRoot extends BaseAggregateRoot with multi-tenant support
// and the audit actors of the last create/update.
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID  uuid.UUID
	CreatedBy uuid.UUID
	UpdatedBy uuid.UUID
}

// NewTenantAggregateRoot creates a new tenant-scoped aggregate root for the given actor
func NewTenantAggregateRoot(actor Actor) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		TenantID:          actor.TenantID,
		CreatedBy:         actor.UserID,
		UpdatedBy:         actor.UserID,
	}
}

// MarkUpdated records the actor of a mutation and bumps the version
func (t *TenantAggregateRoot) MarkUpdated(userID uuid.UUID) {
	t.UpdatedBy = userID
	t.Touch()
	t.IncrementVersion()
}

// BelongsTo reports whether the aggregate is owned by tenantID
func (t *TenantAggregateRoot) BelongsTo(tenantID uuid.UUID) bool {
	return t.TenantID == tenantID
}
