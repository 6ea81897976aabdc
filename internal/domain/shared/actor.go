package shared

import (
	"github.com/google/uuid"
)

// Actor is the explicit operation context passed to every core operation:
// the tenant whose data is addressed and the user performing the call.
type Actor struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// NewActor creates an Actor
func NewActor(tenantID, userID uuid.UUID) Actor {
	return Actor{TenantID: tenantID, UserID: userID}
}

// Validate rejects an actor without a tenant
func (a Actor) Validate() error {
	return RequireTenant(a.TenantID)
}

// RequireTenant returns a validation error for the nil tenant
func RequireTenant(tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return NewValidationError("TENANT_REQUIRED", "Tenant ID is required")
	}
	return nil
}
