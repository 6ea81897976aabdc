// Package tenant provides multi-tenant database scoping for GORM.
//
// Repositories scope every statement with Scope. Guard is registered on the
// connection and rejects statements on tenant-owned tables that were built
// without a tenant condition, so a missing scope fails loudly instead of
// leaking rows across tenants.
//
// Usage:
//
//	_ = tenant.NewGuard(tenant.Column).Register(gormDB)
//	gormDB.WithContext(ctx).Scopes(tenant.Scope(tenantID)).Find(&rows)
package tenant

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Column is the tenant column shared by every ledger table
const Column = "tenant_id"

// ErrTenantFilterMissing is returned when a read or write on a tenant-owned
// table carries no tenant condition
var ErrTenantFilterMissing = errors.New("tenant filter missing on tenant-owned table")

// ErrTenantIDRequired is returned when a row is created without a tenant
var ErrTenantIDRequired = errors.New("tenant_id is required")

// Scope applies tenant filtering to GORM queries
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(ErrTenantIDRequired)
			return db
		}
		return db.Where(Column+" = ?", tenantID)
	}
}
