package tenant

import (
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Guard provides GORM callback hooks that enforce tenant isolation
type Guard struct {
	column string
}

// NewGuard creates a guard for tenantColumn
func NewGuard(tenantColumn string) *Guard {
	if tenantColumn == "" {
		tenantColumn = Column
	}
	return &Guard{column: tenantColumn}
}

// Register installs the guard before every create, query, row, update and delete
func (g *Guard) Register(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("tenant:before_create", g.beforeCreate); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("tenant:before_query", g.requireFilter); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant:before_row", g.requireFilter); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant:before_update", g.requireFilter); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant:before_delete", g.requireFilter)
}

// tenantField returns the tenant field of the statement's model, or nil when
// the table is not tenant-owned
func (g *Guard) tenantField(db *gorm.DB) *schema.Field {
	if db.Statement.Schema == nil {
		return nil
	}
	return db.Statement.Schema.LookUpField(g.column)
}

func (g *Guard) beforeCreate(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	field := g.tenantField(db)
	if field == nil {
		return
	}
	ctx := db.Statement.Context
	rv := reflect.Indirect(db.Statement.ReflectValue)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if _, zero := field.ValueOf(ctx, reflect.Indirect(rv.Index(i))); zero {
				_ = db.AddError(ErrTenantIDRequired)
				return
			}
		}
	case reflect.Struct:
		if _, zero := field.ValueOf(ctx, rv); zero {
			_ = db.AddError(ErrTenantIDRequired)
		}
	}
}

func (g *Guard) requireFilter(db *gorm.DB) {
	if db.Error != nil || db.Statement.Unscoped {
		return
	}
	if g.tenantField(db) == nil {
		return
	}
	if !g.hasTenantCondition(db) {
		_ = db.AddError(ErrTenantFilterMissing)
	}
}

// hasTenantCondition checks if a tenant_id condition is present in WHERE
func (g *Guard) hasTenantCondition(db *gorm.DB) bool {
	whereClause, ok := db.Statement.Clauses["WHERE"]
	if !ok {
		return false
	}
	where, ok := whereClause.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, expr := range where.Exprs {
		if g.exprContainsTenant(expr) {
			return true
		}
	}
	return false
}

// exprContainsTenant checks if an expression constrains the tenant column.
// A tenant condition nested in OR does not scope the statement.
func (g *Guard) exprContainsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Expr:
		return strings.Contains(e.SQL, g.column)
	case clause.NamedExpr:
		return strings.Contains(e.SQL, g.column)
	case clause.Eq:
		return g.isTenantColumn(e.Column)
	case clause.IN:
		return g.isTenantColumn(e.Column)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if g.exprContainsTenant(cond) {
				return true
			}
		}
	}
	return false
}

func (g *Guard) isTenantColumn(col any) bool {
	switch c := col.(type) {
	case clause.Column:
		return c.Name == g.column
	case string:
		return c == g.column || strings.HasSuffix(c, "."+g.column)
	}
	return false
}
