package telemetry

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// gormOperations maps each GORM callback chain to the SQL verb it runs.
// Row and raw statements are classified from their SQL.
var gormOperations = []struct {
	name      string
	operation string
}{
	{"create", "INSERT"},
	{"query", "SELECT"},
	{"update", "UPDATE"},
	{"delete", "DELETE"},
	{"row", ""},
	{"raw", ""},
}

// registerAround registers before and after around every GORM operation
func registerAround(db *gorm.DB, prefix string, before func(*gorm.DB), after func(tx *gorm.DB, operation string)) error {
	for _, op := range gormOperations {
		op := op
		if before != nil {
			if err := registerHook(db, op.name, false, prefix+":before_"+op.name, before); err != nil {
				return err
			}
		}
		if after != nil {
			cb := func(tx *gorm.DB) {
				operation := op.operation
				if operation == "" {
					operation = detectOperationType(tx.Statement.SQL.String())
				}
				after(tx, operation)
			}
			if err := registerHook(db, op.name, true, prefix+":after_"+op.name, cb); err != nil {
				return err
			}
		}
	}
	return nil
}

func registerHook(db *gorm.DB, op string, after bool, name string, fn func(*gorm.DB)) error {
	ref := "gorm:" + op
	cb := db.Callback()
	switch op {
	case "create":
		if after {
			return cb.Create().After(ref).Register(name, fn)
		}
		return cb.Create().Before(ref).Register(name, fn)
	case "query":
		if after {
			return cb.Query().After(ref).Register(name, fn)
		}
		return cb.Query().Before(ref).Register(name, fn)
	case "update":
		if after {
			return cb.Update().After(ref).Register(name, fn)
		}
		return cb.Update().Before(ref).Register(name, fn)
	case "delete":
		if after {
			return cb.Delete().After(ref).Register(name, fn)
		}
		return cb.Delete().Before(ref).Register(name, fn)
	case "row":
		if after {
			return cb.Row().After(ref).Register(name, fn)
		}
		return cb.Row().Before(ref).Register(name, fn)
	case "raw":
		if after {
			return cb.Raw().After(ref).Register(name, fn)
		}
		return cb.Raw().Before(ref).Register(name, fn)
	}
	return fmt.Errorf("unknown gorm operation %q", op)
}

// detectOperationType classifies a SQL statement by its leading verb
func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, verb) {
			return verb
		}
	}
	return "OTHER"
}
