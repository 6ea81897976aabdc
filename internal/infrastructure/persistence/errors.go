package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erp/receivables/internal/domain/shared"
	"gorm.io/gorm"
)

// translateError maps GORM and driver errors onto domain errors. Lookups
// that found nothing become notFound; unique violations become conflict.
func translateError(err error, notFound, conflict *shared.DomainError) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil {
		return notFound
	}
	if conflict != nil && isUniqueViolation(err) {
		return conflict
	}
	return fmt.Errorf("database: %w", err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
