package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ReceivableSortFields contains allowed sort fields for receivables
var ReceivableSortFields = map[string]bool{
	"created_at":      true,
	"updated_at":      true,
	"document_number": true,
	"payer_name":      true,
	"face_value":      true,
	"open_amount":     true,
	"paid_amount":     true,
	"due_date":        true,
	"status":          true,
	"settlement_date": true,
}

// HistorySortFields contains allowed sort fields for the audit trail
var HistorySortFields = map[string]bool{
	"occurred_at": true,
	"type":        true,
}
