// Package models holds the GORM rows of the receivables ledger.
//
// Domain types in domain/ledger carry no ORM tags; each model here has a
// FromDomain/ToDomain pair, and repositories only read and write models.
// Every model has a tenant_id column, and the tenant callback refuses
// statements that do not filter on it.
//
//   - base.go: id, timestamps and the version column shared by aggregates
//   - ledger.go: receivables, payment_events and history_entries
package models
