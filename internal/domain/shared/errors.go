package shared

import (
	"errors"
)

// ErrorKind classifies domain errors for callers and transports
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches any DomainError of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of code.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Code == e.Code || t.isSentinel())
}

func (e *DomainError) isSentinel() bool {
	return e == ErrNotFound || e == ErrConcurrencyConflict || e == ErrInvalidInput
}

// NewDomainError creates a new validation-kind domain error
func NewDomainError(code, message string) *DomainError {
	return NewValidationError(code, message)
}

// NewValidationError creates an error for bad caller input; never retried
func NewValidationError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindValidation}
}

// NewNotFoundError creates an error for a missing resource or a tenant mismatch
func NewNotFoundError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindNotFound}
}

// NewConflictError creates a caller-retryable concurrency error
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Kind: KindConflict}
}

// Common domain errors
var (
	ErrNotFound            = NewNotFoundError("NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
)

// KindOf returns the kind of the first DomainError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

// IsConflict reports whether err is a concurrency conflict
func IsConflict(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConflict
}
