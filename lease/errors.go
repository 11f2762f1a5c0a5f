/*
errors.go - Centralized error types for the lease engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; structured errors unwrap to
  the sentinels below.

ERROR CATEGORIES:
  1. Validation errors - field-level, recoverable, never silently defaulted
  2. Overlap errors - a save blocked by another active contract
  3. Schedule sync errors - the date change is persisted but the payment
     rows could not be brought in line (no rollback)
  4. Store errors - missing rows, immutable rows

SEE ALSO:
  - validate.go: Produces ValidationErrors
  - service.go: Produces OverlapError and ScheduleSyncError
*/
package lease

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTerms is returned when contract terms fail validation.
	ErrInvalidTerms = errors.New("invalid contract terms")

	// ErrOverlap is returned when an active contract of the same property
	// already covers part of the requested range.
	ErrOverlap = errors.New("contract dates overlap an active contract")

	// ErrScheduleSync is returned when the contract was saved but its
	// payment rows could not be generated or pruned.
	ErrScheduleSync = errors.New("payment schedule out of sync")

	// ErrContractExists is returned when inserting a contract whose ID is taken.
	ErrContractExists = errors.New("contract already exists")

	// ErrContractNotFound is returned when a referenced contract doesn't exist.
	ErrContractNotFound = errors.New("contract not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrPropertyNotFound is returned when a referenced property doesn't exist.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrPaymentImmutable is returned when trying to change a paid record.
	ErrPaymentImmutable = errors.New("paid payment is immutable")

	// ErrNoOptionPeriod is returned when exercising an option on a contract without one.
	ErrNoOptionPeriod = errors.New("contract has no option period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every field failure found in one pass.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return "invalid contract terms: " + strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error { return ErrInvalidTerms }

// Has reports whether a failure was recorded for field.
func (e ValidationErrors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// OverlapError describes the active contract that blocks a save.
type OverlapError struct {
	PropertyID PropertyID
	Candidate  DateRange
	Conflict   Conflict
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("contract %s overlaps active contract %s %s on property %s",
		e.Candidate, e.Conflict.ContractID, e.Conflict.Range, e.PropertyID)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// ScheduleSyncError reports that the contract's date change was persisted
// but the payment delta failed. Callers should retry generation for Range,
// not roll back the date change.
type ScheduleSyncError struct {
	ContractID ContractID
	Op         string // "generate" or "delete"
	Range      *DateRange
	Err        error
}

func (e *ScheduleSyncError) Error() string {
	if e.Range != nil {
		return fmt.Sprintf("contract %s saved but %s of payments for %s failed: %v",
			e.ContractID, e.Op, e.Range, e.Err)
	}
	return fmt.Sprintf("contract %s saved but %s of payments failed: %v", e.ContractID, e.Op, e.Err)
}

func (e *ScheduleSyncError) Unwrap() []error { return []error{ErrScheduleSync, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTerms) ||
		errors.Is(err, ErrOverlap) ||
		errors.Is(err, ErrContractExists) ||
		errors.Is(err, ErrPaymentImmutable) ||
		errors.Is(err, ErrNoOptionPeriod)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrPropertyNotFound)
}
