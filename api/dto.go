/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Contracts travel in
  the flat form shape (factory.ContractJSON); everything else is defined
  here. Amounts are rendered as fixed two-place strings so clients never
  see float rounding.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - factory/contract.go: ContractJSON type
*/
package api

import (
	"time"

	"github.com/rentmate/lease-engine/factory"
	"github.com/rentmate/lease-engine/lease"
	"github.com/rentmate/lease-engine/store/sqlite"
)

// =============================================================================
// CONTRACTS
// =============================================================================

// ContractResponse is returned by create, get, edit and option exercise.
type ContractResponse struct {
	Contract  factory.ContractJSON `json:"contract"`
	Payments  []PaymentDTO         `json:"payments,omitempty"`
	Occupancy string               `json:"occupancy,omitempty"`
	Inserted  int                  `json:"payments_inserted"`
	Deleted   int                  `json:"payments_deleted"`

	// Set when the contract was saved but its payment rows were not.
	SyncError *SyncErrorDTO `json:"sync_error,omitempty"`
}

// SyncErrorDTO tells the client which range to retry.
type SyncErrorDTO struct {
	Op        string `json:"op"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Message   string `json:"message"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID         string `json:"id"`
	ContractID string `json:"contract_id"`
	DueDate    string `json:"due_date"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	PaidAt     string `json:"paid_at,omitempty"`
}

// MarkPaidRequest settles a payment; paid_on defaults to today.
type MarkPaidRequest struct {
	PaidOn string `json:"paid_on,omitempty"`
}

// GenerateRangeRequest retries generation for part of a saved contract.
type GenerateRangeRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type GenerateRangeResponse struct {
	ContractID string `json:"contract_id"`
	Inserted   int    `json:"inserted"`
}

// =============================================================================
// OVERLAP / INDEXATION / DEFAULTS
// =============================================================================

type OverlapCheckRequest struct {
	PropertyID        string `json:"property_id"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	ExcludeContractID string `json:"exclude_contract_id,omitempty"`
}

type OverlapCheckResponse struct {
	OK       bool         `json:"ok"`
	Conflict *ConflictDTO `json:"conflict,omitempty"`
}

type ConflictDTO struct {
	ContractID string `json:"contract_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

// ResolveIndexRequest carries the form fields the base index date depends on.
type ResolveIndexRequest struct {
	SigningDate string `json:"signing_date,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	SubType     string `json:"sub_type"`
}

type ResolveIndexResponse struct {
	Resolved      bool   `json:"resolved"`
	ReferenceDate string `json:"reference_date,omitempty"`
	BaseIndexDate string `json:"base_index_date,omitempty"`
}

type DefaultEndDateResponse struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// IndexValueRequest records one published index figure.
type IndexValueRequest struct {
	PublishedOn string         `json:"published_on"`
	Value       factory.Number `json:"value"`
}

type IndexValueDTO struct {
	PublishedOn string `json:"published_on"`
	Value       string `json:"value"`
}

// =============================================================================
// PROPERTIES / SCHEDULER
// =============================================================================

type PropertyDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	Occupancy string `json:"occupancy"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type SchedulerRunDTO struct {
	ID          string  `json:"id"`
	Job         string  `json:"job"`
	AsOf        string  `json:"as_of"`
	Status      string  `json:"status"`
	Affected    int     `json:"affected"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string             `json:"error"`
	Details string             `json:"details,omitempty"`
	Fields  []lease.FieldError `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPaymentDTO(p lease.PaymentRecord) PaymentDTO {
	dto := PaymentDTO{
		ID:         string(p.ID),
		ContractID: string(p.ContractID),
		DueDate:    p.DueDate.String(),
		Amount:     p.Amount.Amount.StringFixed(lease.MinorUnitPlaces),
		Currency:   string(p.Amount.Currency),
		Status:     string(p.Status),
	}
	if !p.PaidAt.IsZero() {
		dto.PaidAt = p.PaidAt.String()
	}
	return dto
}

func toPaymentDTOs(records []lease.PaymentRecord) []PaymentDTO {
	dtos := make([]PaymentDTO, len(records))
	for i, r := range records {
		dtos[i] = toPaymentDTO(r)
	}
	return dtos
}

func toPropertyDTO(p sqlite.PropertyRecord) PropertyDTO {
	dto := PropertyDTO{
		ID:        string(p.ID),
		UserID:    string(p.UserID),
		Occupancy: string(p.Occupancy),
	}
	if !p.UpdatedAt.IsZero() {
		dto.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toSchedulerRunDTO(r sqlite.SchedulerRun) SchedulerRunDTO {
	dto := SchedulerRunDTO{
		ID:        r.ID,
		Job:       r.Job,
		AsOf:      r.AsOf.String(),
		Status:    r.Status,
		Affected:  r.Affected,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		s := r.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

func toSyncErrorDTO(e *lease.ScheduleSyncError) *SyncErrorDTO {
	dto := &SyncErrorDTO{Op: e.Op, Message: e.Error()}
	if e.Range != nil {
		dto.StartDate = e.Range.Start.String()
		dto.EndDate = e.Range.End.String()
	}
	return dto
}
