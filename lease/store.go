/*
store.go - Persistence collaborator interfaces

PURPOSE:
  Defines the boundary between the engine and the relational store. The
  engine itself is pure; every read or write of contracts, payment rows and
  occupancy goes through these interfaces.

KEY INTERFACES:
  ContractStore:   Contract CRUD and the active-contract query used by overlap checks
  PaymentStore:    Bulk insert, pending-row pruning, status transitions
  OccupancySyncer: Recompute and persist a property's occupancy flag

PAYMENT ROW CONTRACT:
  - InsertPaymentRecords is idempotent per (contract, due date): a pair that
    already exists is skipped, never duplicated or overwritten.
  - DeletePendingPaymentsAfter only ever removes pending rows.
  - MarkPaid is one-way; paid rows never change again.

NO CROSS-STEP TRANSACTIONS:
  The edit workflow updates the contract, then applies the payment delta,
  as separate calls. Two concurrent edits of the same contract are
  last-write-wins.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - lease/store/memory.go: In-memory for testing

SEE ALSO:
  - service.go: The only caller
*/
package lease

import "context"

// ContractStore persists contract terms.
type ContractStore interface {
	// FetchActiveContracts returns the active contracts of a property.
	FetchActiveContracts(ctx context.Context, propertyID PropertyID) ([]ContractTerms, error)

	// ListContracts returns every contract of a property, any status.
	ListContracts(ctx context.Context, propertyID PropertyID) ([]ContractTerms, error)

	// GetContract returns ErrContractNotFound when id is unknown.
	GetContract(ctx context.Context, id ContractID) (ContractTerms, error)

	InsertContract(ctx context.Context, terms ContractTerms) error

	// UpdateContract replaces the stored terms of id.
	UpdateContract(ctx context.Context, id ContractID, terms ContractTerms) error
}

// PaymentStore persists payment rows.
type PaymentStore interface {
	// InsertPaymentRecords stores records, skipping (contract, due date)
	// pairs that already exist. Returns how many rows were inserted.
	InsertPaymentRecords(ctx context.Context, records []PaymentRecord) (int, error)

	// DeletePendingPaymentsAfter removes pending rows of contractID due
	// strictly after date. Returns how many rows were deleted.
	DeletePendingPaymentsAfter(ctx context.Context, contractID ContractID, date Date) (int, error)

	// ListPayments returns the rows of a contract ordered by due date.
	ListPayments(ctx context.Context, contractID ContractID) ([]PaymentRecord, error)

	// MarkPaid settles a pending or overdue row.
	MarkPaid(ctx context.Context, id PaymentID, paidOn Date) (PaymentRecord, error)

	// MarkOverdue flips pending rows due before asOf to overdue and returns
	// the affected contract IDs.
	MarkOverdue(ctx context.Context, asOf Date) ([]ContractID, error)
}

// OccupancySyncer recomputes a property's occupancy flag.
type OccupancySyncer interface {
	SyncOccupancyStatus(ctx context.Context, propertyID PropertyID, userID UserID) (Occupancy, error)
}
