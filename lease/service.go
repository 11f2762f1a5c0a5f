/*
service.go - Contract create/edit workflow

PURPOSE:
  Runs one contract operation as a single sequential pipeline:

    normalize -> resolve indexation -> validate -> overlap check
              -> persist contract -> payment delta -> occupancy sync

  Each step is a plain call; there is no lock or transaction spanning the
  steps, so concurrent edits of the same contract are last-write-wins.

FAILURE ASYMMETRY:
  Validation and overlap failures block the save; nothing is written.
  Once the contract row is saved, a failure to generate or prune payment
  rows does NOT roll the date change back. It is logged and returned as a
  *ScheduleSyncError alongside the saved contract, so the caller can retry
  generation for the reported range.

SEE ALSO:
  - reconcile.go: The delta computed on edits
  - generator.go: The generate-payments contract used for extensions
*/
package lease

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder receives workflow counters. Implemented by internal/metrics.
type Recorder interface {
	PaymentsGenerated(n int)
	PaymentsDeleted(n int)
	OverlapConflict()
	ScheduleSyncFailed(op string)
}

type nopRecorder struct{}

func (nopRecorder) PaymentsGenerated(int)     {}
func (nopRecorder) PaymentsDeleted(int)       {}
func (nopRecorder) OverlapConflict()          {}
func (nopRecorder) ScheduleSyncFailed(string) {}

// Service wires the engine to its collaborators.
type Service struct {
	Contracts ContractStore
	Payments  PaymentStore
	Occupancy OccupancySyncer   // optional
	Generator ScheduleGenerator // extension segments
	Schedule  *Generator        // full schedules on create
	Clock     Clock
	Logger    *zap.Logger
	Recorder  Recorder
}

// ServiceConfig holds the collaborators for NewService. Nil fields get
// in-process defaults where one exists.
type ServiceConfig struct {
	Contracts ContractStore
	Payments  PaymentStore
	Occupancy OccupancySyncer
	Generator ScheduleGenerator
	Index     IndexSeries
	Clock     Clock
	Logger    *zap.Logger
	Recorder  Recorder
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		Contracts: cfg.Contracts,
		Payments:  cfg.Payments,
		Occupancy: cfg.Occupancy,
		Generator: cfg.Generator,
		Schedule:  NewGenerator(cfg.Index),
		Clock:     cfg.Clock,
		Logger:    cfg.Logger,
		Recorder:  cfg.Recorder,
	}
	if s.Generator == nil {
		s.Generator = &LocalGenerator{Generator: s.Schedule}
	}
	if s.Clock == nil {
		s.Clock = SystemClock{}
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Recorder == nil {
		s.Recorder = nopRecorder{}
	}
	return s
}

// =============================================================================
// RESULTS
// =============================================================================

// CreateResult is the outcome of CreateContract.
type CreateResult struct {
	Contract  ContractTerms
	Payments  []PaymentRecord
	Occupancy Occupancy
}

// EditResult is the outcome of EditContract.
type EditResult struct {
	Contract  ContractTerms
	Plan      ReconcilePlan
	Inserted  int
	Deleted   int
	Occupancy Occupancy
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Prepare normalizes terms and fills derived fields, then validates them.
func Prepare(terms ContractTerms) (ContractTerms, error) {
	terms = ResolveIndexation(terms.Normalize())
	if err := terms.Validate(); err != nil {
		return terms, err
	}
	return terms, nil
}

// CheckOverlap fetches the property's active contracts and validates candidate.
func (s *Service) CheckOverlap(ctx context.Context, propertyID PropertyID, candidate DateRange, excludeID ContractID) (OverlapResult, error) {
	existing, err := s.Contracts.FetchActiveContracts(ctx, propertyID)
	if err != nil {
		return OverlapResult{}, fmt.Errorf("fetch active contracts: %w", err)
	}
	return ValidateOverlap(propertyID, candidate, existing, excludeID), nil
}

// CreateContract validates and saves a new contract, then generates its full
// payment schedule. On a *ScheduleSyncError the contract is saved.
func (s *Service) CreateContract(ctx context.Context, terms ContractTerms) (CreateResult, error) {
	terms, err := Prepare(terms.WithDefaultEndDate())
	if err != nil {
		return CreateResult{}, err
	}
	if terms.IsActive() {
		if err := s.ensureNoOverlap(ctx, terms, ""); err != nil {
			return CreateResult{}, err
		}
	}
	if terms.ID == "" {
		terms.ID = ContractID(uuid.NewString())
	}

	log := s.Logger.With(zap.String("contract_id", string(terms.ID)), zap.String("property_id", string(terms.PropertyID)))

	if err := s.Contracts.InsertContract(ctx, terms); err != nil {
		return CreateResult{}, fmt.Errorf("insert contract: %w", err)
	}
	log.Info("contract created", zap.String("term", terms.Term().String()), zap.String("status", string(terms.Status)))

	result := CreateResult{Contract: terms}
	if terms.IsActive() {
		result.Occupancy = s.syncOccupancy(ctx, terms, log)
	}

	records := withIDs(s.Schedule.Generate(terms, terms.Term()))
	if _, err := s.Payments.InsertPaymentRecords(ctx, records); err != nil {
		term := terms.Term()
		return result, s.syncFailure(log, terms.ID, "generate", &term, err)
	}
	s.Recorder.PaymentsGenerated(len(records))
	result.Payments = records
	log.Info("payment schedule generated", zap.Int("payments", len(records)))
	return result, nil
}

// EditContract replaces the terms of id and reconciles its payment rows.
// Paid and overdue rows are never touched. Omitted property, owner and end
// date keep their stored values. On a *ScheduleSyncError the new terms are
// already saved.
func (s *Service) EditContract(ctx context.Context, id ContractID, updated ContractTerms) (EditResult, error) {
	old, err := s.Contracts.GetContract(ctx, id)
	if err != nil {
		return EditResult{}, err
	}

	updated.ID = id
	if updated.PropertyID == "" {
		updated.PropertyID = old.PropertyID
	}
	if updated.UserID == "" {
		updated.UserID = old.UserID
	}
	if updated.EndDate.IsZero() {
		updated.EndDate = old.EndDate
	}
	updated, err = Prepare(updated)
	if err != nil {
		return EditResult{}, err
	}
	if updated.IsActive() {
		if err := s.ensureNoOverlap(ctx, updated, id); err != nil {
			return EditResult{}, err
		}
	}

	log := s.Logger.With(zap.String("contract_id", string(id)), zap.String("property_id", string(updated.PropertyID)))

	if err := s.Contracts.UpdateContract(ctx, id, updated); err != nil {
		return EditResult{}, fmt.Errorf("update contract: %w", err)
	}
	log.Info("contract updated",
		zap.String("old_end", old.EndDate.String()),
		zap.String("new_end", updated.EndDate.String()),
		zap.String("status", string(updated.Status)),
	)

	result := EditResult{Contract: updated}
	// date edits of an active contract can change today's occupancy too
	if StatusTransitionTouchesActive(old.Status, updated.Status) || updated.IsActive() {
		result.Occupancy = s.syncOccupancy(ctx, updated, log)
	}
	if old.IsActive() && old.PropertyID != updated.PropertyID {
		// the property the contract left may now be vacant
		s.syncOccupancy(ctx, old, log.With(zap.String("previous_property_id", string(old.PropertyID))))
	}

	payments, err := s.Payments.ListPayments(ctx, id)
	if err != nil {
		return result, s.syncFailure(log, id, "list", nil, err)
	}
	plan := Reconcile(old.EndDate, updated.EndDate, id, payments)
	result.Plan = plan

	if len(plan.ToDelete) > 0 {
		n, err := s.Payments.DeletePendingPaymentsAfter(ctx, id, updated.EndDate)
		if err != nil {
			return result, s.syncFailure(log, id, "delete", nil, err)
		}
		result.Deleted = n
		s.Recorder.PaymentsDeleted(n)
		log.Info("pending payments removed", zap.Int("deleted", n))
	}

	if plan.ToGenerate != nil {
		n, err := s.generateSegment(ctx, updated, *plan.ToGenerate)
		if err != nil {
			return result, s.syncFailure(log, id, "generate", plan.ToGenerate, err)
		}
		result.Inserted = n
		s.Recorder.PaymentsGenerated(n)
		log.Info("extension payments generated", zap.String("range", plan.ToGenerate.String()), zap.Int("inserted", n))
	}
	return result, nil
}

// RetryGeneration regenerates the given range for a saved contract. Existing
// (contract, due date) pairs are skipped, so retrying a whole range is safe.
func (s *Service) RetryGeneration(ctx context.Context, id ContractID, window DateRange) (int, error) {
	terms, err := s.Contracts.GetContract(ctx, id)
	if err != nil {
		return 0, err
	}
	n, err := s.generateSegment(ctx, terms, window)
	if err != nil {
		return 0, err
	}
	s.Recorder.PaymentsGenerated(n)
	return n, nil
}

// ExerciseOption extends the contract through its first option period.
func (s *Service) ExerciseOption(ctx context.Context, id ContractID) (EditResult, error) {
	current, err := s.Contracts.GetContract(ctx, id)
	if err != nil {
		return EditResult{}, err
	}
	updated, err := ExerciseFirstOption(current)
	if err != nil {
		return EditResult{}, err
	}
	return s.EditContract(ctx, id, updated)
}

// MarkOverdue flips pending rows due before today to overdue.
func (s *Service) MarkOverdue(ctx context.Context) ([]ContractID, error) {
	return s.Payments.MarkOverdue(ctx, s.Clock.Today())
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) ensureNoOverlap(ctx context.Context, terms ContractTerms, exclude ContractID) error {
	res, err := s.CheckOverlap(ctx, terms.PropertyID, terms.Term(), exclude)
	if err != nil {
		return err
	}
	if res.OK {
		return nil
	}
	s.Recorder.OverlapConflict()
	return &OverlapError{PropertyID: terms.PropertyID, Candidate: terms.Term(), Conflict: *res.Conflict}
}

func (s *Service) generateSegment(ctx context.Context, terms ContractTerms, window DateRange) (int, error) {
	resp, err := s.Generator.GeneratePayments(ctx, NewGenerateRequest(terms, window))
	if err != nil {
		return 0, fmt.Errorf("generate payments: %w", err)
	}
	records := make([]PaymentRecord, 0, len(resp.Payments))
	for _, p := range resp.Payments {
		status := p.Status
		if status == "" {
			status = PaymentPending
		}
		records = append(records, PaymentRecord{
			ContractID: terms.ID,
			DueDate:    p.DueDate,
			Amount:     p.Amount,
			Status:     status,
		})
	}
	n, err := s.Payments.InsertPaymentRecords(ctx, withIDs(records))
	if err != nil {
		return 0, fmt.Errorf("insert payments: %w", err)
	}
	return n, nil
}

func (s *Service) syncOccupancy(ctx context.Context, terms ContractTerms, log *zap.Logger) Occupancy {
	if s.Occupancy == nil {
		return ""
	}
	occ, err := s.Occupancy.SyncOccupancyStatus(ctx, terms.PropertyID, terms.UserID)
	if err != nil {
		// status change already saved; the next sync corrects the flag
		log.Warn("occupancy sync failed", zap.Error(err))
		return ""
	}
	log.Debug("occupancy synced", zap.String("occupancy", string(occ)))
	return occ
}

func (s *Service) syncFailure(log *zap.Logger, id ContractID, op string, window *DateRange, err error) error {
	s.Recorder.ScheduleSyncFailed(op)
	log.Error("payment schedule out of sync", zap.String("op", op), zap.Error(err))
	return &ScheduleSyncError{ContractID: id, Op: op, Range: window, Err: err}
}

func withIDs(records []PaymentRecord) []PaymentRecord {
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = PaymentID(uuid.NewString())
		}
	}
	return records
}

// IsScheduleSync reports whether err means "saved, but payments out of sync".
func IsScheduleSync(err error) bool {
	return errors.Is(err, ErrScheduleSync)
}
