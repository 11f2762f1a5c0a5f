package lease_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rentmate/lease-engine/lease"
	"github.com/rentmate/lease-engine/lease/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type failingGenerator struct{ err error }

func (g failingGenerator) GeneratePayments(context.Context, lease.GenerateRequest) (lease.GenerateResponse, error) {
	return lease.GenerateResponse{}, g.err
}

type countingRecorder struct {
	generated, deleted, overlaps int
	failures                     []string
}

func (r *countingRecorder) PaymentsGenerated(n int)      { r.generated += n }
func (r *countingRecorder) PaymentsDeleted(n int)        { r.deleted += n }
func (r *countingRecorder) OverlapConflict()             { r.overlaps++ }
func (r *countingRecorder) ScheduleSyncFailed(op string) { r.failures = append(r.failures, op) }

func newTestService(t *testing.T, gen lease.ScheduleGenerator) (*lease.Service, *store.Memory, *countingRecorder) {
	clock := lease.FixedClock(d("2024-03-10"))
	mem := store.NewMemory(clock)
	rec := &countingRecorder{}
	svc := lease.NewService(lease.ServiceConfig{
		Contracts: mem,
		Payments:  mem,
		Occupancy: mem,
		Generator: gen,
		Clock:     clock,
		Logger:    zaptest.NewLogger(t),
		Recorder:  rec,
	})
	return svc, mem, rec
}

func newTerms(start, end string) lease.ContractTerms {
	terms := monthlyTerms(start, end, 1)
	terms.ID = ""
	return terms
}

// =============================================================================
// CREATE
// =============================================================================

func TestService_CreateContract_GeneratesSchedule(t *testing.T) {
	svc, mem, rec := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)

	assert.NotEmpty(t, res.Contract.ID)
	assert.Len(t, res.Payments, 12)
	assert.Equal(t, lease.Occupied, res.Occupancy)
	assert.Equal(t, 12, rec.generated)

	stored, err := mem.ListPayments(ctx, res.Contract.ID)
	require.NoError(t, err)
	require.Len(t, stored, 12)
	for _, p := range stored {
		assert.NotEmpty(t, p.ID)
	}
}

func TestService_CreateContract_InvalidTermsNotSaved(t *testing.T) {
	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	terms := newTerms("2024-01-01", "2024-12-31")
	terms.Tenants = nil

	_, err := svc.CreateContract(ctx, terms)
	assert.ErrorIs(t, err, lease.ErrInvalidTerms)

	all, err := mem.ListContracts(ctx, "prop-1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_CreateContract_OverlapBlocksSave(t *testing.T) {
	// GIVEN: An active 2024 lease on prop-1
	// WHEN: A second active lease starting 2024-12-01 is created
	// THEN: The save is rejected with the conflicting range

	svc, mem, rec := newTestService(t, nil)
	ctx := context.Background()

	first, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)

	_, err = svc.CreateContract(ctx, newTerms("2024-12-01", "2025-11-30"))

	var overlap *lease.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, first.Contract.ID, overlap.Conflict.ContractID)
	assert.Equal(t, 1, rec.overlaps)

	all, err := mem.ListContracts(ctx, "prop-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestService_CreateContract_DraftSkipsOverlap(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)

	draft := newTerms("2024-06-01", "2025-05-31")
	draft.Status = lease.StatusDraft
	_, err = svc.CreateContract(ctx, draft)
	assert.NoError(t, err)
}

func TestService_CreateContract_DefaultsMissingEndDate(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	terms := newTerms("2024-01-01", "2024-12-31")
	terms.EndDate = lease.Date{}
	res, err := svc.CreateContract(context.Background(), terms)
	require.NoError(t, err)

	assert.Equal(t, "2024-12-31", res.Contract.EndDate.String())
	assert.Len(t, res.Payments, 12)
}

func TestService_CreateContract_DuplicateID(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	// drafts skip the overlap check, so the insert itself must refuse
	terms := newTerms("2024-01-01", "2024-12-31")
	terms.ID = "c-dup"
	terms.Status = lease.StatusDraft
	_, err := svc.CreateContract(ctx, terms)
	require.NoError(t, err)

	_, err = svc.CreateContract(ctx, terms)
	assert.ErrorIs(t, err, lease.ErrContractExists)
	assert.True(t, lease.IsClientError(err))
}

// =============================================================================
// EDIT
// =============================================================================

func TestService_EditContract_OmittedEndDateKeepsStoredDate(t *testing.T) {
	svc, mem, rec := newTestService(t, nil)
	ctx := context.Background()

	// GIVEN: A two-year lease with 24 monthly rows
	created, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2025-12-31"))
	require.NoError(t, err)
	require.Len(t, created.Payments, 24)

	// WHEN: A rent-only edit arrives without an end date
	updated := created.Contract
	updated.EndDate = lease.Date{}
	updated.BaseRent = ils("5100")
	res, err := svc.EditContract(ctx, created.Contract.ID, updated)
	require.NoError(t, err)

	// THEN: The stored end date stands and no row is removed
	assert.Equal(t, "2025-12-31", res.Contract.EndDate.String())
	assert.True(t, res.Plan.IsNoop())
	assert.Zero(t, res.Deleted)
	assert.Zero(t, rec.deleted)

	rows, err := mem.ListPayments(ctx, created.Contract.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 24)
}

func TestService_EditContract_MovingPropertyResyncsBoth(t *testing.T) {
	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	// GIVEN: An active lease occupying prop-1 today
	created, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)
	occ, _ := mem.Occupancy("prop-1")
	require.Equal(t, lease.Occupied, occ)

	// WHEN: It is moved to prop-2
	updated := created.Contract
	updated.PropertyID = "prop-2"
	res, err := svc.EditContract(ctx, created.Contract.ID, updated)
	require.NoError(t, err)

	// THEN: prop-2 is occupied and prop-1 is vacant again
	assert.Equal(t, lease.Occupied, res.Occupancy)
	occ, _ = mem.Occupancy("prop-2")
	assert.Equal(t, lease.Occupied, occ)
	occ, _ = mem.Occupancy("prop-1")
	assert.Equal(t, lease.Vacant, occ)
}

func TestService_EditContract_ShorteningDeletesPendingOnly(t *testing.T) {
	svc, mem, rec := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)
	id := created.Contract.ID

	// late-paid August row survives shortening
	for _, p := range created.Payments {
		if p.DueDate.Equal(d("2024-08-01")) {
			_, err := mem.MarkPaid(ctx, p.ID, d("2024-08-03"))
			require.NoError(t, err)
		}
	}

	updated := created.Contract
	updated.EndDate = d("2024-06-30")
	res, err := svc.EditContract(ctx, id, updated)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Deleted)
	assert.Equal(t, 5, rec.deleted)

	rows, err := mem.ListPayments(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-01", "2024-02-01", "2024-03-01", "2024-04-01", "2024-05-01", "2024-06-01", "2024-08-01",
	}, dueDates(rows))
	assert.Equal(t, lease.PaymentPaid, rows[6].Status)
}

func TestService_EditContract_ExtensionGeneratesGapOnce(t *testing.T) {
	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)
	id := created.Contract.ID

	updated := created.Contract
	updated.EndDate = d("2025-06-30")
	res, err := svc.EditContract(ctx, id, updated)
	require.NoError(t, err)
	require.NotNil(t, res.Plan.ToGenerate)
	assert.Equal(t, "2025-01-01", res.Plan.ToGenerate.Start.String())
	assert.Equal(t, 6, res.Inserted)

	// retrying the same range inserts nothing
	n, err := svc.RetryGeneration(ctx, id, *res.Plan.ToGenerate)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := mem.ListPayments(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rows, 18)
}

func TestService_EditContract_GeneratorFailureKeepsDateChange(t *testing.T) {
	// GIVEN: The schedule generator is down
	// WHEN: The contract is extended
	// THEN: The new end date is saved and a ScheduleSyncError names the gap

	boom := errors.New("generator unavailable")
	svc, mem, rec := newTestService(t, failingGenerator{err: boom})
	ctx := context.Background()

	created, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)
	id := created.Contract.ID

	updated := created.Contract
	updated.EndDate = d("2025-03-31")
	res, err := svc.EditContract(ctx, id, updated)

	var syncErr *lease.ScheduleSyncError
	require.ErrorAs(t, err, &syncErr)
	assert.ErrorIs(t, err, lease.ErrScheduleSync)
	assert.ErrorIs(t, err, boom)
	assert.True(t, lease.IsScheduleSync(err))
	assert.Equal(t, "generate", syncErr.Op)
	require.NotNil(t, syncErr.Range)
	assert.Equal(t, "2025-01-01", syncErr.Range.Start.String())
	assert.Equal(t, []string{"generate"}, rec.failures)
	assert.Equal(t, "2025-03-31", res.Contract.EndDate.String())

	stored, err := mem.GetContract(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-31", stored.EndDate.String(), "no rollback")

	rows, err := mem.ListPayments(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rows, 12)
}

func TestService_EditContract_SelfDoesNotConflict(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)

	updated := created.Contract
	updated.BaseRent = ils("5200")
	res, err := svc.EditContract(ctx, created.Contract.ID, updated)
	require.NoError(t, err)
	assert.True(t, res.Plan.IsNoop())
}

func TestService_EditContract_ArchivingVacatesProperty(t *testing.T) {
	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)
	occ, _ := mem.Occupancy("prop-1")
	require.Equal(t, lease.Occupied, occ)

	updated := created.Contract
	updated.Status = lease.StatusArchived
	res, err := svc.EditContract(ctx, created.Contract.ID, updated)
	require.NoError(t, err)

	assert.Equal(t, lease.Vacant, res.Occupancy)
	occ, _ = mem.Occupancy("prop-1")
	assert.Equal(t, lease.Vacant, occ)
}

func TestService_EditContract_UnknownContract(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.EditContract(context.Background(), "missing", newTerms("2024-01-01", "2024-12-31"))
	assert.ErrorIs(t, err, lease.ErrContractNotFound)
	assert.True(t, lease.IsNotFound(err))
}

// =============================================================================
// OPTIONS AND PAYMENT STATUS
// =============================================================================

func TestService_ExerciseOption(t *testing.T) {
	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	terms := newTerms("2024-01-01", "2024-12-31")
	rent := ils("5500")
	terms.OptionPeriods = []lease.OptionPeriod{{EndDate: d("2025-12-31"), RentAmount: &rent}}
	created, err := svc.CreateContract(ctx, terms)
	require.NoError(t, err)

	res, err := svc.ExerciseOption(ctx, created.Contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-31", res.Contract.EndDate.String())
	assert.Equal(t, 12, res.Inserted)

	rows, err := mem.ListPayments(ctx, created.Contract.ID)
	require.NoError(t, err)
	require.Len(t, rows, 24)
	assert.True(t, rows[11].Amount.Equal(ils("5000")))
	assert.True(t, rows[12].Amount.Equal(ils("5500")))

	_, err = svc.ExerciseOption(ctx, created.Contract.ID)
	assert.ErrorIs(t, err, lease.ErrNoOptionPeriod)
}

func TestService_MarkOverdue(t *testing.T) {
	svc, mem, _ := newTestService(t, nil)
	ctx := context.Background()

	created, err := svc.CreateContract(ctx, newTerms("2024-01-01", "2024-12-31"))
	require.NoError(t, err)
	id := created.Contract.ID

	_, err = mem.MarkPaid(ctx, created.Payments[0].ID, d("2024-01-02"))
	require.NoError(t, err)

	touched, err := svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []lease.ContractID{id}, touched)

	rows, err := mem.ListPayments(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, lease.PaymentPaid, rows[0].Status)
	assert.Equal(t, lease.PaymentOverdue, rows[1].Status) // Feb 1
	assert.Equal(t, lease.PaymentOverdue, rows[2].Status) // Mar 1
	assert.Equal(t, lease.PaymentPending, rows[3].Status) // Apr 1

	_, err = mem.MarkPaid(ctx, created.Payments[0].ID, d("2024-01-05"))
	assert.ErrorIs(t, err, lease.ErrPaymentImmutable)

	// overdue rows survive shortening
	updated := created.Contract
	updated.EndDate = d("2024-01-31")
	_, err = svc.EditContract(ctx, id, updated)
	require.NoError(t, err)
	rows, err = mem.ListPayments(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-02-01", "2024-03-01"}, dueDates(rows))
}
