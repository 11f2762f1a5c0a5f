/*
handlers_test.go - HTTP tests for the lease API

Tests for:
- Contract create / edit / option exercise through the router
- Error mapping (400 field list, 404, 409, 502 with saved contract)
- Payment settlement
- Form helper endpoints and the generate-payments function
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rentmate/lease-engine/internal/metrics"
	"github.com/rentmate/lease-engine/lease"
	"github.com/rentmate/lease-engine/store/sqlite"
)

// today for every test in this package
var testToday = lease.MustParseDate("2024-03-10")

type testEnv struct {
	h      *Handler
	store  *sqlite.Store
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := lease.FixedClock(testToday)

	store, err := sqlite.New(":memory:", sqlite.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zaptest.NewLogger(t)
	m := metrics.New("lease-test")
	svc := lease.NewService(lease.ServiceConfig{
		Contracts: store,
		Payments:  store,
		Occupancy: store,
		Index:     store,
		Clock:     clock,
		Logger:    logger,
		Recorder:  m,
	})
	h := NewHandler(svc, store, logger)
	h.Scheduler = NewOverdueScheduler(svc, store, logger)
	h.Scheduler.Recorder = m

	return &testEnv{h: h, store: store, router: NewRouter(h, RouterOptions{Metrics: m})}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func contractBody(id, property, start, end string) map[string]any {
	return map[string]any{
		"id":                id,
		"property_id":       property,
		"tenants":           []map[string]string{{"name": "Dana Levi"}},
		"start_date":        start,
		"end_date":          end,
		"rent_amount":       5000,
		"payment_frequency": "monthly",
		"payment_day":       1,
		"status":            "active",
	}
}

// =============================================================================
// CONTRACTS
// =============================================================================

func TestCreateContract_GeneratesScheduleAndOccupancy(t *testing.T) {
	env := newTestEnv(t)

	// WHEN: A one-year monthly lease covering today is created
	rec := env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31"))

	// THEN: 12 rows, property occupied
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[ContractResponse](t, rec)
	assert.Equal(t, "c-1", resp.Contract.ID)
	assert.Len(t, resp.Payments, 12)
	assert.Equal(t, "2024-01-01", resp.Payments[0].DueDate)
	assert.Equal(t, "5000.00", resp.Payments[0].Amount)
	assert.Equal(t, "occupied", resp.Occupancy)

	rec = env.do(t, http.MethodGet, "/api/contracts/c-1/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PaymentDTO](t, rec), 12)

	rec = env.do(t, http.MethodGet, "/api/properties/prop-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "occupied", decode[PropertyDTO](t, rec).Occupancy)
}

func TestCreateContract_DefaultsEndDate(t *testing.T) {
	env := newTestEnv(t)

	body := contractBody("c-1", "prop-1", "2024-03-01", "")
	delete(body, "end_date")
	rec := env.do(t, http.MethodPost, "/api/contracts", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2025-02-28", decode[ContractResponse](t, rec).Contract.EndDate)
}

func TestCreateContract_ValidationErrorsListFields(t *testing.T) {
	env := newTestEnv(t)

	body := contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")
	body["tenants"] = []map[string]string{}
	body["rent_amount"] = 0
	body["payment_day"] = 32
	rec := env.do(t, http.MethodPost, "/api/contracts", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	fields := make([]string, len(resp.Fields))
	for i, f := range resp.Fields {
		fields[i] = f.Field
	}
	assert.ElementsMatch(t, []string{"tenants", "base_rent", "payment_day"}, fields)

	// nothing was saved
	rec = env.do(t, http.MethodGet, "/api/contracts/c-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateContract_MalformedDate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "01/01/2024", "2024-12-31"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	require.NotEmpty(t, resp.Fields)
	assert.Equal(t, "start_date", resp.Fields[0].Field)
}

func TestCreateContract_OverlapReturnsConflict(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")).Code)

	// WHEN: A second active lease shares the last day
	rec := env.do(t, http.MethodPost, "/api/contracts", contractBody("c-2", "prop-1", "2024-12-31", "2025-12-30"))

	// THEN: 409 and nothing saved
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Details, "c-1")
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/contracts/c-2", nil).Code)

	// A lease starting the next day is fine
	rec = env.do(t, http.MethodPost, "/api/contracts", contractBody("c-2", "prop-1", "2025-01-01", "2025-12-31"))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateContract_DuplicateIDConflicts(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")).Code)

	// another property, so only the ID collides
	rec := env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-2", "2024-01-01", "2024-12-31"))
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestUpdateContract_ShorteningKeepsPaidRows(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31"))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[ContractResponse](t, rec)

	// GIVEN: August is paid
	aug := created.Payments[7]
	require.Equal(t, "2024-08-01", aug.DueDate)
	rec = env.do(t, http.MethodPost, "/api/payments/"+aug.ID+"/paid", MarkPaidRequest{PaidOn: "2024-08-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: End date moves to 2024-07-31
	body := contractBody("", "prop-1", "2024-01-01", "2024-07-31")
	rec = env.do(t, http.MethodPut, "/api/contracts/c-1", body)

	// THEN: Pending Sep-Dec deleted, paid Aug survives
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ContractResponse](t, rec)
	assert.Equal(t, 4, resp.Deleted)
	assert.Equal(t, "2024-07-31", resp.Contract.EndDate)

	payments := decode[[]PaymentDTO](t, env.do(t, http.MethodGet, "/api/contracts/c-1/payments", nil))
	require.Len(t, payments, 8)
	assert.Equal(t, "2024-08-01", payments[7].DueDate)
	assert.Equal(t, "paid", payments[7].Status)
}

func TestUpdateContract_ExtensionGeneratesGap(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")).Code)

	rec := env.do(t, http.MethodPut, "/api/contracts/c-1", contractBody("", "prop-1", "2024-01-01", "2025-06-30"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 6, decode[ContractResponse](t, rec).Inserted)

	payments := decode[[]PaymentDTO](t, env.do(t, http.MethodGet, "/api/contracts/c-1/payments", nil))
	require.Len(t, payments, 18)
	assert.Equal(t, "2025-01-01", payments[12].DueDate)
	assert.Equal(t, "2025-06-01", payments[17].DueDate)
}

type failingGenerator struct{}

func (failingGenerator) GeneratePayments(context.Context, lease.GenerateRequest) (lease.GenerateResponse, error) {
	return lease.GenerateResponse{}, errors.New("function unavailable")
}

func TestUpdateContract_OmittedEndDateKeepsSchedule(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: A two-year lease
	rec := env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2025-12-31"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, decode[ContractResponse](t, rec).Payments, 24)

	// WHEN: The rent is edited and the form leaves end_date out
	body := contractBody("", "prop-1", "2024-01-01", "")
	delete(body, "end_date")
	body["rent_amount"] = 5100
	rec = env.do(t, http.MethodPut, "/api/contracts/c-1", body)

	// THEN: The stored end date and all 24 rows stay
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ContractResponse](t, rec)
	assert.Equal(t, "2025-12-31", resp.Contract.EndDate)
	assert.Zero(t, resp.Deleted)
	assert.Len(t, decode[[]PaymentDTO](t, env.do(t, http.MethodGet, "/api/contracts/c-1/payments", nil)), 24)
}

func TestUpdateContract_MovingPropertyVacatesPrevious(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-a", "2024-01-01", "2024-12-31")).Code)

	rec := env.do(t, http.MethodPut, "/api/contracts/c-1", contractBody("", "prop-b", "2024-01-01", "2024-12-31"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	propA := decode[PropertyDTO](t, env.do(t, http.MethodGet, "/api/properties/prop-a", nil))
	propB := decode[PropertyDTO](t, env.do(t, http.MethodGet, "/api/properties/prop-b", nil))
	assert.Equal(t, "vacant", propA.Occupancy)
	assert.Equal(t, "occupied", propB.Occupancy)
}

func TestUpdateContract_GenerationFailureReturnsSavedContract(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")).Code)
	env.h.Service.Generator = failingGenerator{}

	// WHEN: The extension cannot be generated
	rec := env.do(t, http.MethodPut, "/api/contracts/c-1", contractBody("", "prop-1", "2024-01-01", "2025-06-30"))

	// THEN: 502, body carries the saved contract and the range to retry
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	resp := decode[ContractResponse](t, rec)
	assert.Equal(t, "2025-06-30", resp.Contract.EndDate)
	require.NotNil(t, resp.SyncError)
	assert.Equal(t, "generate", resp.SyncError.Op)
	assert.Equal(t, "2025-01-01", resp.SyncError.StartDate)
	assert.Equal(t, "2025-06-30", resp.SyncError.EndDate)

	// AND: The date change was not rolled back
	got := decode[ContractResponse](t, env.do(t, http.MethodGet, "/api/contracts/c-1", nil))
	assert.Equal(t, "2025-06-30", got.Contract.EndDate)

	// WHEN: The generator recovers and the range is retried
	env.h.Service.Generator = lease.NewLocalGenerator(env.store)
	rec = env.do(t, http.MethodPost, "/api/contracts/c-1/payments/generate",
		GenerateRangeRequest{StartDate: resp.SyncError.StartDate, EndDate: resp.SyncError.EndDate})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 6, decode[GenerateRangeResponse](t, rec).Inserted)
}

func TestUpdateContract_UnknownContract(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/contracts/nope", contractBody("", "prop-1", "2024-01-01", "2024-12-31"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExerciseOption(t *testing.T) {
	env := newTestEnv(t)
	body := contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")
	body["option_periods"] = []map[string]any{{"end_date": "2025-12-31", "rent_amount": 5500}}
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/contracts", body).Code)

	rec := env.do(t, http.MethodPost, "/api/contracts/c-1/options/exercise", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ContractResponse](t, rec)
	assert.Equal(t, "2025-12-31", resp.Contract.EndDate)
	assert.Equal(t, 12, resp.Inserted)
	assert.Empty(t, resp.Contract.OptionPeriods)

	payments := decode[[]PaymentDTO](t, env.do(t, http.MethodGet, "/api/contracts/c-1/payments", nil))
	require.Len(t, payments, 24)
	assert.Equal(t, "5500.00", payments[12].Amount)

	// no option left
	rec = env.do(t, http.MethodPost, "/api/contracts/c-1/options/exercise", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestMarkPaid(t *testing.T) {
	env := newTestEnv(t)
	created := decode[ContractResponse](t,
		env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")))
	id := created.Payments[0].ID

	// default paid_on is today
	rec := env.do(t, http.MethodPost, "/api/payments/"+id+"/paid", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[PaymentDTO](t, rec)
	assert.Equal(t, "paid", p.Status)
	assert.Equal(t, "2024-03-10", p.PaidAt)

	// paid rows are immutable
	rec = env.do(t, http.MethodPost, "/api/payments/"+id+"/paid", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/payments/missing/paid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// FORM HELPERS
// =============================================================================

func TestCheckOverlap(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")).Code)

	tests := []struct {
		name    string
		req     OverlapCheckRequest
		ok      bool
		blocker string
	}{
		{"disjoint", OverlapCheckRequest{PropertyID: "prop-1", StartDate: "2025-01-01", EndDate: "2025-12-31"}, true, ""},
		{"shared day", OverlapCheckRequest{PropertyID: "prop-1", StartDate: "2024-12-31", EndDate: "2025-12-31"}, false, "c-1"},
		{"self excluded", OverlapCheckRequest{PropertyID: "prop-1", StartDate: "2024-06-01", EndDate: "2025-05-31", ExcludeContractID: "c-1"}, true, ""},
		{"other property", OverlapCheckRequest{PropertyID: "prop-2", StartDate: "2024-06-01", EndDate: "2025-05-31"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/overlap/check", tt.req)
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[OverlapCheckResponse](t, rec)
			assert.Equal(t, tt.ok, resp.OK)
			if tt.blocker != "" {
				require.NotNil(t, resp.Conflict)
				assert.Equal(t, tt.blocker, resp.Conflict.ContractID)
			}
		})
	}
}

func TestResolveIndexation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		req      ResolveIndexRequest
		resolved bool
		want     string
	}{
		{ResolveIndexRequest{SigningDate: "2024-03-10", SubType: "known"}, true, "2024-02-15"},
		{ResolveIndexRequest{SigningDate: "2024-03-20", SubType: "known"}, true, "2024-03-15"},
		{ResolveIndexRequest{SigningDate: "2024-01-05", SubType: "known"}, true, "2023-12-15"},
		{ResolveIndexRequest{SigningDate: "2024-03-10", SubType: "respect_of"}, true, "2024-04-15"},
		{ResolveIndexRequest{StartDate: "2024-03-20", SubType: "known"}, true, "2024-03-15"},
		{ResolveIndexRequest{SigningDate: "2024-03-10", SubType: "base"}, false, ""},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodPost, "/api/indexation/resolve", tt.req)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[ResolveIndexResponse](t, rec)
		assert.Equal(t, tt.resolved, resp.Resolved, "%+v", tt.req)
		assert.Equal(t, tt.want, resp.BaseIndexDate, "%+v", tt.req)
	}
}

func TestDefaultEndDate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/defaults/end-date?start_date=2024-02-29", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-02-28", decode[DefaultEndDateResponse](t, rec).EndDate)

	rec = env.do(t, http.MethodGet, "/api/defaults/end-date?start_date=bad", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// INDEX SERIES / FUNCTIONS
// =============================================================================

func TestIndexValuesDriveLinkedSchedule(t *testing.T) {
	env := newTestEnv(t)

	for _, v := range []IndexValueRequest{
		{PublishedOn: "2023-12-15", Value: "100"},
		{PublishedOn: "2024-06-15", Value: "110"},
	} {
		rec := env.do(t, http.MethodPut, "/api/index-values/cpi", v)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Len(t, decode[[]IndexValueDTO](t, env.do(t, http.MethodGet, "/api/index-values/cpi", nil)), 2)

	// GIVEN: A CPI-linked lease with a 4% ceiling
	body := contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")
	body["signing_date"] = "2023-12-20"
	body["linkage_type"] = "cpi"
	body["linkage_sub_type"] = "known"
	body["base_index_value"] = 100
	body["linkage_ceiling"] = 4
	rec := env.do(t, http.MethodPost, "/api/contracts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[ContractResponse](t, rec)

	// THEN: Base index date resolved, later rows capped at +4%
	assert.Equal(t, "2023-12-15", resp.Contract.BaseIndexDate)
	assert.Equal(t, "5000.00", resp.Payments[0].Amount)
	assert.Equal(t, "5200.00", resp.Payments[11].Amount)
}

func TestSetIndexValue_Rejects(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPut, "/api/index-values/none", IndexValueRequest{PublishedOn: "2024-01-15", Value: "100"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		env.do(t, http.MethodPut, "/api/index-values/cpi", IndexValueRequest{PublishedOn: "2024-01-15", Value: "-1"}).Code)
}

func TestGeneratePaymentsFunction(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/functions/generate-payments", `{
		"contract_start": "2024-01-31",
		"start_date": "2024-01-31",
		"end_date": "2024-04-30",
		"base_rent": "4000",
		"currency": "ILS",
		"payment_frequency": "monthly",
		"payment_day": 31,
		"linkage_type": "none"
	}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[lease.GenerateResponse](t, rec)
	due := make([]string, len(resp.Payments))
	for i, p := range resp.Payments {
		due[i] = p.DueDate.String()
	}
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, due)

	rec = env.do(t, http.MethodPost, "/api/functions/generate-payments", `{"start_date": "2024-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// OPS
// =============================================================================

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/contracts", contractBody("c-1", "prop-1", "2024-01-01", "2024-12-31")).Code)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `lease_payments_generated_total{service="lease-test"} 12`), body)
	assert.Contains(t, body, "http_requests_total")
}
