/*
handlers.go - HTTP API handlers for the lease engine

PURPOSE:
  Exposes the lease engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to lease.Service.

ENDPOINTS:
  Contracts:
    POST   /api/contracts                          Create contract + full schedule
    GET    /api/contracts/{id}                     Get contract
    PUT    /api/contracts/{id}                     Edit contract, reconcile payments
    POST   /api/contracts/{id}/options/exercise    Extend through first option period
    GET    /api/contracts/{id}/payments            List payment rows
    POST   /api/contracts/{id}/payments/generate   Retry generation for a range
    GET    /api/properties/{id}/contracts          Contracts of a property

  Payments:
    POST   /api/payments/{id}/paid                 Mark a payment paid

  Form helpers:
    POST   /api/overlap/check                      Overlap validation without saving
    POST   /api/indexation/resolve                 Base index date for a sub type
    GET    /api/defaults/end-date?start_date=      Default one-year end date

  Index series / properties:
    GET    /api/index-values/{type}                Published figures
    PUT    /api/index-values/{type}                Record a figure
    GET    /api/properties/{id}                    Property occupancy
    POST   /api/properties/{id}/occupancy/sync     Recompute occupancy

  Functions:
    POST   /api/functions/generate-payments        The generate-payments contract

ERROR HANDLING:
  - 400: Validation errors (with field list), malformed input
  - 404: Contract, payment or property not found
  - 409: Overlap with an active contract, paid payment, no option period
  - 502: Contract saved but payment rows out of sync (body carries the
         saved contract and the range to retry)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - lease/service.go: The create/edit workflow
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rentmate/lease-engine/factory"
	"github.com/rentmate/lease-engine/lease"
	"github.com/rentmate/lease-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *lease.Service
	Store     *sqlite.Store
	Factory   *factory.ContractFactory
	Scheduler *OverdueScheduler // optional
	Logger    *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. logger may be nil.
func NewHandler(svc *lease.Service, store *sqlite.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service: svc,
		Store:   store,
		Factory: factory.NewContractFactory(),
		Logger:  logger,
	}
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

// CreateContract validates and saves a contract and generates its schedule.
// POST /api/contracts
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	terms, ok := h.decodeContract(w, r)
	if !ok {
		return
	}

	res, err := h.Service.CreateContract(r.Context(), terms)
	resp := ContractResponse{
		Contract:  h.Factory.ToJSON(res.Contract),
		Payments:  toPaymentDTOs(res.Payments),
		Occupancy: string(res.Occupancy),
		Inserted:  len(res.Payments),
	}
	if err != nil {
		h.writeServiceError(w, r, err, &resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetContract returns a contract.
// GET /api/contracts/{id}
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))

	c, err := h.Store.GetContract(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ContractResponse{Contract: h.Factory.ToJSON(c)})
}

// UpdateContract replaces a contract's terms and reconciles its payments.
// PUT /api/contracts/{id}
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))
	terms, ok := h.decodeContract(w, r)
	if !ok {
		return
	}

	res, err := h.Service.EditContract(r.Context(), id, terms)
	h.writeEditResult(w, r, res, err)
}

// ExerciseOption extends a contract through its first option period.
// POST /api/contracts/{id}/options/exercise
func (h *Handler) ExerciseOption(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))

	res, err := h.Service.ExerciseOption(r.Context(), id)
	h.writeEditResult(w, r, res, err)
}

// ListPropertyContracts returns every contract of a property.
// GET /api/properties/{id}/contracts
func (h *Handler) ListPropertyContracts(w http.ResponseWriter, r *http.Request) {
	id := lease.PropertyID(chi.URLParam(r, "id"))

	contracts, err := h.Store.ListContracts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}
	out := make([]factory.ContractJSON, len(contracts))
	for i, c := range contracts {
		out[i] = h.Factory.ToJSON(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeEditResult(w http.ResponseWriter, r *http.Request, res lease.EditResult, err error) {
	resp := ContractResponse{
		Contract:  h.Factory.ToJSON(res.Contract),
		Occupancy: string(res.Occupancy),
		Inserted:  res.Inserted,
		Deleted:   res.Deleted,
	}
	if err != nil {
		h.writeServiceError(w, r, err, &resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decodeContract(w http.ResponseWriter, r *http.Request) (lease.ContractTerms, bool) {
	var cj factory.ContractJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return lease.ContractTerms{}, false
	}
	terms, err := h.Factory.FromJSON(cj)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return lease.ContractTerms{}, false
	}
	return terms, true
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns the payment rows of a contract ordered by due date.
// GET /api/contracts/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetContract(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	records, err := h.Store.ListPayments(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(records))
}

// GenerateRange retries payment generation after a schedule sync failure.
// POST /api/contracts/{id}/payments/generate
func (h *Handler) GenerateRange(w http.ResponseWriter, r *http.Request) {
	id := lease.ContractID(chi.URLParam(r, "id"))

	var req GenerateRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := lease.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := lease.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}
	window := lease.DateRange{Start: start, End: end}
	if !window.IsValid() {
		writeError(w, http.StatusBadRequest, "end_date must not precede start_date", nil)
		return
	}

	n, err := h.Service.RetryGeneration(r.Context(), id, window)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, GenerateRangeResponse{ContractID: string(id), Inserted: n})
}

// MarkPaid settles a pending or overdue payment.
// POST /api/payments/{id}/paid
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id := lease.PaymentID(chi.URLParam(r, "id"))

	var req MarkPaidRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	paidOn := h.Service.Clock.Today()
	if req.PaidOn != "" {
		d, err := lease.ParseDate(req.PaidOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_on", err)
			return
		}
		paidOn = d
	}

	rec, err := h.Store.MarkPaid(r.Context(), id, paidOn)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(rec))
}

// =============================================================================
// FORM HELPER HANDLERS
// =============================================================================

// CheckOverlap runs the overlap validator without saving anything.
// POST /api/overlap/check
func (h *Handler) CheckOverlap(w http.ResponseWriter, r *http.Request) {
	var req OverlapCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PropertyID == "" {
		writeError(w, http.StatusBadRequest, "property_id is required", nil)
		return
	}
	start, err := lease.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	end, err := lease.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date", err)
		return
	}

	res, err := h.Service.CheckOverlap(r.Context(), lease.PropertyID(req.PropertyID),
		lease.DateRange{Start: start, End: end}, lease.ContractID(req.ExcludeContractID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check overlap", err)
		return
	}

	resp := OverlapCheckResponse{OK: res.OK}
	if res.Conflict != nil {
		resp.Conflict = &ConflictDTO{
			ContractID: string(res.Conflict.ContractID),
			StartDate:  res.Conflict.Range.Start.String(),
			EndDate:    res.Conflict.Range.End.String(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResolveIndexation returns the base index date for the form's current fields.
// POST /api/indexation/resolve
func (h *Handler) ResolveIndexation(w http.ResponseWriter, r *http.Request) {
	var req ResolveIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var terms lease.ContractTerms
	var err error
	if req.SigningDate != "" {
		if terms.SigningDate, err = lease.ParseDate(req.SigningDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid signing_date", err)
			return
		}
	}
	if req.StartDate != "" {
		if terms.StartDate, err = lease.ParseDate(req.StartDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date", err)
			return
		}
	}

	ref := lease.ReferenceDate(terms)
	d, ok := lease.ResolveBaseIndexDate(ref, factory.ParseLinkageSubType(req.SubType))
	resp := ResolveIndexResponse{Resolved: ok, ReferenceDate: ref.String()}
	if ok {
		resp.BaseIndexDate = d.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// DefaultEndDate returns the one-year default end date for a start date.
// GET /api/defaults/end-date?start_date=YYYY-MM-DD
func (h *Handler) DefaultEndDate(w http.ResponseWriter, r *http.Request) {
	start, err := lease.ParseDate(r.URL.Query().Get("start_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}
	writeJSON(w, http.StatusOK, DefaultEndDateResponse{
		StartDate: start.String(),
		EndDate:   lease.DefaultEndDate(start).String(),
	})
}

// =============================================================================
// INDEX SERIES HANDLERS
// =============================================================================

// ListIndexValues returns the published figures of an index.
// GET /api/index-values/{type}
func (h *Handler) ListIndexValues(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	points, err := h.Store.ListIndexValues(r.Context(), index)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list index values", err)
		return
	}
	dtos := make([]IndexValueDTO, len(points))
	for i, p := range points {
		dtos[i] = IndexValueDTO{PublishedOn: p.PublishedOn.String(), Value: p.Value.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetIndexValue records one published figure.
// PUT /api/index-values/{type}
func (h *Handler) SetIndexValue(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var req IndexValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	published, err := lease.ParseDate(req.PublishedOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid published_on", err)
		return
	}
	value, err := req.Value.Decimal()
	if err != nil || !value.IsPositive() {
		writeError(w, http.StatusBadRequest, "value must be a positive number", err)
		return
	}

	if err := h.Store.SetIndexValue(r.Context(), index, lease.IndexPoint{PublishedOn: published, Value: value}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save index value", err)
		return
	}
	writeJSON(w, http.StatusOK, IndexValueDTO{PublishedOn: published.String(), Value: value.String()})
}

func indexParam(w http.ResponseWriter, r *http.Request) (lease.LinkageType, bool) {
	index := factory.ParseLinkageType(chi.URLParam(r, "type"))
	if !index.Enabled() {
		writeError(w, http.StatusBadRequest, "Unknown index type", nil)
		return "", false
	}
	return index, true
}

// =============================================================================
// PROPERTY HANDLERS
// =============================================================================

// GetProperty returns a property's occupancy flag.
// GET /api/properties/{id}
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProperty(r.Context(), lease.PropertyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyDTO(p))
}

// SyncOccupancy recomputes a property's occupancy from its active contracts.
// POST /api/properties/{id}/occupancy/sync
func (h *Handler) SyncOccupancy(w http.ResponseWriter, r *http.Request) {
	id := lease.PropertyID(chi.URLParam(r, "id"))

	if _, err := h.Store.SyncOccupancyStatus(r.Context(), id, ""); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sync occupancy", err)
		return
	}
	p, err := h.Store.GetProperty(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyDTO(p))
}

// =============================================================================
// FUNCTION HANDLERS
// =============================================================================

// GeneratePayments serves the generate-payments function contract.
// POST /api/functions/generate-payments
func (h *Handler) GeneratePayments(w http.ResponseWriter, r *http.Request) {
	var req lease.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	resp, err := h.Service.Generator.GeneratePayments(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to generate payments", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SCHEDULER HANDLERS
// =============================================================================

// ListSchedulerRuns returns recent background sweeps.
// GET /api/scheduler/runs
func (h *Handler) ListSchedulerRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListSchedulerRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list scheduler runs", err)
		return
	}
	dtos := make([]SchedulerRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSchedulerRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerSweep runs the overdue and occupancy sweep immediately.
// POST /api/scheduler/run
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	runs := h.Scheduler.RunNow(r.Context())
	dtos := make([]SchedulerRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSchedulerRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health reports whether the database is reachable.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "db": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeServiceError maps engine errors to HTTP statuses. body, when non-nil,
// is sent with a 502 for schedule sync failures since the contract was saved.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, body *ContractResponse) {
	var (
		verrs   lease.ValidationErrors
		overlap *lease.OverlapError
		syncErr *lease.ScheduleSyncError
	)
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid contract terms", Fields: verrs})
	case errors.As(err, &overlap):
		writeError(w, http.StatusConflict, "Contract dates overlap an active contract", err)
	case errors.As(err, &syncErr):
		if body == nil {
			writeError(w, http.StatusBadGateway, "Payment schedule out of sync", err)
			return
		}
		body.SyncError = toSyncErrorDTO(syncErr)
		writeJSON(w, http.StatusBadGateway, body)
	case lease.IsNotFound(err):
		writeError(w, http.StatusNotFound, capitalize(notFoundMessage(err)), nil)
	case lease.IsClientError(err):
		writeError(w, http.StatusConflict, capitalize(err.Error()), nil)
	default:
		h.Logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func notFoundMessage(err error) string {
	for _, target := range []error{lease.ErrContractNotFound, lease.ErrPaymentNotFound, lease.ErrPropertyNotFound} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
