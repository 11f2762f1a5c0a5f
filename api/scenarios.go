/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	lease data. Each scenario goes through the same service calls a client
	would make, so the stored payment rows are exactly what the engine
	produces.

AVAILABLE SCENARIOS:

	standard-lease:   One-year monthly lease, no linkage
	cpi-linked:       CPI linkage (known index) with a ceiling and published figures
	shortened-lease:  Paid months, then the end date is moved earlier
	option-renewal:   Lease with an option period that gets exercised
	overlap-conflict: Second active lease on the same property is rejected

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Parse contract JSON via factory
 3. Create / edit through lease.Service
 4. Optionally settle payments and record index figures

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "cpi-linked"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Contract handlers
  - factory/contract.go: Contract JSON format
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/rentmate/lease-engine/lease"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, h *Handler) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "standard-lease",
			Name:        "Standard Lease",
			Description: "One-year monthly lease paid on the 1st, no index linkage",
		},
		load: loadStandardLease,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "cpi-linked",
			Name:        "CPI-Linked Lease",
			Description: "Known-index CPI linkage with a 2% ceiling and published figures",
		},
		load: loadCPILinked,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "shortened-lease",
			Name:        "Shortened Lease",
			Description: "Three paid months, then the end date moves earlier; paid rows survive",
		},
		load: loadShortenedLease,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "option-renewal",
			Name:        "Option Renewal",
			Description: "Lease with a one-year option at a higher rent, exercised",
		},
		load: loadOptionRenewal,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overlap-conflict",
			Name:        "Overlap Conflict",
			Description: "A second active lease on the same property is rejected; a draft is accepted",
		},
		load: loadOverlapConflict,
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s.ScenarioDTO)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

var errUnknownScenario = errors.New("unknown scenario")

// LoadScenarioByID resets the store and runs the named loader.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	for _, s := range scenarios {
		if s.ID != id {
			continue
		}
		if err := h.Store.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		if err := s.load(ctx, h); err != nil {
			return fmt.Errorf("scenario %s: %w", id, err)
		}
		h.mu.Lock()
		h.currentScenario = id
		h.mu.Unlock()
		return nil
	}
	return fmt.Errorf("%w: %q", errUnknownScenario, id)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadStandardLease(ctx context.Context, h *Handler) error {
	_, err := h.createFromJSON(ctx, `{
		"id": "demo-standard",
		"property_id": "prop-herzl-12",
		"tenants": [{"name": "Dana Levi", "phone": "050-1234567"}],
		"start_date": "2024-01-01",
		"rent_amount": 5000,
		"payment_frequency": "monthly",
		"payment_day": 1,
		"status": "active"
	}`)
	return err
}

func loadCPILinked(ctx context.Context, h *Handler) error {
	figures := []struct {
		date  string
		value string
	}{
		{"2023-12-15", "100.0"},
		{"2024-03-15", "101.5"},
		{"2024-06-15", "103.0"},
		{"2024-09-15", "104.2"},
	}
	for _, f := range figures {
		p := lease.IndexPoint{PublishedOn: lease.MustParseDate(f.date), Value: decimal.RequireFromString(f.value)}
		if err := h.Store.SetIndexValue(ctx, lease.LinkageCPI, p); err != nil {
			return err
		}
	}

	_, err := h.createFromJSON(ctx, `{
		"id": "demo-cpi",
		"property_id": "prop-dizengoff-80",
		"tenants": [{"name": "Yossi Cohen"}, {"name": "Noa Cohen"}],
		"start_date": "2024-01-01",
		"signing_date": "2023-12-20",
		"rent_amount": 6500,
		"payment_frequency": "monthly",
		"payment_day": 10,
		"linkage_type": "cpi",
		"linkage_sub_type": "known",
		"base_index_value": 100,
		"linkage_ceiling": 2,
		"status": "active"
	}`)
	return err
}

func loadShortenedLease(ctx context.Context, h *Handler) error {
	res, err := h.createFromJSON(ctx, `{
		"id": "demo-short",
		"property_id": "prop-rothschild-5",
		"tenants": [{"name": "Avi Mizrahi"}],
		"start_date": "2024-01-01",
		"end_date": "2024-12-31",
		"rent_amount": "4800",
		"payment_frequency": "monthly",
		"payment_day": 1,
		"status": "active"
	}`)
	if err != nil {
		return err
	}
	for _, p := range res.Payments[:3] {
		if _, err := h.Store.MarkPaid(ctx, p.ID, p.DueDate); err != nil {
			return err
		}
	}

	updated := res.Contract
	updated.EndDate = lease.MustParseDate("2024-06-30")
	_, err = h.Service.EditContract(ctx, updated.ID, updated)
	return err
}

func loadOptionRenewal(ctx context.Context, h *Handler) error {
	res, err := h.createFromJSON(ctx, `{
		"id": "demo-option",
		"property_id": "prop-ben-yehuda-33",
		"tenants": [{"name": "Michal Friedman"}],
		"start_date": "2024-01-01",
		"rent_amount": 5000,
		"payment_frequency": "quarterly",
		"payment_day": 5,
		"option_periods": [{"end_date": "2025-12-31", "rent_amount": 5300, "notice_days": 60}],
		"status": "active"
	}`)
	if err != nil {
		return err
	}
	_, err = h.Service.ExerciseOption(ctx, res.Contract.ID)
	return err
}

func loadOverlapConflict(ctx context.Context, h *Handler) error {
	if _, err := h.createFromJSON(ctx, `{
		"id": "demo-overlap-a",
		"property_id": "prop-allenby-40",
		"tenants": [{"name": "Ruth Katz"}],
		"start_date": "2024-01-01",
		"rent_amount": 5500,
		"payment_frequency": "monthly",
		"payment_day": 1,
		"status": "active"
	}`); err != nil {
		return err
	}

	// same property, overlapping dates: must be rejected while active
	_, err := h.createFromJSON(ctx, `{
		"id": "demo-overlap-b",
		"property_id": "prop-allenby-40",
		"tenants": [{"name": "Eli Ben-David"}],
		"start_date": "2024-10-01",
		"rent_amount": 5700,
		"payment_frequency": "monthly",
		"payment_day": 1,
		"status": "active"
	}`)
	if !errors.Is(err, lease.ErrOverlap) {
		return fmt.Errorf("expected overlap rejection, got %v", err)
	}

	_, err = h.createFromJSON(ctx, `{
		"id": "demo-overlap-b",
		"property_id": "prop-allenby-40",
		"tenants": [{"name": "Eli Ben-David"}],
		"start_date": "2024-10-01",
		"rent_amount": 5700,
		"payment_frequency": "monthly",
		"payment_day": 1,
		"status": "draft"
	}`)
	return err
}

func (h *Handler) createFromJSON(ctx context.Context, jsonStr string) (lease.CreateResult, error) {
	terms, err := h.Factory.ParseContract(jsonStr)
	if err != nil {
		return lease.CreateResult{}, err
	}
	return h.Service.CreateContract(ctx, terms)
}
