package lease

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEDULE-GENERATION COLLABORATOR
// =============================================================================

// GenerateRequest is the input of the external generate-payments function.
// StartDate/EndDate bound the segment to generate; ContractStart anchors the
// payment cycles and defaults to StartDate when zero.
type GenerateRequest struct {
	ContractID       ContractID       `json:"contract_id,omitempty"`
	ContractStart    Date             `json:"contract_start"`
	StartDate        Date             `json:"start_date"`
	EndDate          Date             `json:"end_date"`
	BaseRent         decimal.Decimal  `json:"base_rent"`
	Currency         Currency         `json:"currency"`
	PaymentFrequency PaymentFrequency `json:"payment_frequency"`
	PaymentDay       int              `json:"payment_day"`
	LinkageType      LinkageType      `json:"linkage_type"`
	LinkageSubType   LinkageSubType   `json:"linkage_sub_type,omitempty"`
	BaseIndexDate    Date             `json:"base_index_date"`
	BaseIndexValue   *decimal.Decimal `json:"base_index_value,omitempty"`
	LinkageCeiling   *decimal.Decimal `json:"linkage_ceiling,omitempty"`
	LinkageFloor     *decimal.Decimal `json:"linkage_floor,omitempty"`
	RentSteps        []RentStep       `json:"rent_steps,omitempty"`
}

// GeneratedPayment is one row of a GenerateResponse.
type GeneratedPayment struct {
	DueDate Date          `json:"due_date"`
	Amount  Money         `json:"amount"`
	Status  PaymentStatus `json:"status"`
}

type GenerateResponse struct {
	Payments []GeneratedPayment `json:"payments"`
}

// ScheduleGenerator is the generate-payments function contract.
type ScheduleGenerator interface {
	GeneratePayments(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// NewGenerateRequest builds the request for the segment of terms within window.
func NewGenerateRequest(terms ContractTerms, window DateRange) GenerateRequest {
	return GenerateRequest{
		ContractID:       terms.ID,
		ContractStart:    terms.StartDate,
		StartDate:        window.Start,
		EndDate:          window.End,
		BaseRent:         terms.BaseRent.Amount,
		Currency:         terms.BaseRent.Currency,
		PaymentFrequency: terms.PaymentFrequency,
		PaymentDay:       terms.PaymentDay,
		LinkageType:      terms.Linkage.Type,
		LinkageSubType:   terms.Linkage.SubType,
		BaseIndexDate:    terms.Linkage.BaseIndexDate,
		BaseIndexValue:   terms.Linkage.BaseIndexValue,
		LinkageCeiling:   terms.Linkage.CeilingPercent,
		LinkageFloor:     terms.Linkage.FloorPercent,
		RentSteps:        terms.RentSteps,
	}
}

// Terms reconstructs the contract terms a request describes, with the
// request's EndDate as the contract end.
func (r GenerateRequest) Terms() ContractTerms {
	start := r.ContractStart
	if start.IsZero() {
		start = r.StartDate
	}
	currency := r.Currency
	if currency == "" {
		currency = CurrencyILS
	}
	return ContractTerms{
		ID:               r.ContractID,
		StartDate:        start,
		EndDate:          r.EndDate,
		BaseRent:         Money{Amount: r.BaseRent, Currency: currency},
		PaymentFrequency: r.PaymentFrequency,
		PaymentDay:       r.PaymentDay,
		Linkage: Linkage{
			Type:           r.LinkageType,
			SubType:        r.LinkageSubType,
			BaseIndexDate:  r.BaseIndexDate,
			BaseIndexValue: r.BaseIndexValue,
			CeilingPercent: r.LinkageCeiling,
			FloorPercent:   r.LinkageFloor,
		},
		RentSteps: r.RentSteps,
	}.Normalize()
}

// LocalGenerator serves the generate-payments contract in-process.
type LocalGenerator struct {
	Generator *Generator
}

func NewLocalGenerator(index IndexSeries) *LocalGenerator {
	return &LocalGenerator{Generator: NewGenerator(index)}
}

func (lg *LocalGenerator) GeneratePayments(_ context.Context, req GenerateRequest) (GenerateResponse, error) {
	terms := req.Terms()
	switch {
	case req.StartDate.IsZero() || req.EndDate.IsZero():
		return GenerateResponse{}, fmt.Errorf("generate payments: start and end date are required")
	case req.EndDate.Before(req.StartDate):
		return GenerateResponse{}, fmt.Errorf("generate payments: end date %s before start date %s", req.EndDate, req.StartDate)
	case terms.PaymentFrequency.Months() == 0:
		return GenerateResponse{}, fmt.Errorf("generate payments: unknown payment frequency %q", req.PaymentFrequency)
	case req.PaymentDay < 1 || req.PaymentDay > 31:
		return GenerateResponse{}, fmt.Errorf("generate payments: payment day %d out of range", req.PaymentDay)
	}

	records := lg.Generator.Generate(terms, DateRange{Start: req.StartDate, End: req.EndDate})
	resp := GenerateResponse{Payments: make([]GeneratedPayment, len(records))}
	for i, r := range records {
		resp.Payments[i] = GeneratedPayment{DueDate: r.DueDate, Amount: r.Amount, Status: r.Status}
	}
	return resp, nil
}
