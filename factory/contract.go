/*
Package factory provides JSON to Go contract conversion.

PURPOSE:
  Converts the flat contract form payload (the shape a rental-management
  UI submits) into lease.ContractTerms, and back. Dates arrive as
  "YYYY-MM-DD" strings and amounts as numbers or numeric strings; anything
  unparseable is reported as a field error rather than dropped.

JSON SCHEMA:
  {
    "property_id": "prop-1",
    "tenants": [{"name": "Dana Levi", "phone": "050-1234567"}],
    "start_date": "2024-01-01",
    "end_date": "2024-12-31",
    "signing_date": "2023-12-20",
    "rent_amount": 5000,
    "currency": "ILS",
    "payment_frequency": "monthly",
    "payment_day": 1,
    "linkage_type": "cpi",
    "linkage_sub_type": "known",
    "linkage_ceiling": 4,
    "linkage_floor": 0,
    "rent_steps": [{"effective_date": "2024-07-01", "amount": 5200}],
    "option_periods": [{"end_date": "2025-12-31", "rent_amount": 5500, "notice_days": 60}],
    "status": "active"
  }

DEFAULTS:
  - end_date: left empty when omitted; creation fills the one-year default
    (lease.ContractTerms.WithDefaultEndDate), edits keep the stored date
  - currency: the factory's Currency (ILS unless configured)
  - payment_frequency labels are case-insensitive ("Monthly" == "monthly")

USAGE:
  f := factory.NewContractFactory()
  terms, err := f.ParseContract(jsonString)

SEE ALSO:
  - lease/types.go: ContractTerms definition
  - lease/defaults.go: Default end date rule
  - internal/config/config.go: currency setting
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rentmate/lease-engine/lease"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ContractJSON is the flat form representation of a contract.
type ContractJSON struct {
	ID               string             `json:"id,omitempty"`
	PropertyID       string             `json:"property_id"`
	UserID           string             `json:"user_id,omitempty"`
	Tenants          []lease.Tenant     `json:"tenants"`
	StartDate        string             `json:"start_date"`
	EndDate          string             `json:"end_date,omitempty"`
	SigningDate      string             `json:"signing_date,omitempty"`
	RentAmount       Number             `json:"rent_amount"`
	Currency         string             `json:"currency,omitempty"`
	PaymentFrequency string             `json:"payment_frequency"`
	PaymentDay       int                `json:"payment_day"`
	LinkageType      string             `json:"linkage_type,omitempty"`
	LinkageSubType   string             `json:"linkage_sub_type,omitempty"`
	BaseIndexDate    string             `json:"base_index_date,omitempty"`
	BaseIndexValue   Number             `json:"base_index_value,omitempty"`
	LinkageCeiling   Number             `json:"linkage_ceiling,omitempty"`
	LinkageFloor     Number             `json:"linkage_floor,omitempty"`
	RentSteps        []RentStepJSON     `json:"rent_steps,omitempty"`
	OptionPeriods    []OptionPeriodJSON `json:"option_periods,omitempty"`
	Status           string             `json:"status,omitempty"`
}

// RentStepJSON represents a scheduled rent change.
type RentStepJSON struct {
	EffectiveDate string `json:"effective_date"`
	Amount        Number `json:"amount"`
}

// OptionPeriodJSON represents an extension option.
type OptionPeriodJSON struct {
	EndDate    string `json:"end_date"`
	RentAmount Number `json:"rent_amount,omitempty"`
	NoticeDays *int   `json:"notice_days,omitempty"`
}

// Number accepts a JSON number, a numeric string, "" or null. The raw text
// is kept so parse errors can name the offending value.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(strings.TrimSpace(s))
		return nil
	}
	*n = Number(b)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return []byte(n), nil
}

// Decimal parses the number. An empty Number is an error.
func (n Number) Decimal() (decimal.Decimal, error) {
	if n == "" {
		return decimal.Decimal{}, fmt.Errorf("number is required")
	}
	return decimal.NewFromString(string(n))
}

// NumberOf renders a decimal as a Number.
func NumberOf(d decimal.Decimal) Number { return Number(d.String()) }

func numberPtr(d *decimal.Decimal) Number {
	if d == nil {
		return ""
	}
	return NumberOf(*d)
}

// =============================================================================
// CONTRACT FACTORY
// =============================================================================

// ContractFactory converts contract JSON to lease terms.
type ContractFactory struct {
	// Currency applies to amounts when the payload names none.
	Currency lease.Currency
}

func NewContractFactory() *ContractFactory {
	return &ContractFactory{Currency: lease.CurrencyILS}
}

// WithCurrency sets the default currency. An empty value keeps the current one.
func (f *ContractFactory) WithCurrency(c lease.Currency) *ContractFactory {
	if c = lease.Currency(strings.ToUpper(strings.TrimSpace(string(c)))); c != "" {
		f.Currency = c
	}
	return f
}

// ParseContract parses a JSON string into contract terms.
func (f *ContractFactory) ParseContract(jsonStr string) (lease.ContractTerms, error) {
	var cj ContractJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return lease.ContractTerms{}, fmt.Errorf("failed to parse contract JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts the form payload to terms. Field-level parse failures are
// returned together as lease.ValidationErrors.
func (f *ContractFactory) FromJSON(cj ContractJSON) (lease.ContractTerms, error) {
	p := &parser{}

	currency := lease.Currency(strings.ToUpper(strings.TrimSpace(cj.Currency)))
	if currency == "" {
		currency = f.Currency
	}
	if currency == "" {
		currency = lease.CurrencyILS
	}

	terms := lease.ContractTerms{
		ID:               lease.ContractID(cj.ID),
		PropertyID:       lease.PropertyID(cj.PropertyID),
		UserID:           lease.UserID(cj.UserID),
		Tenants:          cj.Tenants,
		StartDate:        p.date("start_date", cj.StartDate),
		EndDate:          p.date("end_date", cj.EndDate),
		SigningDate:      p.date("signing_date", cj.SigningDate),
		PaymentFrequency: ParseFrequency(cj.PaymentFrequency),
		PaymentDay:       cj.PaymentDay,
		Status:           lease.ContractStatus(strings.ToLower(strings.TrimSpace(cj.Status))),
		Linkage: lease.Linkage{
			Type:           ParseLinkageType(cj.LinkageType),
			SubType:        ParseLinkageSubType(cj.LinkageSubType),
			BaseIndexDate:  p.date("base_index_date", cj.BaseIndexDate),
			BaseIndexValue: p.optionalDecimal("base_index_value", cj.BaseIndexValue),
			CeilingPercent: p.optionalDecimal("linkage_ceiling", cj.LinkageCeiling),
			FloorPercent:   p.optionalDecimal("linkage_floor", cj.LinkageFloor),
		},
	}
	if rent := p.optionalDecimal("rent_amount", cj.RentAmount); rent != nil {
		terms.BaseRent = lease.Money{Amount: *rent, Currency: currency}
	} else {
		terms.BaseRent = lease.Money{Currency: currency}
	}

	for i, sj := range cj.RentSteps {
		field := fmt.Sprintf("rent_steps[%d]", i)
		step := lease.RentStep{
			EffectiveDate: p.date(field+".effective_date", sj.EffectiveDate),
			Amount:        lease.Money{Currency: currency},
		}
		if amt := p.optionalDecimal(field+".amount", sj.Amount); amt != nil {
			step.Amount.Amount = *amt
		}
		terms.RentSteps = append(terms.RentSteps, step)
	}

	for i, oj := range cj.OptionPeriods {
		field := fmt.Sprintf("option_periods[%d]", i)
		op := lease.OptionPeriod{
			EndDate:    p.date(field+".end_date", oj.EndDate),
			NoticeDays: oj.NoticeDays,
		}
		if amt := p.optionalDecimal(field+".rent_amount", oj.RentAmount); amt != nil {
			op.RentAmount = &lease.Money{Amount: *amt, Currency: currency}
		}
		terms.OptionPeriods = append(terms.OptionPeriods, op)
	}

	if len(p.errs) > 0 {
		return terms, p.errs
	}
	return terms.Normalize(), nil
}

// ToJSON converts terms to the form payload.
func (f *ContractFactory) ToJSON(c lease.ContractTerms) ContractJSON {
	cj := ContractJSON{
		ID:               string(c.ID),
		PropertyID:       string(c.PropertyID),
		UserID:           string(c.UserID),
		Tenants:          c.Tenants,
		StartDate:        dateString(c.StartDate),
		EndDate:          dateString(c.EndDate),
		SigningDate:      dateString(c.SigningDate),
		RentAmount:       NumberOf(c.BaseRent.Amount),
		Currency:         string(c.BaseRent.Currency),
		PaymentFrequency: string(c.PaymentFrequency),
		PaymentDay:       c.PaymentDay,
		LinkageType:      string(c.Linkage.Type),
		LinkageSubType:   string(c.Linkage.SubType),
		BaseIndexDate:    dateString(c.Linkage.BaseIndexDate),
		BaseIndexValue:   numberPtr(c.Linkage.BaseIndexValue),
		LinkageCeiling:   numberPtr(c.Linkage.CeilingPercent),
		LinkageFloor:     numberPtr(c.Linkage.FloorPercent),
		Status:           string(c.Status),
	}
	for _, s := range c.RentSteps {
		cj.RentSteps = append(cj.RentSteps, RentStepJSON{
			EffectiveDate: dateString(s.EffectiveDate),
			Amount:        NumberOf(s.Amount.Amount),
		})
	}
	for _, op := range c.OptionPeriods {
		oj := OptionPeriodJSON{EndDate: dateString(op.EndDate), NoticeDays: op.NoticeDays}
		if op.RentAmount != nil {
			oj.RentAmount = NumberOf(op.RentAmount.Amount)
		}
		cj.OptionPeriods = append(cj.OptionPeriods, oj)
	}
	return cj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// ParseFrequency accepts lowercase codes and display labels.
func ParseFrequency(s string) lease.PaymentFrequency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return lease.FrequencyMonthly
	case "quarterly":
		return lease.FrequencyQuarterly
	case "annually", "annual", "yearly":
		return lease.FrequencyAnnually
	default:
		return lease.PaymentFrequency(s)
	}
}

func ParseLinkageType(s string) lease.LinkageType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return lease.LinkageNone
	case "cpi":
		return lease.LinkageCPI
	case "housing", "housing_services":
		return lease.LinkageHousing
	default:
		return lease.LinkageType(s)
	}
}

func ParseLinkageSubType(s string) lease.LinkageSubType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "known", "known_at_signing":
		return lease.SubTypeKnownAtSigning
	case "respect_of", "in_respect_of":
		return lease.SubTypeRespectOf
	case "base":
		return lease.SubTypeBase
	default:
		return lease.LinkageSubType(s)
	}
}

type parser struct {
	errs lease.ValidationErrors
}

func (p *parser) date(field, s string) lease.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return lease.Date{}
	}
	d, err := lease.ParseDate(s)
	if err != nil {
		p.errs = append(p.errs, lease.FieldError{
			Field: field, Code: lease.CodeInvalid, Message: fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s),
		})
	}
	return d
}

func (p *parser) optionalDecimal(field string, n Number) *decimal.Decimal {
	if n == "" {
		return nil
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		p.errs = append(p.errs, lease.FieldError{
			Field: field, Code: lease.CodeInvalid, Message: fmt.Sprintf("invalid number %q", string(n)),
		})
		return nil
	}
	return &d
}

func dateString(d lease.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
