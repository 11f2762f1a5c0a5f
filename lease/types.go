/*
Package lease provides the lease financial engine.

PURPOSE:
  Turns a lease contract's raw terms (dates, base rent, payment cadence,
  index linkage, rent steps, option periods) into a deterministic,
  date-ordered payment schedule, and keeps that schedule consistent when
  the contract is edited.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal amount with a currency
  - ContractTerms: The authoritative lease definition
  - PaymentRecord: One derived row per due cycle
  - Linkage: CPI / housing-index indexation rules

DESIGN PRINCIPLES:
  1. Determinism: Same terms + same range = same schedule, always
  2. Precision: Uses decimal.Decimal, rounds half-up to the minor unit
  3. Immutability of settled rows: Paid records are never deleted or regenerated
  4. Explicit time: No wall-clock reads; "today" is injected through a Clock

USAGE:
  terms := lease.ContractTerms{
      PropertyID:       "prop-1",
      Tenants:          []lease.Tenant{{Name: "Dana"}},
      StartDate:        lease.MustParseDate("2024-01-01"),
      EndDate:          lease.MustParseDate("2024-12-31"),
      BaseRent:         lease.NewMoney(5000, lease.CurrencyILS),
      PaymentFrequency: lease.FrequencyMonthly,
      PaymentDay:       1,
  }
  payments := lease.NewGenerator(nil).Generate(terms, terms.Term())

SEE ALSO:
  - schedule.go: Rent schedule generation
  - reconcile.go: Edit reconciliation
  - service.go: The validate → resolve → reconcile → persist workflow
*/
package lease

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

type Currency string

// CurrencyILS is the single supported currency.
const CurrencyILS Currency = "ILS"

// MinorUnitPlaces is the number of decimal places amounts are rounded to.
const MinorUnitPlaces = 2

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency Currency        `json:"currency"`
}

func NewMoney(amount float64, currency Currency) Money {
	return Money{Amount: decimal.NewFromFloat(amount), Currency: currency}
}

func NewMoneyFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Amount: d, Currency: currency}, nil
}

func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// Rounded returns the amount rounded half-up to the minor currency unit.
// Amounts in this domain are never negative, so half-away-from-zero is half-up.
func (m Money) Rounded() Money {
	return Money{Amount: m.Amount.Round(MinorUnitPlaces), Currency: m.Currency}
}

func (m Money) String() string {
	return m.Amount.StringFixed(MinorUnitPlaces) + " " + string(m.Currency)
}

// =============================================================================
// ENUMS
// =============================================================================

type PaymentFrequency string

const (
	FrequencyMonthly   PaymentFrequency = "monthly"
	FrequencyQuarterly PaymentFrequency = "quarterly"
	FrequencyAnnually  PaymentFrequency = "annually"
)

// Months returns the cadence length in months, or 0 for an unknown frequency.
func (f PaymentFrequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyAnnually:
		return 12
	default:
		return 0
	}
}

type LinkageType string

const (
	LinkageNone    LinkageType = "none"
	LinkageCPI     LinkageType = "cpi"
	LinkageHousing LinkageType = "housing"
)

// Enabled reports whether rent is tied to an index.
func (t LinkageType) Enabled() bool { return t != "" && t != LinkageNone }

type LinkageSubType string

const (
	// SubTypeKnownAtSigning: the index already published on the reference date.
	SubTypeKnownAtSigning LinkageSubType = "known"
	// SubTypeRespectOf: the index for the reference month, published the month after.
	SubTypeRespectOf LinkageSubType = "respect_of"
	// SubTypeBase: base index date/value fixed manually by the user.
	SubTypeBase LinkageSubType = "base"
)

type ContractStatus string

const (
	StatusActive   ContractStatus = "active"
	StatusDraft    ContractStatus = "draft"
	StatusArchived ContractStatus = "archived"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

type Occupancy string

const (
	Occupied Occupancy = "occupied"
	Vacant   Occupancy = "vacant"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type PropertyID string
type PaymentID string
type UserID string

// =============================================================================
// CONTRACT TERMS
// =============================================================================

type Tenant struct {
	Name     string `json:"name"`
	IDNumber string `json:"id_number,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Linkage ties rent to a published index.
type Linkage struct {
	Type           LinkageType      `json:"type"`
	SubType        LinkageSubType   `json:"sub_type,omitempty"`
	BaseIndexDate  Date             `json:"base_index_date"`
	BaseIndexValue *decimal.Decimal `json:"base_index_value,omitempty"`
	CeilingPercent *decimal.Decimal `json:"ceiling_percent,omitempty"`
	FloorPercent   *decimal.Decimal `json:"floor_percent,omitempty"`
}

// RentStep replaces the base rent from EffectiveDate forward.
type RentStep struct {
	EffectiveDate Date  `json:"effective_date"`
	Amount        Money `json:"amount"`
}

// OptionPeriod is an optional extension interval ending on EndDate.
// It starts the day after the previous period (or the contract) ends.
type OptionPeriod struct {
	EndDate    Date   `json:"end_date"`
	RentAmount *Money `json:"rent_amount,omitempty"`
	NoticeDays *int   `json:"notice_days,omitempty"`
}

type ContractTerms struct {
	ID               ContractID       `json:"id"`
	PropertyID       PropertyID       `json:"property_id"`
	UserID           UserID           `json:"user_id,omitempty"`
	Tenants          []Tenant         `json:"tenants"`
	StartDate        Date             `json:"start_date"`
	EndDate          Date             `json:"end_date"`
	SigningDate      Date             `json:"signing_date"`
	BaseRent         Money            `json:"base_rent"`
	PaymentFrequency PaymentFrequency `json:"payment_frequency"`
	PaymentDay       int              `json:"payment_day"`
	Linkage          Linkage          `json:"linkage"`
	RentSteps        []RentStep       `json:"rent_steps,omitempty"`
	OptionPeriods    []OptionPeriod   `json:"option_periods,omitempty"`
	Status           ContractStatus   `json:"status"`
}

// Term returns the contract's [StartDate, EndDate] range.
func (c ContractTerms) Term() DateRange {
	return DateRange{Start: c.StartDate, End: c.EndDate}
}

func (c ContractTerms) IsActive() bool { return c.Status == StatusActive }

// SortedRentSteps returns a copy of the rent steps ordered by effective date.
func (c ContractTerms) SortedRentSteps() []RentStep {
	steps := make([]RentStep, len(c.RentSteps))
	copy(steps, c.RentSteps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].EffectiveDate.Before(steps[j].EffectiveDate)
	})
	return steps
}

// Normalize sorts rent steps by date and fills the default currency.
// It does not change any user-entered value.
func (c ContractTerms) Normalize() ContractTerms {
	c.RentSteps = c.SortedRentSteps()
	if c.BaseRent.Currency == "" {
		c.BaseRent.Currency = CurrencyILS
	}
	for i := range c.RentSteps {
		if c.RentSteps[i].Amount.Currency == "" {
			c.RentSteps[i].Amount.Currency = c.BaseRent.Currency
		}
	}
	if c.Linkage.Type == "" {
		c.Linkage.Type = LinkageNone
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	return c
}

// Clone returns a deep copy so callers can edit terms without aliasing slices.
func (c ContractTerms) Clone() ContractTerms {
	out := c
	out.Tenants = append([]Tenant(nil), c.Tenants...)
	out.RentSteps = append([]RentStep(nil), c.RentSteps...)
	out.OptionPeriods = append([]OptionPeriod(nil), c.OptionPeriods...)
	return out
}

// =============================================================================
// PAYMENT RECORD
// =============================================================================

type PaymentRecord struct {
	ID         PaymentID     `json:"id"`
	ContractID ContractID    `json:"contract_id"`
	DueDate    Date          `json:"due_date"`
	Amount     Money         `json:"amount"`
	Status     PaymentStatus `json:"status"`
	PaidAt     Date          `json:"paid_at"`
}

// IsPending reports whether reconciliation may delete the record.
// Paid and overdue records are never touched.
func (p PaymentRecord) IsPending() bool { return p.Status == PaymentPending }

// SortPayments orders records by due date.
func SortPayments(records []PaymentRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DueDate.Before(records[j].DueDate)
	})
}
