package lease

import (
	"fmt"
	"strings"
)

// Validation codes reported in FieldError.Code.
const (
	CodeRequired = "required"
	CodeInvalid  = "invalid"
	CodeRange    = "out_of_range"
	CodeOrder    = "out_of_order"
)

// Validate checks terms and returns ValidationErrors listing every failed
// field, or nil. Missing values are reported, never defaulted. Call
// ResolveIndexation first so a computed base index date is present.
func (c ContractTerms) Validate() error {
	var errs ValidationErrors
	add := func(field, code, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if c.PropertyID == "" {
		add("property_id", CodeRequired, "property is required")
	}

	if len(c.Tenants) == 0 {
		add("tenants", CodeRequired, "at least one tenant is required")
	}
	for i, t := range c.Tenants {
		if strings.TrimSpace(t.Name) == "" {
			add(fmt.Sprintf("tenants[%d].name", i), CodeRequired, "tenant name is required")
		}
	}

	if c.StartDate.IsZero() {
		add("start_date", CodeRequired, "start date is required")
	}
	if c.EndDate.IsZero() {
		add("end_date", CodeRequired, "end date is required")
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		add("end_date", CodeOrder, "end date %s is before start date %s", c.EndDate, c.StartDate)
	}

	if !c.BaseRent.IsPositive() {
		add("base_rent", CodeRange, "base rent must be positive")
	}
	if c.BaseRent.Currency != "" && c.BaseRent.Currency != CurrencyILS {
		add("base_rent.currency", CodeInvalid, "unsupported currency %q", c.BaseRent.Currency)
	}

	if c.PaymentFrequency.Months() == 0 {
		add("payment_frequency", CodeInvalid, "unknown payment frequency %q", c.PaymentFrequency)
	}
	if c.PaymentDay < 1 || c.PaymentDay > 31 {
		add("payment_day", CodeRange, "payment day must be between 1 and 31")
	}

	switch c.Status {
	case StatusActive, StatusDraft, StatusArchived:
	default:
		add("status", CodeInvalid, "unknown status %q", c.Status)
	}

	c.validateLinkage(add)
	c.validateRentSteps(add)
	c.validateOptionPeriods(add)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c ContractTerms) validateLinkage(add func(field, code, format string, args ...any)) {
	l := c.Linkage
	switch l.Type {
	case "", LinkageNone:
		return
	case LinkageCPI, LinkageHousing:
	default:
		add("linkage.type", CodeInvalid, "unknown linkage type %q", l.Type)
		return
	}

	switch l.SubType {
	case SubTypeKnownAtSigning, SubTypeRespectOf, SubTypeBase:
	case "":
		add("linkage.sub_type", CodeRequired, "index type is required when linkage is enabled")
	default:
		add("linkage.sub_type", CodeInvalid, "unknown index type %q", l.SubType)
	}
	if l.BaseIndexDate.IsZero() {
		add("linkage.base_index_date", CodeRequired, "base index date is required when linkage is enabled")
	}
	if l.BaseIndexValue != nil && !l.BaseIndexValue.IsPositive() {
		add("linkage.base_index_value", CodeRange, "base index value must be positive")
	}
	b := l.Bounds()
	if b.Ceiling != nil && b.Floor != nil && b.Ceiling.LessThan(*b.Floor) {
		add("linkage.ceiling_percent", CodeRange, "ceiling %s is below floor %s", b.Ceiling, b.Floor)
	}
}

func (c ContractTerms) validateRentSteps(add func(field, code, format string, args ...any)) {
	seen := make(map[Date]bool, len(c.RentSteps))
	for i, s := range c.RentSteps {
		field := fmt.Sprintf("rent_steps[%d]", i)
		if s.EffectiveDate.IsZero() {
			add(field+".effective_date", CodeRequired, "effective date is required")
			continue
		}
		if seen[s.EffectiveDate] {
			add(field+".effective_date", CodeInvalid, "duplicate rent step on %s", s.EffectiveDate)
		}
		seen[s.EffectiveDate] = true
		if !s.Amount.IsPositive() {
			add(field+".amount", CodeRange, "rent step amount must be positive")
		}
	}
}

func (c ContractTerms) validateOptionPeriods(add func(field, code, format string, args ...any)) {
	prev := c.EndDate
	for i, op := range c.OptionPeriods {
		field := fmt.Sprintf("option_periods[%d]", i)
		if op.EndDate.IsZero() {
			add(field+".end_date", CodeRequired, "option end date is required")
			continue
		}
		if !prev.IsZero() && !op.EndDate.After(prev) {
			add(field+".end_date", CodeOrder, "option end date %s must be after %s", op.EndDate, prev)
		}
		prev = op.EndDate
		if op.RentAmount != nil && !op.RentAmount.IsPositive() {
			add(field+".rent_amount", CodeRange, "option rent must be positive")
		}
		if op.NoticeDays != nil && *op.NoticeDays < 0 {
			add(field+".notice_days", CodeRange, "notice days cannot be negative")
		}
	}
}
