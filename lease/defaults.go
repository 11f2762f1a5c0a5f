package lease

// =============================================================================
// FORM DEFAULTS
// =============================================================================

// DefaultEndDate is a one-year term ending the day before the anniversary.
// 2024-01-01 -> 2024-12-31; 2024-02-29 -> 2025-02-28.
func DefaultEndDate(start Date) Date {
	return start.AddYears(1).AddDays(-1)
}

// EndDateFor returns the end date a form should show. An explicit user value
// always wins; otherwise the default is derived from start. With no start
// and no explicit value it returns the zero Date.
func EndDateFor(start, current Date, explicit bool) Date {
	if explicit {
		return current
	}
	if start.IsZero() {
		return current
	}
	return DefaultEndDate(start)
}

// WithDefaultEndDate fills a missing end date with DefaultEndDate. An end
// date that is already set is kept.
func (c ContractTerms) WithDefaultEndDate() ContractTerms {
	c.EndDate = EndDateFor(c.StartDate, c.EndDate, !c.EndDate.IsZero())
	return c
}

// NewOptionPeriod returns the default next option period for terms: it ends
// one year after the previous period (or the contract) and carries the
// current base rent.
func NewOptionPeriod(terms ContractTerms) OptionPeriod {
	prev := terms.EndDate
	if n := len(terms.OptionPeriods); n > 0 {
		prev = terms.OptionPeriods[n-1].EndDate
	}
	rent := terms.BaseRent
	if rent.Currency == "" {
		rent.Currency = CurrencyILS
	}
	op := OptionPeriod{RentAmount: &rent}
	if !prev.IsZero() {
		op.EndDate = prev.AddYears(1)
	}
	return op
}

// AppendOptionPeriod returns terms with a defaulted option period appended.
func AppendOptionPeriod(terms ContractTerms) ContractTerms {
	out := terms.Clone()
	out.OptionPeriods = append(out.OptionPeriods, NewOptionPeriod(terms))
	return out
}

// ExerciseFirstOption returns terms extended through the first option
// period. When the option carries its own rent, a rent step effective the day
// after the old end date is added. The exercised option is removed.
func ExerciseFirstOption(terms ContractTerms) (ContractTerms, error) {
	if len(terms.OptionPeriods) == 0 {
		return terms, ErrNoOptionPeriod
	}
	out := terms.Clone()
	opt := out.OptionPeriods[0]
	out.OptionPeriods = out.OptionPeriods[1:]
	if opt.RentAmount != nil {
		out.RentSteps = append(out.RentSteps, RentStep{
			EffectiveDate: terms.EndDate.AddDays(1),
			Amount:        *opt.RentAmount,
		})
		out.RentSteps = out.SortedRentSteps()
	}
	out.EndDate = opt.EndDate
	return out, nil
}
