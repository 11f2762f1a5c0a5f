/*
schedule.go - Rent schedule generation

PURPOSE:
  Produces the ordered due-date/amount pairs of a contract for a date range.
  Used for the full schedule when a contract is created, and for the gap
  segment when a contract's end date is extended.

CYCLES:
  Cycles are anchored on the start date's month and step by the payment
  frequency (1, 3 or 12 months). Each cycle's due date is the payment day of
  the cycle's first month, clamped to the last day of that month. When the
  first cycle's due date would fall before the start date, it is due on the
  start date itself.

  start=2024-01-01 end=2024-12-31 day=1 monthly:
    2024-01-01, 2024-02-01, ... 2024-12-01  (12 records)

  start=2024-01-31 day=31 monthly:
    2024-01-31, 2024-02-29, 2024-03-31, 2024-04-30, ...

RANGE:
  Only due dates within [max(from, start), min(to, end)] are emitted. Cycle
  positions never depend on the range, so generating [a, b] then [b+1, c]
  yields exactly the records of [a, c].

AMOUNT:
  1. Base: the latest rent step with effective date <= due date, else base rent
  2. Linkage: percent change of the index known for the due date vs. the base
     index, clamped to [floor, ceiling], applied to the base amount
  3. Rounded half-up to the minor currency unit

SEE ALSO:
  - indexation.go: Base index date and bounds
  - reconcile.go: Decides which range to generate on edits
*/
package lease

import "github.com/shopspring/decimal"

// =============================================================================
// GENERATOR
// =============================================================================

// Generator builds payment schedules. Index may be nil, in which case linked
// contracts are scheduled at their unindexed amounts.
type Generator struct {
	Index IndexSeries
}

func NewGenerator(index IndexSeries) *Generator {
	return &Generator{Index: index}
}

// Generate returns pending records for every due date of terms within window.
// Records are strictly increasing by due date and carry no ID.
func (g *Generator) Generate(terms ContractTerms, window DateRange) []PaymentRecord {
	dueDates := DueDates(terms, window)
	if len(dueDates) == 0 {
		return nil
	}

	steps := terms.SortedRentSteps()
	records := make([]PaymentRecord, 0, len(dueDates))
	for _, due := range dueDates {
		records = append(records, PaymentRecord{
			ContractID: terms.ID,
			DueDate:    due,
			Amount:     g.amountFor(terms, steps, due),
			Status:     PaymentPending,
		})
	}
	return records
}

// DueDates returns the cycle due dates of terms that fall within window.
func DueDates(terms ContractTerms, window DateRange) []Date {
	step := terms.PaymentFrequency.Months()
	if step == 0 || !terms.Term().IsValid() {
		return nil
	}
	bounds, ok := window.Intersect(terms.Term())
	if !ok {
		return nil
	}

	anchor := StartOfMonth(terms.StartDate.Year(), terms.StartDate.Month())
	// skip whole cycles that end before the window
	k := 0
	if skip := MonthsBetween(anchor, bounds.Start)/step - 1; skip > 0 {
		k = skip
	}

	var dates []Date
	for ; ; k++ {
		month := anchor.AddMonths(k * step)
		due := DayInMonth(month.Year(), month.Month(), terms.PaymentDay)
		if due.Before(terms.StartDate) {
			due = terms.StartDate
		}
		if due.After(bounds.End) {
			break
		}
		if due.AfterOrEqual(bounds.Start) {
			dates = append(dates, due)
		}
	}
	return dates
}

// BaseAmountOn returns the unindexed rent applicable on date.
// steps must be sorted by effective date.
func BaseAmountOn(terms ContractTerms, steps []RentStep, on Date) Money {
	amount := terms.BaseRent
	for _, s := range steps {
		if s.EffectiveDate.After(on) {
			break
		}
		amount = s.Amount
	}
	if amount.Currency == "" {
		amount.Currency = terms.BaseRent.Currency
	}
	return amount
}

func (g *Generator) amountFor(terms ContractTerms, steps []RentStep, due Date) Money {
	base := BaseAmountOn(terms, steps, due)
	if !terms.Linkage.Type.Enabled() || g.Index == nil {
		return base.Rounded()
	}
	pct, ok := g.indexChange(terms.Linkage, due)
	if !ok {
		return base.Rounded()
	}
	return ApplyPercent(base, terms.Linkage.Bounds().Clamp(pct))
}

// indexChange returns the percentage change of the index that applies on
// due relative to the contract's base index.
func (g *Generator) indexChange(l Linkage, due Date) (pctChange decimal.Decimal, ok bool) {
	var base decimal.Decimal
	switch {
	case l.BaseIndexValue != nil:
		base = *l.BaseIndexValue
	case !l.BaseIndexDate.IsZero():
		base, ok = g.Index.IndexValue(l.Type, l.BaseIndexDate)
		if !ok {
			return decimal.Decimal{}, false
		}
	default:
		return decimal.Decimal{}, false
	}

	sub := l.SubType
	if sub == SubTypeBase || sub == "" {
		sub = SubTypeKnownAtSigning
	}
	publication, _ := ResolveBaseIndexDate(due, sub)
	current, ok := g.Index.IndexValue(l.Type, publication)
	if !ok {
		return decimal.Decimal{}, false
	}
	return PercentChange(base, current), true
}
