/*
indexation.go - Base index resolution and indexation bounds

PURPOSE:
  Computes the index publication date a CPI-linked contract is measured
  against, and applies ceiling/floor bounds to the percentage change used
  when rent is indexed.

PUBLICATION CONVENTION:
  Index figures are published on the 15th of each month for the previous
  month. So on the 10th of March the latest known figure is the one
  published on February 15th; on the 20th of March it is March 15th.

  known:       reference day < 15 -> 15th of the previous month
               reference day >= 15 -> 15th of the reference month
  respect_of:  15th of the month following the reference month
  base:        user-entered; never computed or overwritten

REFERENCE DATE:
  The signing date when set, otherwise the start date.

SEE ALSO:
  - schedule.go: Applies IndexBounds per due date
  - index.go: Index value lookup
*/
package lease

import "github.com/shopspring/decimal"

// PublicationDay is the day of month index figures are published.
const PublicationDay = 15

var hundred = decimal.NewFromInt(100)

// =============================================================================
// BASE INDEX DATE
// =============================================================================

// ReferenceDate returns the date the base index is resolved from.
func ReferenceDate(terms ContractTerms) Date {
	if !terms.SigningDate.IsZero() {
		return terms.SigningDate
	}
	return terms.StartDate
}

// ResolveBaseIndexDate returns the publication date of the index that applies
// on ref for the given sub type. It returns false for SubTypeBase, for an
// unknown sub type, and for a zero ref.
func ResolveBaseIndexDate(ref Date, sub LinkageSubType) (Date, bool) {
	if ref.IsZero() {
		return Date{}, false
	}
	switch sub {
	case SubTypeKnownAtSigning:
		if ref.Day() < PublicationDay {
			return NewDate(ref.Year(), ref.Month()-1, PublicationDay), true
		}
		return NewDate(ref.Year(), ref.Month(), PublicationDay), true
	case SubTypeRespectOf:
		return NewDate(ref.Year(), ref.Month()+1, PublicationDay), true
	default:
		return Date{}, false
	}
}

// ResolveIndexation fills derived linkage fields. Call it explicitly after
// the signing date, start date, sub type or linkage type changes.
//
// For known/respect_of the base index date is always recomputed and
// overwritten. A manual (base) value is left untouched, as is a contract
// without linkage.
func ResolveIndexation(terms ContractTerms) ContractTerms {
	if !terms.Linkage.Type.Enabled() || terms.Linkage.SubType == SubTypeBase {
		return terms
	}
	if d, ok := ResolveBaseIndexDate(ReferenceDate(terms), terms.Linkage.SubType); ok {
		terms.Linkage.BaseIndexDate = d
	}
	return terms
}

// =============================================================================
// BOUNDS
// =============================================================================

// IndexBounds clamps the percentage change applied at each indexation.
// A nil bound is absent.
type IndexBounds struct {
	Ceiling *decimal.Decimal
	Floor   *decimal.Decimal
}

// Bounds returns the effective bounds. A ceiling of 0 disables itself.
func (l Linkage) Bounds() IndexBounds {
	var b IndexBounds
	if l.CeilingPercent != nil && !l.CeilingPercent.IsZero() {
		c := *l.CeilingPercent
		b.Ceiling = &c
	}
	if l.FloorPercent != nil {
		f := *l.FloorPercent
		b.Floor = &f
	}
	return b
}

// Clamp bounds a percentage change.
func (b IndexBounds) Clamp(pct decimal.Decimal) decimal.Decimal {
	if b.Ceiling != nil && pct.GreaterThan(*b.Ceiling) {
		pct = *b.Ceiling
	}
	if b.Floor != nil && pct.LessThan(*b.Floor) {
		pct = *b.Floor
	}
	return pct
}

// PercentChange returns (current - base) / base * 100. A zero base yields zero.
func PercentChange(base, current decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return current.Sub(base).Div(base).Mul(hundred)
}

// ApplyPercent returns amount * (1 + pct/100), rounded to the minor unit.
func ApplyPercent(amount Money, pct decimal.Decimal) Money {
	factor := decimal.NewFromInt(1).Add(pct.Div(hundred))
	return Money{Amount: amount.Amount.Mul(factor), Currency: amount.Currency}.Rounded()
}
