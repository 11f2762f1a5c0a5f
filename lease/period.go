package lease

// =============================================================================
// DATE RANGE - Inclusive [Start, End] interval of calendar days
// =============================================================================

// DateRange is an inclusive interval of days. A contract term, a generation
// window and an overlap conflict are all DateRanges.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Contains returns true if d is within [Start, End].
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Overlaps reports whether two ranges share at least one day.
// r.Overlaps(o) == o.Overlaps(r) for all ranges.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.Start.BeforeOrEqual(o.End) && r.End.AfterOrEqual(o.Start)
}

// IsValid reports whether both ends are set and End is not before Start.
func (r DateRange) IsValid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// Intersect returns the common part of two ranges and false if there is none.
func (r DateRange) Intersect(o DateRange) (DateRange, bool) {
	out := DateRange{Start: MaxDate(r.Start, o.Start), End: MinDate(r.End, o.End)}
	if out.End.Before(out.Start) {
		return DateRange{}, false
	}
	return out, true
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
