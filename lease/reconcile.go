/*
reconcile.go - Payment reconciliation on contract edits

PURPOSE:
  When a contract's end date changes, compute the delta to its payment rows
  instead of regenerating the whole schedule.

RULES:
  new end <  old end (shortening):
    Delete pending records with due date > new end.
    Paid and overdue records are never touched, whatever their date.
  new end >  old end (extension):
    Generate exactly [old end + 1 day, new end] with the contract's
    post-edit terms.
  new end == old end:
    Nothing to do.

IDEMPOTENCY:
  The plan depends only on (old end, new end, records). Computing it twice
  yields the same range; there is no cumulative drift.

EXAMPLE:
  end 2024-12-31 -> 2024-06-30:
    pending 2024-07-01 ... 2024-12-01 are deleted
    a paid record dated 2024-08-01 survives

SEE ALSO:
  - schedule.go: Generates the ToGenerate range
  - service.go: Applies the plan through the stores
*/
package lease

// ReconcilePlan is the payment delta for one end-date change.
type ReconcilePlan struct {
	ToDelete   []PaymentRecord `json:"to_delete"`
	ToGenerate *DateRange      `json:"to_generate,omitempty"`
}

// IsNoop reports whether the plan changes nothing.
func (p ReconcilePlan) IsNoop() bool {
	return len(p.ToDelete) == 0 && p.ToGenerate == nil
}

// Reconcile computes the plan for moving contractID's end date from oldEnd to
// newEnd. records may include rows of other contracts; they are ignored.
func Reconcile(oldEnd, newEnd Date, contractID ContractID, records []PaymentRecord) ReconcilePlan {
	switch {
	case newEnd.Before(oldEnd):
		var toDelete []PaymentRecord
		for _, r := range records {
			if r.ContractID != contractID || !r.IsPending() {
				continue
			}
			if r.DueDate.After(newEnd) {
				toDelete = append(toDelete, r)
			}
		}
		SortPayments(toDelete)
		return ReconcilePlan{ToDelete: toDelete}

	case newEnd.After(oldEnd):
		gap := DateRange{Start: oldEnd.AddDays(1), End: newEnd}
		return ReconcilePlan{ToGenerate: &gap}

	default:
		return ReconcilePlan{}
	}
}
