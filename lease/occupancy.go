package lease

// ComputeOccupancy reports a property as occupied iff at least one active
// contract of that property covers today. Safe to re-run on every status change.
func ComputeOccupancy(contracts []ContractTerms, propertyID PropertyID, today Date) Occupancy {
	for _, c := range contracts {
		if c.PropertyID != propertyID || !c.IsActive() {
			continue
		}
		if c.Term().Contains(today) {
			return Occupied
		}
	}
	return Vacant
}

// StatusTransitionTouchesActive reports whether moving from old to new status
// enters or leaves the active state, which requires an occupancy resync.
func StatusTransitionTouchesActive(old, new ContractStatus) bool {
	return old != new && (old == StatusActive || new == StatusActive)
}
