package lease

import "sort"

// =============================================================================
// OVERLAP VALIDATOR - One active contract per property per day
// =============================================================================

// Conflict is the interval of the active contract that blocks a save.
type Conflict struct {
	ContractID ContractID `json:"contract_id"`
	Range      DateRange  `json:"range"`
}

// OverlapResult is OK, or carries the first conflicting contract.
type OverlapResult struct {
	OK       bool      `json:"ok"`
	Conflict *Conflict `json:"conflict,omitempty"`
}

// ValidateOverlap decides whether candidate may be saved for propertyID.
//
// Only active contracts of the same property participate, and the contract
// being edited (excludeID) never conflicts with itself. Two ranges conflict
// when they share at least one day. When several contracts conflict, the one
// starting earliest is reported. No mutation is performed.
func ValidateOverlap(propertyID PropertyID, candidate DateRange, existing []ContractTerms, excludeID ContractID) OverlapResult {
	relevant := make([]ContractTerms, 0, len(existing))
	for _, c := range existing {
		if c.PropertyID != propertyID || !c.IsActive() {
			continue
		}
		if excludeID != "" && c.ID == excludeID {
			continue
		}
		relevant = append(relevant, c)
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].StartDate.Before(relevant[j].StartDate)
	})

	for _, c := range relevant {
		if candidate.Overlaps(c.Term()) {
			return OverlapResult{
				OK:       false,
				Conflict: &Conflict{ContractID: c.ID, Range: c.Term()},
			}
		}
	}
	return OverlapResult{OK: true}
}
