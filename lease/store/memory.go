// Package store provides in-memory lease store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rentmate/lease-engine/lease"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements lease.ContractStore, lease.PaymentStore and
// lease.OccupancySyncer.
type Memory struct {
	mu        sync.RWMutex
	contracts map[lease.ContractID]lease.ContractTerms
	payments  map[lease.ContractID][]lease.PaymentRecord
	occupancy map[lease.PropertyID]lease.Occupancy
	clock     lease.Clock
}

type dueKey struct {
	ContractID lease.ContractID
	DueDate    lease.Date
}

func NewMemory(clock lease.Clock) *Memory {
	if clock == nil {
		clock = lease.SystemClock{}
	}
	return &Memory{
		contracts: make(map[lease.ContractID]lease.ContractTerms),
		payments:  make(map[lease.ContractID][]lease.PaymentRecord),
		occupancy: make(map[lease.PropertyID]lease.Occupancy),
		clock:     clock,
	}
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (m *Memory) FetchActiveContracts(ctx context.Context, propertyID lease.PropertyID) ([]lease.ContractTerms, error) {
	all, err := m.ListContracts(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, c := range all {
		if c.IsActive() {
			active = append(active, c)
		}
	}
	return active, nil
}

func (m *Memory) ListContracts(_ context.Context, propertyID lease.PropertyID) ([]lease.ContractTerms, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []lease.ContractTerms
	for _, c := range m.contracts {
		if c.PropertyID == propertyID {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) GetContract(_ context.Context, id lease.ContractID) (lease.ContractTerms, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return lease.ContractTerms{}, lease.ErrContractNotFound
	}
	return c.Clone(), nil
}

func (m *Memory) InsertContract(_ context.Context, terms lease.ContractTerms) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contracts[terms.ID]; ok {
		return fmt.Errorf("contract %s: %w", terms.ID, lease.ErrContractExists)
	}
	m.contracts[terms.ID] = terms.Clone()
	return nil
}

func (m *Memory) UpdateContract(_ context.Context, id lease.ContractID, terms lease.ContractTerms) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contracts[id]; !ok {
		return lease.ErrContractNotFound
	}
	terms.ID = id
	m.contracts[id] = terms.Clone()
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// InsertPaymentRecords skips (contract, due date) pairs already present.
func (m *Memory) InsertPaymentRecords(_ context.Context, records []lease.PaymentRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := make(map[dueKey]bool)
	for _, rows := range m.payments {
		for _, p := range rows {
			existing[dueKey{p.ContractID, p.DueDate}] = true
		}
	}

	inserted := 0
	for _, r := range records {
		k := dueKey{r.ContractID, r.DueDate}
		if existing[k] {
			continue
		}
		existing[k] = true
		m.insertLocked(r)
		inserted++
	}
	return inserted, nil
}

func (m *Memory) insertLocked(r lease.PaymentRecord) {
	rows := m.payments[r.ContractID]

	i := sort.Search(len(rows), func(i int) bool {
		return rows[i].DueDate.After(r.DueDate)
	})

	rows = append(rows, lease.PaymentRecord{})
	copy(rows[i+1:], rows[i:])
	rows[i] = r
	m.payments[r.ContractID] = rows
}

func (m *Memory) DeletePendingPaymentsAfter(_ context.Context, contractID lease.ContractID, date lease.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.payments[contractID]
	kept := rows[:0]
	deleted := 0
	for _, p := range rows {
		if p.IsPending() && p.DueDate.After(date) {
			deleted++
			continue
		}
		kept = append(kept, p)
	}
	m.payments[contractID] = kept
	return deleted, nil
}

func (m *Memory) ListPayments(_ context.Context, contractID lease.ContractID) ([]lease.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]lease.PaymentRecord, len(m.payments[contractID]))
	copy(result, m.payments[contractID])
	return result, nil
}

func (m *Memory) MarkPaid(_ context.Context, id lease.PaymentID, paidOn lease.Date) (lease.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for cid, rows := range m.payments {
		for i := range rows {
			if rows[i].ID != id {
				continue
			}
			if rows[i].Status == lease.PaymentPaid {
				return rows[i], lease.ErrPaymentImmutable
			}
			rows[i].Status = lease.PaymentPaid
			rows[i].PaidAt = paidOn
			m.payments[cid] = rows
			return rows[i], nil
		}
	}
	return lease.PaymentRecord{}, lease.ErrPaymentNotFound
}

func (m *Memory) MarkOverdue(_ context.Context, asOf lease.Date) ([]lease.ContractID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var touched []lease.ContractID
	for cid, rows := range m.payments {
		hit := false
		for i := range rows {
			if rows[i].IsPending() && rows[i].DueDate.Before(asOf) {
				rows[i].Status = lease.PaymentOverdue
				hit = true
			}
		}
		if hit {
			touched = append(touched, cid)
		}
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	return touched, nil
}

// =============================================================================
// OCCUPANCY
// =============================================================================

func (m *Memory) SyncOccupancyStatus(ctx context.Context, propertyID lease.PropertyID, _ lease.UserID) (lease.Occupancy, error) {
	contracts, err := m.FetchActiveContracts(ctx, propertyID)
	if err != nil {
		return "", err
	}
	occ := lease.ComputeOccupancy(contracts, propertyID, m.clock.Today())

	m.mu.Lock()
	m.occupancy[propertyID] = occ
	m.mu.Unlock()
	return occ, nil
}

// Occupancy returns the last synced flag for a property.
func (m *Memory) Occupancy(propertyID lease.PropertyID) (lease.Occupancy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	occ, ok := m.occupancy[propertyID]
	return occ, ok
}
