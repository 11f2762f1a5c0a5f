/*
Package sqlite provides a SQLite-backed implementation of the lease storage interfaces.

PURPOSE:
  Implements the persistence collaborators (ContractStore, PaymentStore,
  OccupancySyncer) and the published index series using SQLite. The same
  schema runs on PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  lease.ContractStore:   Contract terms
  lease.PaymentStore:    Payment rows
  lease.OccupancySyncer: Property occupancy flag
  lease.IndexSeries:     Published CPI / housing index values

PAYMENT ROW RULES:
  - (contract_id, due_date) is UNIQUE; inserts use ON CONFLICT DO NOTHING,
    so re-generating a range never duplicates rows.
  - Deletes are restricted to status = 'pending' in the SQL itself.
  - Paid rows are never updated again.

KEY TABLES:
  properties:     Occupancy flag per property
  contracts:      Contract terms (scalar columns + JSON for nested values)
  payments:       Derived payment rows
  index_values:   Published index figures
  scheduler_runs: History of background sweeps

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead. No transaction spans a whole
  contract edit; see lease/service.go.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/lease.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - lease/store.go: Interface definitions
  - lease/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/rentmate/lease-engine/lease"
)

//go:embed schema.sql
var schema string

// Store implements the lease storage interfaces using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	clock lease.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to decide occupancy. Defaults to the system clock.
func WithClock(c lease.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, clock: lease.SystemClock{}}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn inside a database transaction. Callers hold s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// CONTRACT STORE (lease.ContractStore interface)
// =============================================================================

const contractColumns = `
	id, property_id, user_id, status, start_date, end_date, signing_date,
	base_rent, currency, payment_frequency, payment_day,
	tenants_json, linkage_json, rent_steps_json, option_periods_json`

// FetchActiveContracts returns the active contracts of a property.
func (s *Store) FetchActiveContracts(ctx context.Context, propertyID lease.PropertyID) ([]lease.ContractTerms, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryContracts(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE property_id = ? AND status = 'active'
		 ORDER BY start_date, id`, propertyID)
}

// ListContracts returns every contract of a property.
func (s *Store) ListContracts(ctx context.Context, propertyID lease.PropertyID) ([]lease.ContractTerms, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryContracts(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE property_id = ?
		 ORDER BY start_date, id`, propertyID)
}

func (s *Store) GetContract(ctx context.Context, id lease.ContractID) (lease.ContractTerms, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contracts, err := s.queryContracts(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = ?`, id)
	if err != nil {
		return lease.ContractTerms{}, err
	}
	if len(contracts) == 0 {
		return lease.ContractTerms{}, lease.ErrContractNotFound
	}
	return contracts[0], nil
}

// InsertContract stores new terms, creating the property row on first use.
func (s *Store) InsertContract(ctx context.Context, terms lease.ContractTerms) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols, err := contractValues(terms)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureProperty(ctx, tx, terms.PropertyID, terms.UserID, now); err != nil {
			return err
		}
		args := append([]any{terms.ID}, cols...)
		args = append(args, now, now)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO contracts (`+contractColumns+`, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, args...)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("contract %s: %w", terms.ID, lease.ErrContractExists)
			}
			return fmt.Errorf("failed to insert contract: %w", err)
		}
		return nil
	})
}

// UpdateContract replaces the stored terms of id.
func (s *Store) UpdateContract(ctx context.Context, id lease.ContractID, terms lease.ContractTerms) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cols, err := contractValues(terms)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureProperty(ctx, tx, terms.PropertyID, terms.UserID, now); err != nil {
			return err
		}
		args := append(cols, now, id)
		res, err := tx.ExecContext(ctx, `
			UPDATE contracts SET
				property_id = ?, user_id = ?, status = ?, start_date = ?, end_date = ?, signing_date = ?,
				base_rent = ?, currency = ?, payment_frequency = ?, payment_day = ?,
				tenants_json = ?, linkage_json = ?, rent_steps_json = ?, option_periods_json = ?,
				updated_at = ?
			WHERE id = ?
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to update contract: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return lease.ErrContractNotFound
		}
		return nil
	})
}

// contractValues returns the column values after id, in contractColumns order.
func contractValues(c lease.ContractTerms) ([]any, error) {
	tenants, err := json.Marshal(c.Tenants)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tenants: %w", err)
	}
	linkage, err := json.Marshal(c.Linkage)
	if err != nil {
		return nil, fmt.Errorf("failed to encode linkage: %w", err)
	}
	steps, err := json.Marshal(c.RentSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rent steps: %w", err)
	}
	options, err := json.Marshal(c.OptionPeriods)
	if err != nil {
		return nil, fmt.Errorf("failed to encode option periods: %w", err)
	}
	return []any{
		c.PropertyID,
		nullString(string(c.UserID)),
		c.Status,
		c.StartDate.String(),
		c.EndDate.String(),
		nullDate(c.SigningDate),
		c.BaseRent.Amount.String(),
		c.BaseRent.Currency,
		c.PaymentFrequency,
		c.PaymentDay,
		string(tenants),
		string(linkage),
		string(steps),
		string(options),
	}, nil
}

func (s *Store) queryContracts(ctx context.Context, query string, args ...any) ([]lease.ContractTerms, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []lease.ContractTerms
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func scanContract(rows *sql.Rows) (lease.ContractTerms, error) {
	var (
		c                                      lease.ContractTerms
		userID, signing                        sql.NullString
		start, end, rent, currency             string
		tenants, linkage, steps, optionPeriods string
	)
	err := rows.Scan(
		&c.ID, &c.PropertyID, &userID, &c.Status, &start, &end, &signing,
		&rent, &currency, &c.PaymentFrequency, &c.PaymentDay,
		&tenants, &linkage, &steps, &optionPeriods,
	)
	if err != nil {
		return c, fmt.Errorf("failed to scan contract: %w", err)
	}

	c.UserID = lease.UserID(userID.String)
	if c.StartDate, err = lease.ParseDate(start); err != nil {
		return c, err
	}
	if c.EndDate, err = lease.ParseDate(end); err != nil {
		return c, err
	}
	if signing.Valid {
		if c.SigningDate, err = lease.ParseDate(signing.String); err != nil {
			return c, err
		}
	}
	if c.BaseRent, err = lease.NewMoneyFromString(rent, lease.Currency(currency)); err != nil {
		return c, fmt.Errorf("contract %s: bad base rent %q: %w", c.ID, rent, err)
	}

	for _, part := range []struct {
		raw string
		dst any
	}{
		{tenants, &c.Tenants},
		{linkage, &c.Linkage},
		{steps, &c.RentSteps},
		{optionPeriods, &c.OptionPeriods},
	} {
		if err := json.Unmarshal([]byte(part.raw), part.dst); err != nil {
			return c, fmt.Errorf("contract %s: failed to decode terms: %w", c.ID, err)
		}
	}
	return c, nil
}

// =============================================================================
// PAYMENT STORE (lease.PaymentStore interface)
// =============================================================================

// InsertPaymentRecords inserts rows in one transaction, skipping (contract,
// due date) pairs that already exist.
func (s *Store) InsertPaymentRecords(ctx context.Context, records []lease.PaymentRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	now := time.Now().UTC().Format(time.RFC3339)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			n, err := insertPayment(ctx, tx, r, now)
			if err != nil {
				return err
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func insertPayment(ctx context.Context, db execer, r lease.PaymentRecord, now string) (int, error) {
	status := r.Status
	if status == "" {
		status = lease.PaymentPending
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO payments (id, contract_id, due_date, amount, currency, status, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_id, due_date) DO NOTHING
	`,
		r.ID,
		r.ContractID,
		r.DueDate.String(),
		r.Amount.Amount.String(),
		r.Amount.Currency,
		status,
		nullDate(r.PaidAt),
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert payment %s: %w", r.DueDate, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DeletePendingPaymentsAfter removes pending rows due strictly after date.
func (s *Store) DeletePendingPaymentsAfter(ctx context.Context, contractID lease.ContractID, date lease.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM payments
		WHERE contract_id = ? AND status = 'pending' AND due_date > ?
	`, contractID, date.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete payments: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const paymentColumns = `id, contract_id, due_date, amount, currency, status, paid_at`

func (s *Store) ListPayments(ctx context.Context, contractID lease.ContractID) ([]lease.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE contract_id = ? ORDER BY due_date`, contractID)
}

func (s *Store) GetPayment(ctx context.Context, id lease.PaymentID) (lease.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPayment(ctx, id)
}

func (s *Store) getPayment(ctx context.Context, id lease.PaymentID) (lease.PaymentRecord, error) {
	payments, err := s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	if err != nil {
		return lease.PaymentRecord{}, err
	}
	if len(payments) == 0 {
		return lease.PaymentRecord{}, lease.ErrPaymentNotFound
	}
	return payments[0], nil
}

// MarkPaid settles a pending or overdue row. Paid rows are immutable.
func (s *Store) MarkPaid(ctx context.Context, id lease.PaymentID, paidOn lease.Date) (lease.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getPayment(ctx, id)
	if err != nil {
		return p, err
	}
	if p.Status == lease.PaymentPaid {
		return p, lease.ErrPaymentImmutable
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE payments SET status = 'paid', paid_at = ?
		WHERE id = ? AND status != 'paid'
	`, paidOn.String(), id)
	if err != nil {
		return p, fmt.Errorf("failed to mark payment paid: %w", err)
	}
	p.Status = lease.PaymentPaid
	p.PaidAt = paidOn
	return p, nil
}

// MarkOverdue flips pending rows due before asOf and returns the affected contracts.
func (s *Store) MarkOverdue(ctx context.Context, asOf lease.Date) ([]lease.ContractID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []lease.ContractID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT DISTINCT contract_id FROM payments
			WHERE status = 'pending' AND due_date < ?
			ORDER BY contract_id
		`, asOf.String())
		if err != nil {
			return fmt.Errorf("failed to query overdue payments: %w", err)
		}
		for rows.Next() {
			var id lease.ContractID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE payments SET status = 'overdue'
			WHERE status = 'pending' AND due_date < ?
		`, asOf.String())
		if err != nil {
			return fmt.Errorf("failed to mark payments overdue: %w", err)
		}
		return nil
	})
	return ids, err
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]lease.PaymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []lease.PaymentRecord
	for rows.Next() {
		var (
			p                     lease.PaymentRecord
			due, amount, currency string
			paidAt                sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ContractID, &due, &amount, &currency, &p.Status, &paidAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if p.DueDate, err = lease.ParseDate(due); err != nil {
			return nil, err
		}
		if p.Amount, err = lease.NewMoneyFromString(amount, lease.Currency(currency)); err != nil {
			return nil, fmt.Errorf("payment %s: bad amount %q: %w", p.ID, amount, err)
		}
		if paidAt.Valid {
			if p.PaidAt, err = lease.ParseDate(paidAt.String); err != nil {
				return nil, err
			}
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// OCCUPANCY (lease.OccupancySyncer interface)
// =============================================================================

// PropertyRecord is a stored property with its occupancy flag.
type PropertyRecord struct {
	ID        lease.PropertyID
	UserID    lease.UserID
	Occupancy lease.Occupancy
	UpdatedAt time.Time
}

func ensureProperty(ctx context.Context, db execer, id lease.PropertyID, userID lease.UserID, now string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO properties (id, user_id, occupancy, created_at, updated_at)
		VALUES (?, ?, 'vacant', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, nullString(string(userID)), now, now)
	if err != nil {
		return fmt.Errorf("failed to ensure property: %w", err)
	}
	return nil
}

// SyncOccupancyStatus recomputes the property's flag from its active contracts.
func (s *Store) SyncOccupancyStatus(ctx context.Context, propertyID lease.PropertyID, userID lease.UserID) (lease.Occupancy, error) {
	contracts, err := s.FetchActiveContracts(ctx, propertyID)
	if err != nil {
		return "", err
	}
	occ := lease.ComputeOccupancy(contracts, propertyID, s.clock.Today())

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO properties (id, user_id, occupancy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			occupancy = excluded.occupancy,
			user_id = COALESCE(excluded.user_id, properties.user_id),
			updated_at = excluded.updated_at
	`, propertyID, nullString(string(userID)), occ, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to update occupancy: %w", err)
	}
	return occ, nil
}

func (s *Store) GetProperty(ctx context.Context, id lease.PropertyID) (PropertyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	props, err := s.queryProperties(ctx, `SELECT id, user_id, occupancy, updated_at FROM properties WHERE id = ?`, id)
	if err != nil {
		return PropertyRecord{}, err
	}
	if len(props) == 0 {
		return PropertyRecord{}, lease.ErrPropertyNotFound
	}
	return props[0], nil
}

// ListProperties returns every known property.
func (s *Store) ListProperties(ctx context.Context) ([]PropertyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryProperties(ctx, `SELECT id, user_id, occupancy, updated_at FROM properties ORDER BY id`)
}

func (s *Store) queryProperties(ctx context.Context, query string, args ...any) ([]PropertyRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	var props []PropertyRecord
	for rows.Next() {
		var (
			p       PropertyRecord
			userID  sql.NullString
			updated string
		)
		if err := rows.Scan(&p.ID, &userID, &p.Occupancy, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		p.UserID = lease.UserID(userID.String)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		props = append(props, p)
	}
	return props, rows.Err()
}

// =============================================================================
// INDEX VALUES (lease.IndexSeries interface)
// =============================================================================

// SetIndexValue records a published figure, replacing any value on the same date.
func (s *Store) SetIndexValue(ctx context.Context, index lease.LinkageType, p lease.IndexPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_values (index_type, published_on, value)
		VALUES (?, ?, ?)
		ON CONFLICT(index_type, published_on) DO UPDATE SET value = excluded.value
	`, index, p.PublishedOn.String(), p.Value.String())
	if err != nil {
		return fmt.Errorf("failed to set index value: %w", err)
	}
	return nil
}

// IndexValue returns the latest figure published on or before the date.
// Lookup errors are reported as a missing value.
func (s *Store) IndexValue(index lease.LinkageType, onOrBefore lease.Date) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow(`
		SELECT value FROM index_values
		WHERE index_type = ? AND published_on <= ?
		ORDER BY published_on DESC LIMIT 1
	`, index, onOrBefore.String()).Scan(&raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

// ListIndexValues returns the series for index ordered by publication date.
func (s *Store) ListIndexValues(ctx context.Context, index lease.LinkageType) ([]lease.IndexPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT published_on, value FROM index_values
		WHERE index_type = ? ORDER BY published_on
	`, index)
	if err != nil {
		return nil, fmt.Errorf("failed to query index values: %w", err)
	}
	defer rows.Close()

	var points []lease.IndexPoint
	for rows.Next() {
		var published, value string
		if err := rows.Scan(&published, &value); err != nil {
			return nil, err
		}
		var p lease.IndexPoint
		if p.PublishedOn, err = lease.ParseDate(published); err != nil {
			return nil, err
		}
		if p.Value, err = decimal.NewFromString(value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// =============================================================================
// SCHEDULER RUNS
// =============================================================================

// SchedulerRun records one background sweep.
type SchedulerRun struct {
	ID          string
	Job         string
	AsOf        lease.Date
	Status      string // "running", "completed", "failed"
	Affected    int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// SaveSchedulerRun inserts or updates a run.
func (s *Store) SaveSchedulerRun(ctx context.Context, run SchedulerRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed sql.NullString
	if run.CompletedAt != nil {
		completed = sql.NullString{String: run.CompletedAt.UTC().Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_runs (id, job, as_of, status, affected, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			affected = excluded.affected,
			error = excluded.error,
			completed_at = excluded.completed_at
	`, run.ID, run.Job, run.AsOf.String(), run.Status, run.Affected, nullString(run.Error),
		run.StartedAt.UTC().Format(time.RFC3339), completed)
	if err != nil {
		return fmt.Errorf("failed to save scheduler run: %w", err)
	}
	return nil
}

// ListSchedulerRuns returns the most recent runs first.
func (s *Store) ListSchedulerRuns(ctx context.Context, limit int) ([]SchedulerRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, as_of, status, affected, error, started_at, completed_at
		FROM scheduler_runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduler runs: %w", err)
	}
	defer rows.Close()

	var runs []SchedulerRun
	for rows.Next() {
		var (
			r                SchedulerRun
			asOf, started    string
			errMsg, finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Job, &asOf, &r.Status, &r.Affected, &errMsg, &started, &finished); err != nil {
			return nil, err
		}
		r.AsOf, _ = lease.ParseDate(asOf)
		r.Error = errMsg.String
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished.Valid {
			t, _ := time.Parse(time.RFC3339, finished.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// Reset deletes all data. Intended for demos and tests.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM payments;
		DELETE FROM contracts;
		DELETE FROM properties;
		DELETE FROM index_values;
		DELETE FROM scheduler_runs;
	`)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d lease.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// isUniqueConstraintError matches UNIQUE and PRIMARY KEY violations; a
// duplicate TEXT primary key reports the latter.
func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
