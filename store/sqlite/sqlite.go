/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements engine.TxStore and engine.RunStore using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  balance_entries:    The ledger: one row per signed balance movement
  policy_assignments: Time-bounded employee-to-resource links
  policies:           Time-off policy definitions (counter/balancer)
  categories:         Time-off categories (vacation, sick, ...)
  time_offs:          Approved absences the ledger debits
  recompute_runs:     Audit trail of async recompute executions

ORDERING:
  Entries carry a (date, priority, sequence) composite key; reads order by
  those three columns so the running balance is well-defined without any
  timestamp arithmetic.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
)

// Store implements engine.TxStore and engine.RunStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

func (s *Store) migrate() error {
	schema := `
	-- Balance entries (the ledger)
	CREATE TABLE IF NOT EXISTS balance_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		assignment_id TEXT,
		policy_id TEXT,
		kind TEXT NOT NULL,
		key_date TEXT NOT NULL,
		key_priority INTEGER NOT NULL,
		key_sequence INTEGER NOT NULL DEFAULT 0,
		resource_amount TEXT NOT NULL DEFAULT '0',
		manual_amount TEXT NOT NULL DEFAULT '0',
		amount TEXT NOT NULL DEFAULT '0',
		validity_date TEXT,
		being_processed BOOLEAN NOT NULL DEFAULT FALSE,
		policy_credit_addition BOOLEAN NOT NULL DEFAULT FALSE,
		time_off_id TEXT,
		removal_id TEXT
	);

	-- Running balance reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_entries_scope_key
		ON balance_entries(employee_id, category_id, key_date, key_priority, key_sequence);

	-- One entry per (scope, slot, kind): the factory's idempotency guarantee
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_slot
		ON balance_entries(employee_id, category_id, key_date, kind);

	CREATE INDEX IF NOT EXISTS idx_entries_processing
		ON balance_entries(employee_id, category_id, being_processed)
		WHERE being_processed = TRUE;
	CREATE INDEX IF NOT EXISTS idx_entries_assignment
		ON balance_entries(assignment_id) WHERE assignment_id IS NOT NULL;

	-- Policy assignments (employee timeline)
	CREATE TABLE IF NOT EXISTS policy_assignments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		category_id TEXT,
		effective_at TEXT NOT NULL,
		effective_till TEXT,
		reset BOOLEAN NOT NULL DEFAULT FALSE,
		occupation_rate TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_scope
		ON policy_assignments(employee_id, kind, category_id, effective_at);

	-- Policies
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		start_day INTEGER NOT NULL DEFAULT 1,
		start_month INTEGER NOT NULL DEFAULT 1,
		end_day INTEGER,
		end_month INTEGER,
		years_to_effect INTEGER NOT NULL DEFAULT 0,
		reset BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_policies_category
		ON policies(category_id);

	-- Categories
	CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	-- Time-offs (approved absences)
	CREATE TABLE IF NOT EXISTS time_offs (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		balance_entry_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_time_offs_scope
		ON time_offs(employee_id, category_id, start_time);

	-- Recompute runs (audit trail for the async worker)
	CREATE TABLE IF NOT EXISTS recompute_runs (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		category_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		entries INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status
		ON recompute_runs(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (engine.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction; any error rolls the
// whole transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore serves the engine.Store interface against one open transaction.
type txStore struct {
	q querier
}

var (
	_ engine.TxStore  = (*Store)(nil)
	_ engine.RunStore = (*Store)(nil)
	_ engine.Store    = (*txStore)(nil)
)

// =============================================================================
// ENTRY STORE
// =============================================================================

const entryColumns = `id, employee_id, category_id, assignment_id, policy_id, kind,
	key_date, key_priority, key_sequence, resource_amount, manual_amount, amount,
	validity_date, being_processed, policy_credit_addition, time_off_id, removal_id`

func (s *Store) CreateEntry(ctx context.Context, e *engine.BalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createEntry(ctx, s.db, e)
}

func (ts *txStore) CreateEntry(ctx context.Context, e *engine.BalanceEntry) error {
	return createEntry(ctx, ts.q, e)
}

func createEntry(ctx context.Context, q querier, e *engine.BalanceEntry) error {
	query := `
		INSERT INTO balance_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		e.ID, e.EmployeeID, e.CategoryID,
		nullString(e.AssignmentID), nullString(e.PolicyID), string(e.Kind),
		e.Key.Date.String(), e.Key.Priority, e.Key.Sequence,
		e.ResourceAmount.String(), e.ManualAmount.String(), e.Amount.String(),
		nullDate(e.ValidityDate), e.BeingProcessed, e.PolicyCreditAddition,
		nullString(e.TimeOffID), nullString(e.RemovalID),
	)
	if err != nil {
		return fmt.Errorf("failed to create balance entry: %w", err)
	}
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, e *engine.BalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntry(ctx, s.db, e)
}

func (ts *txStore) UpdateEntry(ctx context.Context, e *engine.BalanceEntry) error {
	return updateEntry(ctx, ts.q, e)
}

func updateEntry(ctx context.Context, q querier, e *engine.BalanceEntry) error {
	query := `
		UPDATE balance_entries SET
			assignment_id = ?, policy_id = ?, kind = ?,
			key_date = ?, key_priority = ?, key_sequence = ?,
			resource_amount = ?, manual_amount = ?, amount = ?,
			validity_date = ?, being_processed = ?, policy_credit_addition = ?,
			time_off_id = ?, removal_id = ?
		WHERE id = ?
	`
	_, err := q.ExecContext(ctx, query,
		nullString(e.AssignmentID), nullString(e.PolicyID), string(e.Kind),
		e.Key.Date.String(), e.Key.Priority, e.Key.Sequence,
		e.ResourceAmount.String(), e.ManualAmount.String(), e.Amount.String(),
		nullDate(e.ValidityDate), e.BeingProcessed, e.PolicyCreditAddition,
		nullString(e.TimeOffID), nullString(e.RemovalID),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance entry: %w", err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRow(ctx, s.db, "balance_entries", id)
}

func (ts *txStore) DeleteEntry(ctx context.Context, id string) error {
	return deleteRow(ctx, ts.q, "balance_entries", id)
}

func (s *Store) GetEntry(ctx context.Context, id string) (*engine.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, id)
}

func (ts *txStore) GetEntry(ctx context.Context, id string) (*engine.BalanceEntry, error) {
	return getEntry(ctx, ts.q, id)
}

func getEntry(ctx context.Context, q querier, id string) (*engine.BalanceEntry, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM balance_entries WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) EntriesByCategory(ctx context.Context, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db, false, employeeID, categoryID)
}

func (ts *txStore) EntriesByCategory(ctx context.Context, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	return queryEntries(ctx, ts.q, false, employeeID, categoryID)
}

func (s *Store) EntriesBeingProcessed(ctx context.Context, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEntries(ctx, s.db, true, employeeID, categoryID)
}

func (ts *txStore) EntriesBeingProcessed(ctx context.Context, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	return queryEntries(ctx, ts.q, true, employeeID, categoryID)
}

func queryEntries(ctx context.Context, q querier, flaggedOnly bool, employeeID, categoryID string) ([]engine.BalanceEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM balance_entries
		WHERE employee_id = ? AND category_id = ?
	`
	if flaggedOnly {
		query += " AND being_processed = TRUE"
	}
	query += " ORDER BY key_date ASC, key_priority ASC, key_sequence ASC"

	rows, err := q.QueryContext(ctx, query, employeeID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance entries: %w", err)
	}
	defer rows.Close()

	var entries []engine.BalanceEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (engine.BalanceEntry, error) {
	var (
		e            engine.BalanceEntry
		assignmentID sql.NullString
		policyID     sql.NullString
		kind         string
		keyDate      string
		resource     string
		manual       string
		amount       string
		validity     sql.NullString
		timeOffID    sql.NullString
		removalID    sql.NullString
	)

	err := rows.Scan(
		&e.ID, &e.EmployeeID, &e.CategoryID, &assignmentID, &policyID, &kind,
		&keyDate, &e.Key.Priority, &e.Key.Sequence, &resource, &manual, &amount,
		&validity, &e.BeingProcessed, &e.PolicyCreditAddition, &timeOffID, &removalID,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan balance entry: %w", err)
	}

	e.AssignmentID = assignmentID.String
	e.PolicyID = policyID.String
	e.Kind = engine.EntryKind(kind)
	e.Key.Date, err = engine.ParseDate(keyDate)
	if err != nil {
		return e, err
	}
	e.ResourceAmount = engine.MustParseMinutes(resource)
	e.ManualAmount = engine.MustParseMinutes(manual)
	e.Amount = engine.MustParseMinutes(amount)
	if validity.Valid {
		d, err := engine.ParseDate(validity.String)
		if err != nil {
			return e, err
		}
		e.ValidityDate = &d
	}
	e.TimeOffID = timeOffID.String
	e.RemovalID = removalID.String
	return e, nil
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

const assignmentColumns = `id, employee_id, kind, resource_id, category_id,
	effective_at, effective_till, reset, occupation_rate`

func (s *Store) SaveAssignment(ctx context.Context, a *engine.PolicyAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAssignment(ctx, s.db, a)
}

func (ts *txStore) SaveAssignment(ctx context.Context, a *engine.PolicyAssignment) error {
	return saveAssignment(ctx, ts.q, a)
}

func saveAssignment(ctx context.Context, q querier, a *engine.PolicyAssignment) error {
	query := `
		INSERT INTO policy_assignments (` + assignmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resource_id = excluded.resource_id,
			effective_at = excluded.effective_at,
			effective_till = excluded.effective_till,
			reset = excluded.reset,
			occupation_rate = excluded.occupation_rate
	`
	_, err := q.ExecContext(ctx, query,
		a.ID, a.EmployeeID, string(a.Kind), a.ResourceID, nullString(a.CategoryID),
		a.EffectiveAt.String(), nullDate(a.EffectiveTill), a.Reset,
		a.OccupationRate.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRow(ctx, s.db, "policy_assignments", id)
}

func (ts *txStore) DeleteAssignment(ctx context.Context, id string) error {
	return deleteRow(ctx, ts.q, "policy_assignments", id)
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*engine.PolicyAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAssignment(ctx, s.db, id)
}

func (ts *txStore) GetAssignment(ctx context.Context, id string) (*engine.PolicyAssignment, error) {
	return getAssignment(ctx, ts.q, id)
}

func getAssignment(ctx context.Context, q querier, id string) (*engine.PolicyAssignment, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM policy_assignments WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, err := scanAssignment(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) AssignmentsByEmployee(ctx context.Context, employeeID string, kind engine.ResourceKind, categoryID string) ([]engine.PolicyAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryAssignments(ctx, s.db, employeeID, kind, categoryID)
}

func (ts *txStore) AssignmentsByEmployee(ctx context.Context, employeeID string, kind engine.ResourceKind, categoryID string) ([]engine.PolicyAssignment, error) {
	return queryAssignments(ctx, ts.q, employeeID, kind, categoryID)
}

func queryAssignments(ctx context.Context, q querier, employeeID string, kind engine.ResourceKind, categoryID string) ([]engine.PolicyAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM policy_assignments
		WHERE employee_id = ? AND kind = ?
	`
	args := []any{employeeID, string(kind)}
	if categoryID != "" {
		query += " AND category_id = ?"
		args = append(args, categoryID)
	}
	query += " ORDER BY effective_at ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []engine.PolicyAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func scanAssignment(rows *sql.Rows) (engine.PolicyAssignment, error) {
	var (
		a           engine.PolicyAssignment
		kind        string
		categoryID  sql.NullString
		effectiveAt string
		till        sql.NullString
		rate        string
	)

	err := rows.Scan(&a.ID, &a.EmployeeID, &kind, &a.ResourceID, &categoryID,
		&effectiveAt, &till, &a.Reset, &rate)
	if err != nil {
		return a, fmt.Errorf("failed to scan assignment: %w", err)
	}

	a.Kind = engine.ResourceKind(kind)
	a.CategoryID = categoryID.String
	a.EffectiveAt, err = engine.ParseDate(effectiveAt)
	if err != nil {
		return a, err
	}
	if till.Valid {
		d, err := engine.ParseDate(till.String)
		if err != nil {
			return a, err
		}
		a.EffectiveTill = &d
	}
	a.OccupationRate = engine.MustParseMinutes(rate).Value
	return a, nil
}

// =============================================================================
// POLICY / CATEGORY STORE
// =============================================================================

const policyColumns = `id, name, category_id, type, amount, start_day, start_month,
	end_day, end_month, years_to_effect, reset`

func (s *Store) SavePolicy(ctx context.Context, p *engine.TimeOffPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePolicy(ctx, s.db, p)
}

func (ts *txStore) SavePolicy(ctx context.Context, p *engine.TimeOffPolicy) error {
	return savePolicy(ctx, ts.q, p)
}

func savePolicy(ctx context.Context, q querier, p *engine.TimeOffPolicy) error {
	query := `
		INSERT INTO policies (` + policyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			amount = excluded.amount,
			start_day = excluded.start_day,
			start_month = excluded.start_month,
			end_day = excluded.end_day,
			end_month = excluded.end_month,
			years_to_effect = excluded.years_to_effect,
			reset = excluded.reset
	`
	var endDay, endMonth any
	if p.HasEnd() {
		endDay, endMonth = p.EndDay, int(p.EndMonth)
	}
	_, err := q.ExecContext(ctx, query,
		p.ID, p.Name, p.CategoryID, string(p.Type), p.Amount.String(),
		p.StartDay, int(p.StartMonth), endDay, endMonth, p.YearsToEffect, p.Reset,
	)
	if err != nil {
		return fmt.Errorf("failed to save policy: %w", err)
	}
	return nil
}

func (s *Store) GetPolicy(ctx context.Context, id string) (*engine.TimeOffPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPolicy(ctx, s.db, "id = ?", id)
}

func (ts *txStore) GetPolicy(ctx context.Context, id string) (*engine.TimeOffPolicy, error) {
	return getPolicy(ctx, ts.q, "id = ?", id)
}

func (s *Store) ResetPolicy(ctx context.Context, categoryID string) (*engine.TimeOffPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPolicy(ctx, s.db, "category_id = ? AND reset = TRUE", categoryID)
}

func (ts *txStore) ResetPolicy(ctx context.Context, categoryID string) (*engine.TimeOffPolicy, error) {
	return getPolicy(ctx, ts.q, "category_id = ? AND reset = TRUE", categoryID)
}

func getPolicy(ctx context.Context, q querier, where string, args ...any) (*engine.TimeOffPolicy, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+policyColumns+" FROM policies WHERE "+where+" LIMIT 1", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		p        engine.TimeOffPolicy
		ptype    string
		amount   string
		startMon int
		endDay   sql.NullInt64
		endMon   sql.NullInt64
	)
	err = rows.Scan(&p.ID, &p.Name, &p.CategoryID, &ptype, &amount,
		&p.StartDay, &startMon, &endDay, &endMon, &p.YearsToEffect, &p.Reset)
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy: %w", err)
	}

	p.Type = engine.PolicyType(ptype)
	p.Amount = engine.MustParseMinutes(amount)
	p.StartMonth = time.Month(startMon)
	if endDay.Valid {
		p.EndDay = int(endDay.Int64)
	}
	if endMon.Valid {
		p.EndMonth = time.Month(endMon.Int64)
	}
	return &p, nil
}

func (s *Store) SaveCategory(ctx context.Context, c *engine.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCategory(ctx, s.db, c)
}

func (ts *txStore) SaveCategory(ctx context.Context, c *engine.Category) error {
	return saveCategory(ctx, ts.q, c)
}

func saveCategory(ctx context.Context, q querier, c *engine.Category) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO categories (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, c.ID, c.Name)
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*engine.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCategory(ctx, s.db, id)
}

func (ts *txStore) GetCategory(ctx context.Context, id string) (*engine.Category, error) {
	return getCategory(ctx, ts.q, id)
}

func getCategory(ctx context.Context, q querier, id string) (*engine.Category, error) {
	var c engine.Category
	err := q.QueryRowContext(ctx,
		"SELECT id, name FROM categories WHERE id = ?", id).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) Categories(ctx context.Context) ([]engine.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryCategories(ctx, s.db)
}

func (ts *txStore) Categories(ctx context.Context) ([]engine.Category, error) {
	return queryCategories(ctx, ts.q)
}

func queryCategories(ctx context.Context, q querier) ([]engine.Category, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []engine.Category
	for rows.Next() {
		var c engine.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// =============================================================================
// TIME-OFF STORE
// =============================================================================

const timeOffColumns = `id, employee_id, category_id, start_time, end_time, amount, balance_entry_id`

func (s *Store) SaveTimeOff(ctx context.Context, t *engine.TimeOff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTimeOff(ctx, s.db, t)
}

func (ts *txStore) SaveTimeOff(ctx context.Context, t *engine.TimeOff) error {
	return saveTimeOff(ctx, ts.q, t)
}

func saveTimeOff(ctx context.Context, q querier, t *engine.TimeOff) error {
	query := `
		INSERT INTO time_offs (` + timeOffColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			amount = excluded.amount,
			balance_entry_id = excluded.balance_entry_id
	`
	_, err := q.ExecContext(ctx, query,
		t.ID, t.EmployeeID, t.CategoryID,
		t.StartTime.UTC().Format(time.RFC3339Nano),
		t.EndTime.UTC().Format(time.RFC3339Nano),
		t.Amount.String(), nullString(t.BalanceEntryID),
	)
	if err != nil {
		return fmt.Errorf("failed to save time off: %w", err)
	}
	return nil
}

func (s *Store) DeleteTimeOff(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRow(ctx, s.db, "time_offs", id)
}

func (ts *txStore) DeleteTimeOff(ctx context.Context, id string) error {
	return deleteRow(ctx, ts.q, "time_offs", id)
}

func (s *Store) GetTimeOff(ctx context.Context, id string) (*engine.TimeOff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTimeOff(ctx, s.db, id)
}

func (ts *txStore) GetTimeOff(ctx context.Context, id string) (*engine.TimeOff, error) {
	return getTimeOff(ctx, ts.q, id)
}

func getTimeOff(ctx context.Context, q querier, id string) (*engine.TimeOff, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+timeOffColumns+" FROM time_offs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	t, err := scanTimeOff(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) TimeOffsByEmployee(ctx context.Context, employeeID, categoryID string) ([]engine.TimeOff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryTimeOffs(ctx, s.db, employeeID, categoryID)
}

func (ts *txStore) TimeOffsByEmployee(ctx context.Context, employeeID, categoryID string) ([]engine.TimeOff, error) {
	return queryTimeOffs(ctx, ts.q, employeeID, categoryID)
}

func queryTimeOffs(ctx context.Context, q querier, employeeID, categoryID string) ([]engine.TimeOff, error) {
	query := "SELECT " + timeOffColumns + " FROM time_offs WHERE employee_id = ?"
	args := []any{employeeID}
	if categoryID != "" {
		query += " AND category_id = ?"
		args = append(args, categoryID)
	}
	query += " ORDER BY start_time ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time offs: %w", err)
	}
	defer rows.Close()

	var timeOffs []engine.TimeOff
	for rows.Next() {
		t, err := scanTimeOff(rows)
		if err != nil {
			return nil, err
		}
		timeOffs = append(timeOffs, t)
	}
	return timeOffs, rows.Err()
}

func scanTimeOff(rows *sql.Rows) (engine.TimeOff, error) {
	var (
		t              engine.TimeOff
		start, end     string
		amount         string
		balanceEntryID sql.NullString
	)
	err := rows.Scan(&t.ID, &t.EmployeeID, &t.CategoryID, &start, &end, &amount, &balanceEntryID)
	if err != nil {
		return t, fmt.Errorf("failed to scan time off: %w", err)
	}

	t.StartTime, err = time.Parse(time.RFC3339Nano, start)
	if err != nil {
		return t, err
	}
	t.EndTime, err = time.Parse(time.RFC3339Nano, end)
	if err != nil {
		return t, err
	}
	t.Amount = engine.MustParseMinutes(amount)
	t.BalanceEntryID = balanceEntryID.String
	return t, nil
}

// =============================================================================
// RECOMPUTE RUN STORE
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run *engine.RecomputeRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO recompute_runs (id, employee_id, category_id, status, entries, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			entries = excluded.entries,
			error = excluded.error,
			finished_at = excluded.finished_at
	`
	var finishedAt *string
	if run.FinishedAt != nil {
		f := run.FinishedAt.UTC().Format(time.RFC3339Nano)
		finishedAt = &f
	}
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.EmployeeID, run.CategoryID, string(run.Status), run.Entries,
		nullString(run.Error), run.StartedAt.UTC().Format(time.RFC3339Nano), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save recompute run: %w", err)
	}
	return nil
}

func (s *Store) RunsByStatus(ctx context.Context, status engine.RunStatus) ([]engine.RecomputeRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, category_id, status, entries, error, started_at, finished_at
		FROM recompute_runs
		WHERE status = ?
		ORDER BY started_at ASC
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []engine.RecomputeRun
	for rows.Next() {
		var (
			r          engine.RecomputeRun
			rstatus    string
			errMsg     sql.NullString
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &r.CategoryID, &rstatus,
			&r.Entries, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		r.Status = engine.RunStatus(rstatus)
		r.Error = errMsg.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func deleteRow(ctx context.Context, q querier, table, id string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *engine.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
