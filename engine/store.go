/*
store.go - Persistence interfaces for the ledger engine

PURPOSE:
  Defines the contract between the engine and storage. Unlike a classic
  append-only ledger, balance entries here are recomputed in place: an
  upstream edit re-derives downstream amounts rather than appending
  reversals, so the store exposes update and delete alongside create. The
  audit property is preserved differently - every amount is a pure function
  of persisted state, so any value can be re-derived and checked.

TRANSACTIONS:
  WithTx executes fn against a transactional view. If fn returns an error
  the transaction is rolled back; the engine relies on this for the
  "no partial mutation is ever persisted" guarantee.

IMPLEMENTATIONS:
  - engine/store: in-memory (tests, demo server)
  - store/sqlite: SQLite
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// ENTRY STORE
// =============================================================================

type EntryStore interface {
	CreateEntry(ctx context.Context, e *BalanceEntry) error
	UpdateEntry(ctx context.Context, e *BalanceEntry) error
	DeleteEntry(ctx context.Context, id string) error

	// GetEntry returns (nil, nil) when the id is unknown; recompute tasks
	// racing a delete must be able to no-op instead of erroring.
	GetEntry(ctx context.Context, id string) (*BalanceEntry, error)

	// EntriesByCategory returns the full ledger for one (employee,
	// category), ordered by composite key.
	EntriesByCategory(ctx context.Context, employeeID, categoryID string) ([]BalanceEntry, error)

	// EntriesBeingProcessed returns flagged entries in key order.
	EntriesBeingProcessed(ctx context.Context, employeeID, categoryID string) ([]BalanceEntry, error)
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

type AssignmentStore interface {
	SaveAssignment(ctx context.Context, a *PolicyAssignment) error
	DeleteAssignment(ctx context.Context, id string) error
	GetAssignment(ctx context.Context, id string) (*PolicyAssignment, error)

	// AssignmentsByEmployee returns assignments of one kind ordered by
	// EffectiveAt. categoryID narrows the scope when the kind has one;
	// pass "" for kinds without categories.
	AssignmentsByEmployee(ctx context.Context, employeeID string, kind ResourceKind, categoryID string) ([]PolicyAssignment, error)
}

// =============================================================================
// POLICY / CATEGORY STORE
// =============================================================================

type PolicyStore interface {
	SavePolicy(ctx context.Context, p *TimeOffPolicy) error
	GetPolicy(ctx context.Context, id string) (*TimeOffPolicy, error)

	// ResetPolicy returns the designated placeholder policy for a
	// category, used to bridge post-contract-end gaps.
	ResetPolicy(ctx context.Context, categoryID string) (*TimeOffPolicy, error)

	SaveCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id string) (*Category, error)
	Categories(ctx context.Context) ([]Category, error)
}

// =============================================================================
// TIME-OFF STORE
// =============================================================================

type TimeOffStore interface {
	SaveTimeOff(ctx context.Context, t *TimeOff) error
	DeleteTimeOff(ctx context.Context, id string) error
	GetTimeOff(ctx context.Context, id string) (*TimeOff, error)
	TimeOffsByEmployee(ctx context.Context, employeeID, categoryID string) ([]TimeOff, error)
}

// =============================================================================
// COMBINED STORE + TRANSACTIONS
// =============================================================================

// Store bundles everything the engine persists.
type Store interface {
	EntryStore
	AssignmentStore
	PolicyStore
	TimeOffStore
}

// TxStore wraps Store with transaction support. Multi-row writes always go
// through WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// TASK RUNNER - Async recompute scheduling
// =============================================================================

// TaskRunner schedules background work after the enclosing transaction
// commits. Delivery is at-least-once; tasks must be idempotent.
type TaskRunner interface {
	Schedule(ctx context.Context, task string, args map[string]string) error
}

// TaskRecompute is the task name the orchestrator schedules. Args carry
// employee_id and category_id.
const TaskRecompute = "balance.recompute"

// =============================================================================
// RECOMPUTE RUN RECORDS
// =============================================================================

// RecomputeRun records one execution of the async recompute task, so
// re-deliveries are observable and auditable.
type RecomputeRun struct {
	ID         string
	EmployeeID string
	CategoryID string
	Status     RunStatus
	Entries    int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunStore persists recompute run records. Optional: stores that do not
// implement it simply skip run bookkeeping.
type RunStore interface {
	SaveRun(ctx context.Context, run *RecomputeRun) error
	RunsByStatus(ctx context.Context, status RunStatus) ([]RecomputeRun, error)
}
