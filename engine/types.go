/*
Package engine implements the employee balance ledger engine.

PURPOSE:
  Tracks time-off entitlement per (employee, category) as a ledger of signed
  balance entries, and maintains the timeline of policy assignments that
  drives ledger creation. At any date, replaying the ledger yields the
  accrued-vs-taken balance, consistent with policy periods, contract
  boundaries (hire / contract end / rehire) and mid-period policy changes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Minutes: a signed amount of entitlement, always whole minutes
  - EntryKind: the six ledger row types with their same-day ordering
  - EntryKey: explicit (date, kind priority, sequence) composite sort key
  - BalanceEntry: one signed movement of balance (the core ledger row)

DESIGN PRINCIPLES:
  1. Re-derivation over increments: an entry's amount is always a pure
     function of persisted state, so recomputation is idempotent
  2. Precision: decimal.Decimal, no floating point in balance arithmetic
  3. Explicit ordering: no timestamp-offset tricks; EntryKey carries the
     assignation < addition < end_of_period < time_off < removal < reset
     same-day order
  4. Explicit context: employee/category ids are threaded through every
     call, never ambient state

SEE ALSO:
  - policy.go: time-off policies (counter vs balancer) and resource kinds
  - entry.go: the ledger entry factory
  - removal.go: removal amount arithmetic
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MINUTES - Signed entitlement amount
// =============================================================================

// Minutes is a signed quantity of time-off entitlement. All engine
// arithmetic stays on whole minutes; decimal avoids float drift when
// occupation rates scale policy grants.
type Minutes struct {
	Value decimal.Decimal
}

func NewMinutes(n int64) Minutes {
	return Minutes{Value: decimal.NewFromInt(n)}
}

func MinutesFromDecimal(d decimal.Decimal) Minutes {
	return Minutes{Value: d}
}

func MustParseMinutes(s string) Minutes {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Minutes{Value: decimal.Zero}
	}
	return Minutes{Value: d}
}

func (m Minutes) Add(o Minutes) Minutes          { return Minutes{Value: m.Value.Add(o.Value)} }
func (m Minutes) Sub(o Minutes) Minutes          { return Minutes{Value: m.Value.Sub(o.Value)} }
func (m Minutes) Neg() Minutes                   { return Minutes{Value: m.Value.Neg()} }
func (m Minutes) Mul(s decimal.Decimal) Minutes  { return Minutes{Value: m.Value.Mul(s)} }
func (m Minutes) IsZero() bool                   { return m.Value.IsZero() }
func (m Minutes) IsNegative() bool               { return m.Value.IsNegative() }
func (m Minutes) IsPositive() bool               { return m.Value.IsPositive() }
func (m Minutes) GreaterThan(o Minutes) bool     { return m.Value.GreaterThan(o.Value) }
func (m Minutes) GreaterOrEqual(o Minutes) bool  { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Minutes) LessThan(o Minutes) bool        { return m.Value.LessThan(o.Value) }
func (m Minutes) Equal(o Minutes) bool           { return m.Value.Equal(o.Value) }
func (m Minutes) String() string                 { return m.Value.String() }

func (m Minutes) Min(o Minutes) Minutes {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Minutes) Max(o Minutes) Minutes {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// PositivePart returns m when positive, zero otherwise.
func (m Minutes) PositivePart() Minutes {
	if m.IsPositive() {
		return m
	}
	return NewMinutes(0)
}

// =============================================================================
// ENTRY KIND - Ledger row types with explicit same-day ordering
// =============================================================================

type EntryKind string

const (
	KindAssignation EntryKind = "assignation"   // start of an assignment, manual-amount carry point
	KindAddition    EntryKind = "addition"      // policy grant at a period boundary
	KindEndOfPeriod EntryKind = "end_of_period" // zero-amount marker closing a period
	KindTimeOff     EntryKind = "time_off"      // debit for an approved absence
	KindRemoval     EntryKind = "removal"       // expires/zeroes additions at a validity boundary
	KindReset       EntryKind = "reset"         // contract-boundary snapshot row
)

// Priority fixes the order of entries sharing a date. The sequence mirrors
// the lifecycle of a day: assignments land first, grants next, period
// markers and debits after, expiries and resets last.
func (k EntryKind) Priority() int {
	switch k {
	case KindAssignation:
		return 10
	case KindAddition:
		return 20
	case KindEndOfPeriod:
		return 30
	case KindTimeOff:
		return 40
	case KindRemoval:
		return 50
	case KindReset:
		return 60
	default:
		return 99
	}
}

func (k EntryKind) Valid() bool {
	switch k {
	case KindAssignation, KindAddition, KindEndOfPeriod, KindTimeOff, KindRemoval, KindReset:
		return true
	}
	return false
}

// =============================================================================
// ENTRY KEY - Composite sort key (date, kind priority, sequence)
// =============================================================================

// EntryKey orders ledger entries deterministically. Two entries of the same
// kind on the same day are ordered by Sequence (insertion order).
type EntryKey struct {
	Date     Date
	Priority int
	Sequence int
}

func KeyFor(date Date, kind EntryKind) EntryKey {
	return EntryKey{Date: date, Priority: kind.Priority()}
}

func (k EntryKey) Compare(o EntryKey) int {
	switch {
	case k.Date.Before(o.Date):
		return -1
	case k.Date.After(o.Date):
		return 1
	case k.Priority != o.Priority:
		if k.Priority < o.Priority {
			return -1
		}
		return 1
	case k.Sequence != o.Sequence:
		if k.Sequence < o.Sequence {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func (k EntryKey) Before(o EntryKey) bool { return k.Compare(o) < 0 }
func (k EntryKey) After(o EntryKey) bool  { return k.Compare(o) > 0 }
func (k EntryKey) Equal(o EntryKey) bool  { return k.Compare(o) == 0 }

// =============================================================================
// BALANCE ENTRY - One signed movement of time-off balance
// =============================================================================

// BalanceEntry is the core ledger row. Amount is the computed net movement;
// summing amounts in key order yields the running balance.
type BalanceEntry struct {
	ID         string
	EmployeeID string
	CategoryID string

	// The policy assignment that owns this entry (drives destroy cascades).
	AssignmentID string
	// The time-off policy whose period produced this entry.
	PolicyID string

	Kind EntryKind
	Key  EntryKey

	// System-computed accrual (policy amount, scaled by occupation rate).
	ResourceAmount Minutes
	// User override/adjustment, carried forward between entries.
	ManualAmount Minutes
	// Computed net movement. Re-derived, never incremented.
	Amount Minutes

	// Expiry date for balancer credits; nil = never expires (counter).
	ValidityDate *Date

	// True while a queued recompute has not yet re-derived Amount.
	BeingProcessed bool

	// True if this addition was system-generated at a policy period start.
	PolicyCreditAddition bool

	// Set only for Kind == KindTimeOff.
	TimeOffID string
	// For additions: the removal that will net this credit out at its
	// validity date. A removal aggregates one-or-many additions.
	RemovalID string
}

// IsCredit reports whether the entry can carry positive balance forward.
func (e *BalanceEntry) IsCredit() bool {
	return e.Kind == KindAddition || e.Kind == KindAssignation || e.Kind == KindReset
}

// RunningBalance sums entry amounts in key order up to and including the
// entry at stop (exclusive when exclusive is true). Entries must already be
// sorted by key.
func RunningBalance(entries []BalanceEntry, stop EntryKey, exclusive bool) Minutes {
	total := NewMinutes(0)
	for i := range entries {
		c := entries[i].Key.Compare(stop)
		if c > 0 || (exclusive && c == 0) {
			break
		}
		total = total.Add(entries[i].Amount)
	}
	return total
}

// SortEntries orders entries by their composite key, in place.
func SortEntries(entries []BalanceEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Key.Before(entries[j].Key)
	})
}
