/*
policy.go - Time-off policies, categories and resource kinds

PURPOSE:
  Defines the rules a ledger timeline runs under. A TimeOffPolicy is either
  a counter (running usage total, no expiry, removals zero it) or a
  balancer (fixed grant per period, unused credit expires at a validity
  date). ResourceKind is the closed set of things an assignment can point
  at; only time-off assignments create balance entries.

COUNTER vs BALANCER:
  Counter:
    - No period end, additions carry amount 0
    - The ledger is a usage counter; a removal nets it back to zero
    - Example: unpaid leave, tracked but never granted

  Balancer:
    - Grants Amount minutes at each period start
    - Unused credit survives until the period's validity date, then a
      removal expires whatever is left
    - Example: 2400 minutes/year of paid vacation
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY TYPE
// =============================================================================

type PolicyType string

const (
	PolicyCounter  PolicyType = "counter"
	PolicyBalancer PolicyType = "balancer"
)

// =============================================================================
// TIME-OFF POLICY
// =============================================================================

// TimeOffPolicy is the per-category ruleset a ledger timeline runs under.
type TimeOffPolicy struct {
	ID         string
	Name       string
	CategoryID string
	Type       PolicyType

	// Minutes granted at each period start. Always zero for counters.
	Amount Minutes

	// Accrual anniversary (period start).
	StartDay   int
	StartMonth time.Month

	// Expiry anniversary. Zero values = no expiry; counters never set these.
	EndDay   int
	EndMonth time.Month

	// Number of initial periods that grant nothing (waiting periods).
	YearsToEffect int

	// True for the designated placeholder policy bridging post-contract-end
	// gaps. Reset policies grant nothing and own reset entries only.
	Reset bool
}

// HasEnd reports whether credits under this policy ever expire.
func (p TimeOffPolicy) HasEnd() bool {
	return p.EndDay != 0 && p.EndMonth != 0
}

// Validate checks structural invariants before a policy is persisted.
func (p TimeOffPolicy) Validate() error {
	v := NewValidationError("time_off_policy", p.ID)
	if p.CategoryID == "" {
		v.Add("category_id", "is required")
	}
	if p.Type != PolicyCounter && p.Type != PolicyBalancer {
		v.Add("type", "must be counter or balancer")
	}
	if p.StartDay < 1 || p.StartDay > 31 || p.StartMonth < time.January || p.StartMonth > time.December {
		v.Add("start", "invalid anniversary")
	}
	if p.Type == PolicyCounter && p.HasEnd() {
		v.Add("end", "counter policies never expire")
	}
	if p.Type == PolicyCounter && !p.Amount.IsZero() {
		v.Add("amount", "counter policies carry no grant")
	}
	if p.Amount.IsNegative() {
		v.Add("amount", "must not be negative")
	}
	return v.OrNil()
}

// =============================================================================
// CATEGORY
// =============================================================================

// Category groups balance entries and policies (vacation, sickness, ...).
// BalanceEntry rows are owned by (employee, category).
type Category struct {
	ID   string
	Name string
}

// =============================================================================
// RESOURCE KIND - What a policy assignment points at
// =============================================================================

// ResourceKind is the closed set of assignable resources. It replaces
// per-kind join-table types: one PolicyAssignment struct, parameterized by
// kind, with capabilities answered here instead of via reflection.
type ResourceKind string

const (
	ResourceTimeOff      ResourceKind = "time_off_policy"
	ResourcePresence     ResourceKind = "presence_policy"
	ResourceWorkingPlace ResourceKind = "working_place"
)

// CreatesBalanceEntries reports whether assignments of this kind drive the
// ledger. Presence policies and working places only shape schedules.
func (k ResourceKind) CreatesBalanceEntries() bool { return k == ResourceTimeOff }

// HasCategory reports whether assignments of this kind are scoped to a
// time-off category.
func (k ResourceKind) HasCategory() bool { return k == ResourceTimeOff }

func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceTimeOff, ResourcePresence, ResourceWorkingPlace:
		return true
	}
	return false
}

// FullRate is the default occupation rate for assignments.
var FullRate = decimal.NewFromInt(1)
