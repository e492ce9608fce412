/*
assignment.go - Policy assignment timeline

PURPOSE:
  A PolicyAssignment says "employee uses resource X starting at date D".
  Per (employee, category) the assignments form a gapless, non-overlapping
  timeline: each assignment runs from its effective_at to the day before
  the next assignment's effective_at. Gaps after a contract end are bridged
  by assignments pointing at the designated reset policy.

INVARIANTS:
  - At most one non-reset assignment per (employee, category, effective_at)
  - effective_till is derived, never written independently: it is always
    next.effective_at - 1 day, nil for the open-ended last assignment
  - Only ResourceTimeOff assignments own balance entries

SEE ALSO:
  - lifecycle.go: create/update/destroy protocol with dedup rules
  - contract.go: reset bridging on contract end / rehire
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY ASSIGNMENT
// =============================================================================

type PolicyAssignment struct {
	ID         string
	EmployeeID string

	Kind       ResourceKind
	ResourceID string
	// CategoryID is set only when Kind.HasCategory().
	CategoryID string

	EffectiveAt Date
	// Derived exclusive upper bound: next assignment's EffectiveAt - 1 day.
	EffectiveTill *Date

	// True when ResourceID is the designated reset/placeholder policy.
	Reset bool

	// Fraction of a full-time schedule; scales policy grants.
	OccupationRate decimal.Decimal
}

// ActiveAt reports whether the assignment covers the given date.
func (a PolicyAssignment) ActiveAt(d Date) bool {
	if d.Before(a.EffectiveAt) {
		return false
	}
	if a.EffectiveTill != nil && d.After(*a.EffectiveTill) {
		return false
	}
	return true
}

// Rate returns the occupation rate, defaulting to full time when unset.
func (a PolicyAssignment) Rate() decimal.Decimal {
	if a.OccupationRate.IsZero() {
		return FullRate
	}
	return a.OccupationRate
}

// Validate checks structural invariants before an assignment is persisted.
func (a PolicyAssignment) Validate() error {
	v := NewValidationError("policy_assignment", a.ID)
	if a.EmployeeID == "" {
		v.Add("employee_id", "is required")
	}
	if a.ResourceID == "" {
		v.Add("resource_id", "is required")
	}
	if !a.Kind.Valid() {
		v.Add("kind", "unknown resource kind")
	}
	if a.Kind.HasCategory() && a.CategoryID == "" {
		v.Add("category_id", "is required for time-off assignments")
	}
	if a.EffectiveAt.IsZero() {
		v.Add("effective_at", "is required")
	}
	if a.OccupationRate.IsNegative() || a.OccupationRate.GreaterThan(FullRate) {
		v.Add("occupation_rate", "must be within (0, 1]")
	}
	return v.OrNil()
}

// =============================================================================
// TIMELINE - Ordered view over one (employee, [category]) scope
// =============================================================================

// Timeline is a slice of assignments in the same scope, kept ordered by
// EffectiveAt. The zero timeline is usable.
type Timeline []PolicyAssignment

func NewTimeline(assignments []PolicyAssignment) Timeline {
	tl := make(Timeline, len(assignments))
	copy(tl, assignments)
	sort.SliceStable(tl, func(i, j int) bool {
		return tl[i].EffectiveAt.Before(tl[j].EffectiveAt)
	})
	return tl
}

// Preceding returns the last assignment starting strictly before d.
func (tl Timeline) Preceding(d Date) *PolicyAssignment {
	for i := len(tl) - 1; i >= 0; i-- {
		if tl[i].EffectiveAt.Before(d) {
			return &tl[i]
		}
	}
	return nil
}

// Following returns the first assignment starting strictly after d.
func (tl Timeline) Following(d Date) *PolicyAssignment {
	for i := range tl {
		if tl[i].EffectiveAt.After(d) {
			return &tl[i]
		}
	}
	return nil
}

// ExactlyAt returns the assignment starting exactly at d, nil if none.
func (tl Timeline) ExactlyAt(d Date) *PolicyAssignment {
	for i := range tl {
		if tl[i].EffectiveAt.Equal(d) {
			return &tl[i]
		}
	}
	return nil
}

// WithTills returns a copy where every EffectiveTill is re-derived from its
// successor. The last assignment stays open-ended.
func (tl Timeline) WithTills() Timeline {
	out := make(Timeline, len(tl))
	copy(out, tl)
	for i := range out {
		if i+1 < len(out) {
			till := out[i+1].EffectiveAt.AddDays(-1)
			out[i].EffectiveTill = &till
		} else {
			out[i].EffectiveTill = nil
		}
	}
	return out
}

// Validate checks the no-overlap / density-one invariant.
func (tl Timeline) Validate() error {
	for i := 1; i < len(tl); i++ {
		if !tl[i].EffectiveAt.After(tl[i-1].EffectiveAt) {
			return &DuplicateAssignmentError{
				EmployeeID:  tl[i].EmployeeID,
				CategoryID:  tl[i].CategoryID,
				EffectiveAt: tl[i].EffectiveAt,
				ExistingID:  tl[i-1].ID,
			}
		}
	}
	return nil
}
