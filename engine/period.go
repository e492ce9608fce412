/*
period.go - Policy period resolution

PURPOSE:
  Computes the [start, end] validity window ("policy year") a reference
  date falls into for a given assignment. Pure function over assignment and
  policy metadata; periods are derived, never persisted.

PERIOD RULES:
  - The period start is the latest start anniversary (start_month/day) on
    or before the reference date, clamped to the assignment's effective_at.
    An effective_at landing exactly on the anniversary IS a boundary, so
    there is no partial first period in that case.
  - The validity date is the first end anniversary (end_month/day) on or
    after the period's last day, so Jan 1 policy years with an Apr 1 end
    anniversary carry over into the following year. Policies without an end
    anniversary (counters) never expire: ValidityDate is nil.
  - With years_to_effect > 0 the first N periods are placeholders granting
    zero minutes (waiting periods for new hires).
*/
package engine

// =============================================================================
// POLICY PERIOD
// =============================================================================

// PolicyPeriod is one computed policy year of an assignment.
type PolicyPeriod struct {
	Start Date

	// ValidityDate is the last day credits from this period may be drawn
	// down; nil = never expires.
	ValidityDate *Date

	// Placeholder periods (inside the years_to_effect window) grant zero.
	Placeholder bool
}

// Contains reports whether d falls inside the period.
func (p PolicyPeriod) Contains(d Date) bool {
	if d.Before(p.Start) {
		return false
	}
	if p.ValidityDate != nil && d.After(*p.ValidityDate) {
		return false
	}
	return true
}

// =============================================================================
// PERIOD RESOLVER
// =============================================================================

type PeriodResolver struct{}

// PeriodFor returns the policy period containing ref for the given
// assignment. ref dates before the assignment's effective_at resolve to
// the first period.
func (PeriodResolver) PeriodFor(policy TimeOffPolicy, assignment PolicyAssignment, ref Date) PolicyPeriod {
	if ref.Before(assignment.EffectiveAt) {
		ref = assignment.EffectiveAt
	}

	start := anniversaryOnOrBefore(policy.StartMonth, policy.StartDay, ref)
	if start.Before(assignment.EffectiveAt) {
		// Partial first period: the assignment starts mid-year.
		start = assignment.EffectiveAt
	}

	period := PolicyPeriod{Start: start}
	period.ValidityDate = validityFor(policy, start)
	period.Placeholder = isPlaceholder(policy, assignment, start)
	return period
}

// NextPeriod returns the period immediately following the given one.
func (r PeriodResolver) NextPeriod(policy TimeOffPolicy, assignment PolicyAssignment, current PolicyPeriod) PolicyPeriod {
	nextStart := anniversaryAfter(policy.StartMonth, policy.StartDay, current.Start)
	period := PolicyPeriod{Start: nextStart}
	period.ValidityDate = validityFor(policy, nextStart)
	period.Placeholder = isPlaceholder(policy, assignment, nextStart)
	return period
}

// validityFor derives the period's validity date: the first end anniversary
// on or after the period's last day. Anchoring on the period end (not its
// start) keeps partial first periods and full years on the same validity.
func validityFor(policy TimeOffPolicy, start Date) *Date {
	if !policy.HasEnd() {
		return nil
	}
	periodEnd := anniversaryAfter(policy.StartMonth, policy.StartDay, start).AddDays(-1)
	validity := anniversaryAfter(policy.EndMonth, policy.EndDay, periodEnd.AddDays(-1))
	return &validity
}

// PeriodsBetween enumerates every period whose start falls in [from, till].
// Used when an assignment is created retroactively and multiple period
// boundaries need ledger entries at once.
func (r PeriodResolver) PeriodsBetween(policy TimeOffPolicy, assignment PolicyAssignment, from, till Date) []PolicyPeriod {
	var periods []PolicyPeriod
	current := r.PeriodFor(policy, assignment, from)
	for current.Start.BeforeOrEqual(till) {
		periods = append(periods, current)
		next := r.NextPeriod(policy, assignment, current)
		if !next.Start.After(current.Start) {
			break
		}
		current = next
	}
	return periods
}

// isPlaceholder reports whether the period starting at start is one of the
// policy's first years_to_effect periods. A mid-year assignment's partial
// first period counts as period zero, so the waiting window is a period
// count, not a date span.
func isPlaceholder(policy TimeOffPolicy, assignment PolicyAssignment, start Date) bool {
	if policy.YearsToEffect <= 0 || start.Before(assignment.EffectiveAt) {
		return false
	}
	index := 0
	for s := assignment.EffectiveAt; s.Before(start); index++ {
		s = anniversaryAfter(policy.StartMonth, policy.StartDay, s)
	}
	return index < policy.YearsToEffect
}
