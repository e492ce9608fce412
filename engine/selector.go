/*
selector.go - Dependent-entries selection

PURPOSE:
  Given a mutated or deleted entry, decides which downstream ledger rows
  must be recomputed. Recomputing everything downstream on every edit is
  correct but wasteful; the selector narrows the set when the ledger
  structure proves nothing further can be affected.

RULES (in priority order):
  1. Last entry, no linked time-off, no date override -> just itself.
  2. Update-all requested, explicit date override, or an addition whose
     removal was destroyed -> everything at-or-after the earliest affected
     date.
  3. Counter policies: a removal re-zeroes the running total, so nothing
     past the next addition can change -> select up to (and including) the
     next addition.
     Balancer policies: walk removals after the change accumulating their
     magnitudes; the first removal whose accumulated magnitude covers the
     amount delta absorbs it -> select up to that removal. No such removal
     -> everything downstream.

  Bugs here surface as stale balances arbitrarily far in the future, so
  tests cover the large-history single-old-edit case.
*/
package engine

// =============================================================================
// SELECTION INPUT
// =============================================================================

// Selection describes one mutation the selector should find dependents for.
type Selection struct {
	// Entry is the changed/deleted entry (a snapshot from before deletion).
	Entry BalanceEntry

	// UpdateAll forces rule 2 regardless of ledger shape.
	UpdateAll bool

	// DateOverride, when set, is an explicit earliest affected date (e.g.
	// an assignment moved to a new effective_at).
	DateOverride *Date

	// RemovalDestroyed marks an addition whose linked removal was just
	// deleted; coverage reasoning no longer holds for it.
	RemovalDestroyed bool

	// AmountDelta is the magnitude of the change, used for balancer
	// removal-coverage narrowing. Zero delta disables narrowing by
	// coverage and falls back to the structural rules.
	AmountDelta Minutes

	// TimeOffStart is the start date of the entry's linked time-off, when
	// any; it can pull the affected range earlier than the entry itself.
	TimeOffStart *Date
}

// =============================================================================
// SELECTOR
// =============================================================================

type DependentSelector struct{}

// Select returns the ids of entries to recompute, in key order. entries is
// the full (employee, category) ledger sorted by key; policy is the one
// governing the category timeline at the change date.
func (DependentSelector) Select(policy TimeOffPolicy, entries []BalanceEntry, sel Selection) []string {
	from := sel.earliestAffected()

	// Rule 1: nothing downstream depends on a trailing edit.
	if !sel.UpdateAll && sel.DateOverride == nil && sel.Entry.TimeOffID == "" && !sel.RemovalDestroyed {
		if isLast(entries, sel.Entry) {
			return []string{sel.Entry.ID}
		}
	}

	// Rule 2: full downstream selection.
	if sel.UpdateAll || sel.DateOverride != nil || sel.RemovalDestroyed {
		return idsFrom(entries, from, nil)
	}

	// Rule 3: policy-type narrowing.
	if policy.Type == PolicyCounter {
		stop := nextAdditionAfter(entries, sel.Entry.Key)
		return idsFrom(entries, from, stop)
	}
	stop := coveringRemoval(entries, sel.Entry.Key, sel.AmountDelta)
	return idsFrom(entries, from, stop)
}

func (sel Selection) earliestAffected() Date {
	from := sel.Entry.Key.Date
	if sel.DateOverride != nil && sel.DateOverride.Before(from) {
		from = *sel.DateOverride
	}
	if sel.TimeOffStart != nil && sel.TimeOffStart.Before(from) {
		from = *sel.TimeOffStart
	}
	return from
}

func isLast(entries []BalanceEntry, entry BalanceEntry) bool {
	if len(entries) == 0 {
		return true
	}
	last := entries[len(entries)-1]
	return last.ID == entry.ID || entry.Key.Compare(last.Key) >= 0
}

// nextAdditionAfter returns the key of the first addition strictly after
// key, nil when there is none. Counter removals re-zero the total, so the
// next grant is the natural recompute horizon.
func nextAdditionAfter(entries []BalanceEntry, key EntryKey) *EntryKey {
	for i := range entries {
		e := &entries[i]
		if e.Kind == KindAddition && e.Key.Compare(key) > 0 {
			k := e.Key
			return &k
		}
	}
	return nil
}

// coveringRemoval walks removals after key accumulating their magnitudes
// until one covers delta. Returns nil (select everything) when no removal
// absorbs the change or delta is zero.
func coveringRemoval(entries []BalanceEntry, key EntryKey, delta Minutes) *EntryKey {
	if delta.IsZero() {
		return nil
	}
	need := Minutes{Value: delta.Value.Abs()}
	acc := NewMinutes(0)
	for i := range entries {
		e := &entries[i]
		if e.Key.Compare(key) <= 0 || e.Kind != KindRemoval {
			continue
		}
		acc = acc.Add(Minutes{Value: e.Amount.Value.Abs()})
		if acc.GreaterOrEqual(need) {
			k := e.Key
			return &k
		}
	}
	return nil
}

// idsFrom collects ids of entries with key date >= from, stopping after
// stop (inclusive) when given.
func idsFrom(entries []BalanceEntry, from Date, stop *EntryKey) []string {
	var ids []string
	for i := range entries {
		e := &entries[i]
		if e.Key.Date.Before(from) {
			continue
		}
		ids = append(ids, e.ID)
		if stop != nil && e.Key.Compare(*stop) >= 0 {
			break
		}
	}
	return ids
}
