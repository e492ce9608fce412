/*
entry.go - Ledger entry factory

PURPOSE:
  The single place balance entries are born. The factory enforces per-kind
  invariants, assigns composite keys, derives default amounts and keeps
  entry creation idempotent so retried operations never produce duplicate
  ledger rows.

IDEMPOTENCY:
  One entry per (employee, category, key date, kind). If a row already
  exists at that slot the call returns it unchanged - a no-op, not an
  error, because retries are expected.

DEFAULTS:
  - Addition at a period start: resource_amount = policy.amount scaled by
    the assignment's occupation rate (zero for counters and placeholder
    periods); manual_amount carries forward from the previous entry.
  - Removals created with a validity date on or before today get their
    amount computed synchronously before save; future removals stay at
    zero until the recompute worker reaches them.
*/
package engine

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// ENTRY FACTORY
// =============================================================================

type EntryFactory struct {
	Resolver PeriodResolver
	Removals *RemovalCalculator

	// Clock returns "today"; overridable in tests.
	Clock func() Date
}

func NewEntryFactory(removals *RemovalCalculator) *EntryFactory {
	return &EntryFactory{Removals: removals, Clock: Today}
}

// EntryInput carries everything needed to create one ledger entry.
type EntryInput struct {
	EmployeeID string
	CategoryID string
	AccountID  string

	AssignmentID string
	PolicyID     string

	Kind        EntryKind
	EffectiveAt Date

	ValidityDate *Date

	// nil = derive from policy/assignment (additions) or default to zero.
	ResourceAmount *Minutes
	// nil = carry forward the previous entry's manual amount.
	ManualAmount *Minutes

	TimeOffID            string
	PolicyCreditAddition bool
}

// CreateEntry creates one balance entry inside the caller's transaction.
// Returns the existing entry unchanged when the slot is already occupied.
func (f *EntryFactory) CreateEntry(ctx context.Context, store Store, in EntryInput) (*BalanceEntry, error) {
	if err := f.validate(ctx, store, in); err != nil {
		return nil, err
	}

	entries, err := store.EntriesByCategory(ctx, in.EmployeeID, in.CategoryID)
	if err != nil {
		return nil, err
	}

	// Idempotency: same slot, same kind -> return the existing row.
	key := KeyFor(in.EffectiveAt, in.Kind)
	for i := range entries {
		e := &entries[i]
		if e.Kind == in.Kind && e.Key.Date.Equal(in.EffectiveAt) {
			return e, nil
		}
	}
	key.Sequence = nextSequence(entries, key)

	entry := &BalanceEntry{
		ID:                   uuid.NewString(),
		EmployeeID:           in.EmployeeID,
		CategoryID:           in.CategoryID,
		AssignmentID:         in.AssignmentID,
		PolicyID:             in.PolicyID,
		Kind:                 in.Kind,
		Key:                  key,
		ValidityDate:         in.ValidityDate,
		TimeOffID:            in.TimeOffID,
		PolicyCreditAddition: in.PolicyCreditAddition,
	}

	if err := f.fillAmounts(ctx, store, entries, entry, in); err != nil {
		return nil, err
	}

	if err := store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	// An addition closing a period that already ended needs its removal
	// immediately; the ledger must never show expired credit as live.
	if entry.Kind == KindAddition && entry.ValidityDate != nil && entry.ValidityDate.BeforeOrEqual(f.today()) {
		if _, err := f.createRemovalFor(ctx, store, entry); err != nil {
			return nil, err
		}
	}

	return entry, nil
}

// CreateRemovalFor builds (or completes) the removal that nets out the
// given addition at its validity date, linking the two.
func (f *EntryFactory) CreateRemovalFor(ctx context.Context, store Store, addition *BalanceEntry) (*BalanceEntry, error) {
	return f.createRemovalFor(ctx, store, addition)
}

func (f *EntryFactory) createRemovalFor(ctx context.Context, store Store, addition *BalanceEntry) (*BalanceEntry, error) {
	if addition.ValidityDate == nil {
		return nil, nil
	}

	removal, err := f.CreateEntry(ctx, store, EntryInput{
		EmployeeID:   addition.EmployeeID,
		CategoryID:   addition.CategoryID,
		AssignmentID: addition.AssignmentID,
		PolicyID:     addition.PolicyID,
		Kind:         KindRemoval,
		EffectiveAt:  *addition.ValidityDate,
	})
	if err != nil {
		return nil, err
	}

	if addition.RemovalID != removal.ID {
		addition.RemovalID = removal.ID
		if err := store.UpdateEntry(ctx, addition); err != nil {
			return nil, err
		}
	}

	policy, err := store.GetPolicy(ctx, removal.PolicyID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, &NotFoundError{Entity: "time_off_policy", ID: removal.PolicyID}
	}

	entries, err := store.EntriesByCategory(ctx, removal.EmployeeID, removal.CategoryID)
	if err != nil {
		return nil, err
	}
	timeOffs, err := store.TimeOffsByEmployee(ctx, removal.EmployeeID, removal.CategoryID)
	if err != nil {
		return nil, err
	}

	amount, err := f.Removals.Amount(ctx, *policy, entries, *removal, timeOffs)
	if err != nil {
		return nil, err
	}
	if !removal.Amount.Equal(amount) {
		removal.Amount = amount
		if err := store.UpdateEntry(ctx, removal); err != nil {
			return nil, err
		}
	}
	return removal, nil
}

// =============================================================================
// AMOUNT DERIVATION
// =============================================================================

// fillAmounts sets resource/manual/net amounts per kind. The same rules are
// applied by the recompute orchestrator, so amounts stay a pure function of
// persisted state.
func (f *EntryFactory) fillAmounts(ctx context.Context, store Store, existing []BalanceEntry, entry *BalanceEntry, in EntryInput) error {
	switch entry.Kind {
	case KindAddition:
		if in.ResourceAmount != nil {
			entry.ResourceAmount = *in.ResourceAmount
		} else {
			amount, err := f.policyGrant(ctx, store, entry)
			if err != nil {
				return err
			}
			entry.ResourceAmount = amount
		}
		if in.ManualAmount != nil {
			entry.ManualAmount = *in.ManualAmount
		} else {
			entry.ManualAmount = previousManualAmount(existing, entry.Key)
		}
		entry.Amount = entry.ResourceAmount.Add(entry.ManualAmount)

	case KindAssignation:
		if in.ManualAmount != nil {
			entry.ManualAmount = *in.ManualAmount
		}
		entry.Amount = entry.ManualAmount

	case KindTimeOff:
		timeOff, err := store.GetTimeOff(ctx, entry.TimeOffID)
		if err != nil {
			return err
		}
		if timeOff == nil {
			return &NotFoundError{Entity: "time_off", ID: entry.TimeOffID}
		}
		entry.Amount = timeOff.Amount.Neg()

	case KindReset:
		// A reset snapshots the outgoing balance in resource_amount and
		// zeroes the ledger at the contract boundary.
		previous := RunningBalance(existing, entry.Key, true)
		entry.ResourceAmount = previous
		entry.Amount = previous.Neg()

	case KindRemoval, KindEndOfPeriod:
		// Removals are computed by createRemovalFor / the recompute
		// orchestrator; end-of-period rows are zero-amount markers.
	}
	return nil
}

// policyGrant derives an addition's resource amount from its policy and
// owning assignment: policy.amount scaled by occupation rate, zero for
// counters, reset policies and placeholder periods.
func (f *EntryFactory) policyGrant(ctx context.Context, store Store, entry *BalanceEntry) (Minutes, error) {
	policy, err := store.GetPolicy(ctx, entry.PolicyID)
	if err != nil {
		return Minutes{}, err
	}
	if policy == nil {
		return Minutes{}, &NotFoundError{Entity: "time_off_policy", ID: entry.PolicyID}
	}
	if policy.Type == PolicyCounter || policy.Reset {
		return NewMinutes(0), nil
	}

	assignment, err := store.GetAssignment(ctx, entry.AssignmentID)
	if err != nil {
		return Minutes{}, err
	}
	if assignment == nil {
		return Minutes{}, &NotFoundError{Entity: "policy_assignment", ID: entry.AssignmentID}
	}

	period := f.Resolver.PeriodFor(*policy, *assignment, entry.Key.Date)
	if period.Placeholder {
		return NewMinutes(0), nil
	}
	return policy.Amount.Mul(assignment.Rate()), nil
}

func (f *EntryFactory) validate(ctx context.Context, store Store, in EntryInput) error {
	v := NewValidationError("balance_entry", "")
	if in.EmployeeID == "" {
		v.Add("employee_id", "is required")
	}
	if in.CategoryID == "" {
		v.Add("category_id", "is required")
	}
	if !in.Kind.Valid() {
		v.Add("balance_type", "unknown entry kind")
	}
	if in.EffectiveAt.IsZero() {
		v.Add("effective_at", "is required")
	}
	if in.Kind == KindTimeOff && in.TimeOffID == "" {
		v.Add("time_off_id", "is required for time_off entries")
	}
	if in.Kind == KindAddition && in.PolicyID == "" && in.ResourceAmount == nil {
		v.Add("policy_id", "is required to derive an addition amount")
	}
	if err := v.OrNil(); err != nil {
		return err
	}

	if in.CategoryID != "" {
		category, err := store.GetCategory(ctx, in.CategoryID)
		if err != nil {
			return err
		}
		if category == nil {
			return &NotFoundError{Entity: "category", ID: in.CategoryID}
		}
	}
	return nil
}

func (f *EntryFactory) today() Date {
	if f.Clock != nil {
		return f.Clock()
	}
	return Today()
}

// previousManualAmount carries forward the manual adjustment from the last
// credit entry before key.
func previousManualAmount(entries []BalanceEntry, key EntryKey) Minutes {
	manual := NewMinutes(0)
	for i := range entries {
		if entries[i].Key.Compare(key) >= 0 {
			break
		}
		if entries[i].IsCredit() {
			manual = entries[i].ManualAmount
		}
	}
	return manual
}

// nextSequence returns the first free sequence for entries sharing the
// key's date and priority.
func nextSequence(entries []BalanceEntry, key EntryKey) int {
	next := 0
	for i := range entries {
		k := entries[i].Key
		if k.Date.Equal(key.Date) && k.Priority == key.Priority && k.Sequence >= next {
			next = k.Sequence + 1
		}
	}
	return next
}
