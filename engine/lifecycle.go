/*
lifecycle.go - Policy-assignment lifecycle

PURPOSE:
  Create/update/destroy protocol for the time-bounded assignment rows that
  drive ledger creation. Writes are a small state machine relative to the
  existing timeline at date D:

    - exact duplicate (same resource at D)     -> rejected
    - distinct resource exactly at D           -> update in place (200)
    - preceding assignment has same resource   -> merge-left, no new row (205)
    - following assignment has same resource   -> deleted (window merges forward)
    - otherwise                                -> create (201)

  Every mutation runs in one transaction; ledger cascade (assignation +
  addition entries, dependent selection, recompute marking) happens inside
  it and the async recompute task is scheduled only after commit.

SEE ALSO:
  - assignment.go: timeline queries and till derivation
  - contract.go: the reset assignments this manager must not destroy
*/
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// RESULT STATUSES
// =============================================================================

// AssignmentStatus mirrors the HTTP codes surfaced to callers.
type AssignmentStatus int

const (
	StatusUpdated AssignmentStatus = 200
	StatusCreated AssignmentStatus = 201
	StatusMerged  AssignmentStatus = 205
)

type AssignmentResult struct {
	Assignment PolicyAssignment
	Status     AssignmentStatus
}

// =============================================================================
// LIFECYCLE MANAGER
// =============================================================================

type LifecycleManager struct {
	Store     TxStore
	Runner    TaskRunner
	Factory   *EntryFactory
	Selector  DependentSelector
	Recompute *RecomputeOrchestrator
	Resolver  PeriodResolver
}

func NewLifecycleManager(store TxStore, runner TaskRunner, factory *EntryFactory, recompute *RecomputeOrchestrator) *LifecycleManager {
	return &LifecycleManager{
		Store:     store,
		Runner:    runner,
		Factory:   factory,
		Recompute: recompute,
	}
}

// AssignmentInput is one write against an employee's timeline.
type AssignmentInput struct {
	EmployeeID string

	Kind       ResourceKind
	ResourceID string
	CategoryID string

	EffectiveAt Date
	Reset       bool
	// Zero means full time.
	OccupationRate decimal.Decimal
}

// CreateOrUpdateAssignment applies one timeline write and returns what
// happened. The whole mutation, ledger cascade included, is one
// transaction; the recompute task is scheduled only after it commits.
func (m *LifecycleManager) CreateOrUpdateAssignment(ctx context.Context, in AssignmentInput) (*AssignmentResult, error) {
	var (
		result    *AssignmentResult
		recompute bool
	)

	err := m.Store.WithTx(ctx, func(tx Store) error {
		var err error
		result, recompute, err = m.apply(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	if recompute && in.Kind.CreatesBalanceEntries() {
		if err := m.Recompute.ScheduleRecompute(ctx, m.Runner, in.EmployeeID, in.CategoryID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (m *LifecycleManager) apply(ctx context.Context, tx Store, in AssignmentInput) (*AssignmentResult, bool, error) {
	assignments, err := tx.AssignmentsByEmployee(ctx, in.EmployeeID, in.Kind, in.CategoryID)
	if err != nil {
		return nil, false, err
	}
	timeline := NewTimeline(assignments)
	d := in.EffectiveAt

	// Duplicate guard: same resource exactly at D is a rejected no-op
	// write, not an idempotent success - callers must know their intent
	// collided with existing state.
	if exact := timeline.ExactlyAt(d); exact != nil {
		if exact.ResourceID == in.ResourceID {
			return nil, false, &DuplicateAssignmentError{
				EmployeeID:  in.EmployeeID,
				CategoryID:  in.CategoryID,
				EffectiveAt: d,
				ExistingID:  exact.ID,
			}
		}
		// Distinct resource at the same date replaces in place.
		return m.replaceInPlace(ctx, tx, timeline, exact, in)
	}

	// Merge-left: reassigning the resource already active at D changes
	// nothing; the preceding row's window extends naturally.
	if prev := timeline.Preceding(d); prev != nil && prev.ResourceID == in.ResourceID {
		if err := m.removeRightDuplicate(ctx, tx, timeline, d, in.ResourceID); err != nil {
			return nil, false, err
		}
		if err := m.rederiveTills(ctx, tx, in); err != nil {
			return nil, false, err
		}
		merged, err := tx.GetAssignment(ctx, prev.ID)
		if err != nil {
			return nil, false, err
		}
		return &AssignmentResult{Assignment: *merged, Status: StatusMerged}, true, nil
	}

	return m.create(ctx, tx, timeline, in)
}

func (m *LifecycleManager) replaceInPlace(ctx context.Context, tx Store, timeline Timeline, exact *PolicyAssignment, in AssignmentInput) (*AssignmentResult, bool, error) {
	updated := *exact
	updated.ResourceID = in.ResourceID
	updated.Reset = in.Reset
	updated.OccupationRate = in.OccupationRate
	if err := updated.Validate(); err != nil {
		return nil, false, err
	}
	if err := tx.SaveAssignment(ctx, &updated); err != nil {
		return nil, false, err
	}
	if err := m.repointEntries(ctx, tx, updated); err != nil {
		return nil, false, err
	}
	if err := m.cascade(ctx, tx, updated, true); err != nil {
		return nil, false, err
	}
	return &AssignmentResult{Assignment: updated, Status: StatusUpdated}, true, nil
}

// repointEntries re-derives the rows an assignment owns after its resource
// changed in place. The entry factory's idempotency check would otherwise
// return them untouched, leaving the old policy's grant and link on the
// ledger forever: recompute re-derives additions from the stored
// resource_amount, so the stored row itself must follow the new policy.
func (m *LifecycleManager) repointEntries(ctx context.Context, tx Store, a PolicyAssignment) error {
	if !a.Kind.CreatesBalanceEntries() || a.Reset {
		return nil
	}
	policy, err := tx.GetPolicy(ctx, a.ResourceID)
	if err != nil {
		return err
	}
	if policy == nil {
		return &NotFoundError{Entity: "time_off_policy", ID: a.ResourceID}
	}

	entries, err := tx.EntriesByCategory(ctx, a.EmployeeID, a.CategoryID)
	if err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if e.AssignmentID != a.ID || e.PolicyID == a.ResourceID {
			continue
		}
		if e.Kind != KindAssignation && e.Kind != KindAddition {
			continue
		}
		e.PolicyID = a.ResourceID
		if e.Kind == KindAddition {
			period := m.Resolver.PeriodFor(*policy, a, e.Key.Date)
			e.ValidityDate = period.ValidityDate
			amount, err := m.Factory.policyGrant(ctx, tx, e)
			if err != nil {
				return err
			}
			e.ResourceAmount = amount
		}
		if err := tx.UpdateEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *LifecycleManager) create(ctx context.Context, tx Store, timeline Timeline, in AssignmentInput) (*AssignmentResult, bool, error) {
	if err := m.removeRightDuplicate(ctx, tx, timeline, in.EffectiveAt, in.ResourceID); err != nil {
		return nil, false, err
	}

	assignment := PolicyAssignment{
		ID:             uuid.NewString(),
		EmployeeID:     in.EmployeeID,
		Kind:           in.Kind,
		ResourceID:     in.ResourceID,
		CategoryID:     in.CategoryID,
		EffectiveAt:    in.EffectiveAt,
		Reset:          in.Reset,
		OccupationRate: in.OccupationRate,
	}
	if err := assignment.Validate(); err != nil {
		return nil, false, err
	}
	if err := tx.SaveAssignment(ctx, &assignment); err != nil {
		return nil, false, err
	}
	if err := m.rederiveTills(ctx, tx, in); err != nil {
		return nil, false, err
	}
	if err := m.cascade(ctx, tx, assignment, false); err != nil {
		return nil, false, err
	}

	saved, err := tx.GetAssignment(ctx, assignment.ID)
	if err != nil {
		return nil, false, err
	}
	return &AssignmentResult{Assignment: *saved, Status: StatusCreated}, true, nil
}

// removeRightDuplicate deletes the next assignment when it carries the
// same resource: its window merges forward into the write at d. Entries it
// owned go with it unless a time-off still references them.
func (m *LifecycleManager) removeRightDuplicate(ctx context.Context, tx Store, timeline Timeline, d Date, resourceID string) error {
	next := timeline.Following(d)
	if next == nil || next.ResourceID != resourceID || next.Reset {
		return nil
	}
	return m.destroyAssignmentRow(ctx, tx, *next)
}

// rederiveTills rewrites every EffectiveTill in the scope from the
// post-mutation timeline.
func (m *LifecycleManager) rederiveTills(ctx context.Context, tx Store, in AssignmentInput) error {
	assignments, err := tx.AssignmentsByEmployee(ctx, in.EmployeeID, in.Kind, in.CategoryID)
	if err != nil {
		return err
	}
	updated := NewTimeline(assignments).WithTills()
	for i := range updated {
		if err := tx.SaveAssignment(ctx, &updated[i]); err != nil {
			return err
		}
	}
	return nil
}

// cascade creates the ledger rows a new/changed time-off assignment owns
// and marks everything after its effective date for recompute.
func (m *LifecycleManager) cascade(ctx context.Context, tx Store, a PolicyAssignment, updateAll bool) error {
	if !a.Kind.CreatesBalanceEntries() || a.Reset {
		return nil
	}

	assignation, err := m.Factory.CreateEntry(ctx, tx, EntryInput{
		EmployeeID:   a.EmployeeID,
		CategoryID:   a.CategoryID,
		AssignmentID: a.ID,
		PolicyID:     a.ResourceID,
		Kind:         KindAssignation,
		EffectiveAt:  a.EffectiveAt,
	})
	if err != nil {
		return err
	}

	policy, err := tx.GetPolicy(ctx, a.ResourceID)
	if err != nil {
		return err
	}
	if policy == nil {
		return &NotFoundError{Entity: "time_off_policy", ID: a.ResourceID}
	}

	// One addition per period boundary from the assignment start through
	// today; retroactive assignments materialize several at once.
	till := m.Factory.today()
	if till.Before(a.EffectiveAt) {
		till = a.EffectiveAt
	}
	for _, period := range m.Resolver.PeriodsBetween(*policy, a, a.EffectiveAt, till) {
		if _, err := m.Factory.CreateEntry(ctx, tx, EntryInput{
			EmployeeID:   a.EmployeeID,
			CategoryID:   a.CategoryID,
			AssignmentID: a.ID,
			PolicyID:     a.ResourceID,
			Kind:         KindAddition,
			EffectiveAt:  period.Start,
			ValidityDate: period.ValidityDate,
		}); err != nil {
			return err
		}
	}

	entries, err := tx.EntriesByCategory(ctx, a.EmployeeID, a.CategoryID)
	if err != nil {
		return err
	}
	ids := m.Selector.Select(*policy, entries, Selection{
		Entry:     *assignation,
		UpdateAll: updateAll,
	})
	return m.Recompute.MarkForRecompute(ctx, tx, ids)
}

// =============================================================================
// DESTRUCTION
// =============================================================================

// DestroyAssignment deletes one assignment and its assignation balance,
// then recomputes everything downstream. Reset assignments belong to the
// contract boundary handler and are rejected here.
func (m *LifecycleManager) DestroyAssignment(ctx context.Context, id string) error {
	var scope *PolicyAssignment

	err := m.Store.WithTx(ctx, func(tx Store) error {
		a, err := tx.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return &NotFoundError{Entity: "policy_assignment", ID: id}
		}
		if a.Reset {
			return &LockedResourceError{Entity: "policy_assignment", ID: id, Dependents: "reset assignments are contract-boundary-owned"}
		}
		scope = a

		if err := m.destroyAssignmentRow(ctx, tx, *a); err != nil {
			return err
		}
		if err := m.rederiveTills(ctx, tx, AssignmentInput{EmployeeID: a.EmployeeID, Kind: a.Kind, CategoryID: a.CategoryID}); err != nil {
			return err
		}

		if !a.Kind.CreatesBalanceEntries() {
			return nil
		}
		entries, err := tx.EntriesByCategory(ctx, a.EmployeeID, a.CategoryID)
		if err != nil {
			return err
		}
		policy, err := tx.GetPolicy(ctx, a.ResourceID)
		if err != nil {
			return err
		}
		if policy == nil {
			policy = &TimeOffPolicy{}
		}
		ids := m.Selector.Select(*policy, entries, Selection{
			Entry:        BalanceEntry{Key: KeyFor(a.EffectiveAt, KindAssignation)},
			UpdateAll:    true,
			DateOverride: &a.EffectiveAt,
		})
		return m.Recompute.MarkForRecompute(ctx, tx, ids)
	})
	if err != nil {
		return err
	}

	if scope != nil && scope.Kind.CreatesBalanceEntries() {
		return m.Recompute.ScheduleRecompute(ctx, m.Runner, scope.EmployeeID, scope.CategoryID)
	}
	return nil
}

// destroyAssignmentRow deletes an assignment row plus the entries it owns.
// Entries still referenced by a time-off are left in place.
func (m *LifecycleManager) destroyAssignmentRow(ctx context.Context, tx Store, a PolicyAssignment) error {
	if a.Kind.CreatesBalanceEntries() {
		entries, err := tx.EntriesByCategory(ctx, a.EmployeeID, a.CategoryID)
		if err != nil {
			return err
		}
		for i := range entries {
			e := &entries[i]
			if e.AssignmentID != a.ID || e.TimeOffID != "" {
				continue
			}
			if err := tx.DeleteEntry(ctx, e.ID); err != nil {
				return err
			}
		}
	}
	return tx.DeleteAssignment(ctx, a.ID)
}

// DestroyEntry deletes one balance entry and, when update is true, marks
// and schedules downstream recompute. Entries debiting an absence are
// protected: the absence must go first.
func (m *LifecycleManager) DestroyEntry(ctx context.Context, id string, update bool) error {
	var (
		scope     *BalanceEntry
		recompute bool
	)

	err := m.Store.WithTx(ctx, func(tx Store) error {
		entry, err := tx.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil {
			return &NotFoundError{Entity: "balance_entry", ID: id}
		}
		if entry.TimeOffID != "" {
			if to, err := tx.GetTimeOff(ctx, entry.TimeOffID); err != nil {
				return err
			} else if to != nil {
				return &LockedResourceError{Entity: "balance_entry", ID: id, Dependents: "referenced by time_off " + entry.TimeOffID}
			}
		}
		scope = entry

		if err := tx.DeleteEntry(ctx, entry.ID); err != nil {
			return err
		}
		if !update {
			return nil
		}

		policy, err := tx.GetPolicy(ctx, entry.PolicyID)
		if err != nil {
			return err
		}
		if policy == nil {
			policy = &TimeOffPolicy{}
		}
		entries, err := tx.EntriesByCategory(ctx, entry.EmployeeID, entry.CategoryID)
		if err != nil {
			return err
		}

		sel := Selection{Entry: *entry, AmountDelta: entry.Amount}
		if entry.Kind == KindRemoval {
			// Additions this removal was netting out lose their coverage;
			// everything downstream of them must be reconsidered.
			sel.RemovalDestroyed = true
			for i := range entries {
				e := &entries[i]
				if e.RemovalID != entry.ID {
					continue
				}
				e.RemovalID = ""
				if err := tx.UpdateEntry(ctx, e); err != nil {
					return err
				}
				if e.Key.Date.Before(sel.Entry.Key.Date) {
					d := e.Key.Date
					sel.DateOverride = &d
				}
			}
		}

		ids := m.Selector.Select(*policy, entries, sel)
		recompute = len(ids) > 0
		return m.Recompute.MarkForRecompute(ctx, tx, ids)
	})
	if err != nil {
		return err
	}

	if update && recompute && scope != nil {
		return m.Recompute.ScheduleRecompute(ctx, m.Runner, scope.EmployeeID, scope.CategoryID)
	}
	return nil
}

// DestroyEntries deletes a batch of balance entries in one transaction.
// Downstream recompute is marked once per (employee, category), from the
// earliest deleted row onward, and scheduled after commit. The same
// time-off protection as DestroyEntry applies to every row.
func (m *LifecycleManager) DestroyEntries(ctx context.Context, ids []string, update bool) error {
	type ledgerScope struct{ employeeID, categoryID string }
	earliest := map[ledgerScope]Date{}

	err := m.Store.WithTx(ctx, func(tx Store) error {
		for _, id := range ids {
			entry, err := tx.GetEntry(ctx, id)
			if err != nil {
				return err
			}
			if entry == nil {
				return &NotFoundError{Entity: "balance_entry", ID: id}
			}
			if entry.TimeOffID != "" {
				if to, err := tx.GetTimeOff(ctx, entry.TimeOffID); err != nil {
					return err
				} else if to != nil {
					return &LockedResourceError{Entity: "balance_entry", ID: id, Dependents: "referenced by time_off " + entry.TimeOffID}
				}
			}
			if err := tx.DeleteEntry(ctx, entry.ID); err != nil {
				return err
			}

			key := ledgerScope{entry.EmployeeID, entry.CategoryID}
			if first, ok := earliest[key]; !ok || entry.Key.Date.Before(first) {
				earliest[key] = entry.Key.Date
			}
		}
		if !update {
			return nil
		}

		for scope, from := range earliest {
			entries, err := tx.EntriesByCategory(ctx, scope.employeeID, scope.categoryID)
			if err != nil {
				return err
			}
			d := from
			ids := m.Selector.Select(TimeOffPolicy{}, entries, Selection{
				Entry:        BalanceEntry{Key: KeyFor(from, KindAssignation)},
				UpdateAll:    true,
				DateOverride: &d,
			})
			if err := m.Recompute.MarkForRecompute(ctx, tx, ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !update {
		return nil
	}
	for scope := range earliest {
		if err := m.Recompute.ScheduleRecompute(ctx, m.Runner, scope.employeeID, scope.categoryID); err != nil {
			return err
		}
	}
	return nil
}
