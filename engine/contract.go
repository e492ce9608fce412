/*
contract.go - Contract boundary handling

PURPOSE:
  Reshapes an employee's timelines when their contract ends, moves, or a
  rehire happens.

CONTRACT END AT DATE E:
  - non-reset assignments effective after E are deleted
  - time-offs starting after end-of-day E are deleted; a time-off
    straddling E is clipped to end at E, its consumed amount re-derived
    and its debit entry re-pointed to E
  - non-time-off balance entries after E are deleted
  - per active time-off category, a reset assignment (designated reset
    policy) and a reset balance entry are created at E+1; the entry
    snapshots the outgoing balance and zeroes the ledger

REHIRE AT DATE H:
  Reset assignments and reset entries in the bridged gap before H are
  removed; real policy periods resume and everything from the earliest
  removed date is recomputed.

  The whole operation is one transaction: a destroy blocked by a foreign
  reference rolls back every deletion and reset-creation.
*/
package engine

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// CONTRACT HANDLER
// =============================================================================

type ContractHandler struct {
	Store     TxStore
	Runner    TaskRunner
	Factory   *EntryFactory
	Recompute *RecomputeOrchestrator
}

func NewContractHandler(store TxStore, runner TaskRunner, factory *EntryFactory, recompute *RecomputeOrchestrator) *ContractHandler {
	return &ContractHandler{Store: store, Runner: runner, Factory: factory, Recompute: recompute}
}

// HandleContractEnd applies a contract end at endDate. A non-nil
// oldEndDate means the end moved: the previous boundary's reset rows are
// unwound first, then the new boundary is applied. A non-nil nextHireDate
// means a rehire already exists; rows from that date onward belong to the
// later contract and are left alone.
func (h *ContractHandler) HandleContractEnd(ctx context.Context, employeeID string, endDate Date, oldEndDate, nextHireDate *Date) error {
	var categories []string

	err := h.Store.WithTx(ctx, func(tx Store) error {
		if oldEndDate != nil {
			if err := h.removeResets(ctx, tx, employeeID, oldEndDate.AddDays(1)); err != nil {
				return err
			}
		}

		assignments, err := tx.AssignmentsByEmployee(ctx, employeeID, ResourceTimeOff, "")
		if err != nil {
			return err
		}

		seen := map[string]bool{}
		for i := range assignments {
			a := &assignments[i]
			if a.Kind.HasCategory() && !seen[a.CategoryID] && a.ActiveAt(endDate) && !a.Reset {
				seen[a.CategoryID] = true
				categories = append(categories, a.CategoryID)
			}
		}

		// Future assignments fall outside the contract window, up to the
		// next hire when one exists.
		for i := range assignments {
			a := &assignments[i]
			if a.Reset || !a.EffectiveAt.After(endDate) {
				continue
			}
			if nextHireDate != nil && !a.EffectiveAt.Before(*nextHireDate) {
				continue
			}
			if err := tx.DeleteAssignment(ctx, a.ID); err != nil {
				return err
			}
		}

		for _, categoryID := range categories {
			if err := h.truncateCategory(ctx, tx, employeeID, categoryID, endDate, nextHireDate); err != nil {
				return err
			}
			if err := h.createReset(ctx, tx, employeeID, categoryID, endDate.AddDays(1)); err != nil {
				return err
			}
			if err := h.markFrom(ctx, tx, employeeID, categoryID, endDate); err != nil {
				return err
			}
		}
		return h.rederiveTills(ctx, tx, employeeID)
	})
	if err != nil {
		return err
	}

	for _, categoryID := range categories {
		if err := h.Recompute.ScheduleRecompute(ctx, h.Runner, employeeID, categoryID); err != nil {
			return err
		}
	}
	return nil
}

// HandleRehire unwinds the reset bridge so real policy periods resume at
// hireDate. The caller then writes the rehire's assignments through the
// lifecycle manager.
func (h *ContractHandler) HandleRehire(ctx context.Context, employeeID string, hireDate Date) error {
	var categories []string

	err := h.Store.WithTx(ctx, func(tx Store) error {
		removedFrom, removedCategories, err := h.removeResetsBefore(ctx, tx, employeeID, hireDate)
		if err != nil {
			return err
		}
		categories = removedCategories
		for _, categoryID := range categories {
			if err := h.markFrom(ctx, tx, employeeID, categoryID, removedFrom); err != nil {
				return err
			}
		}
		return h.rederiveTills(ctx, tx, employeeID)
	})
	if err != nil {
		return err
	}

	for _, categoryID := range categories {
		if err := h.Recompute.ScheduleRecompute(ctx, h.Runner, employeeID, categoryID); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRUNCATION
// =============================================================================

// truncateCategory deletes time-offs and entries past the boundary and
// clips the straddling absence, all inside the enclosing transaction.
// A non-nil until (the next hire date) caps the deletion: rows on or after
// it survive with the rehired timeline.
func (h *ContractHandler) truncateCategory(ctx context.Context, tx Store, employeeID, categoryID string, endDate Date, until *Date) error {
	boundary := endDate.EndOfDay()

	timeOffs, err := tx.TimeOffsByEmployee(ctx, employeeID, categoryID)
	if err != nil {
		return err
	}
	for i := range timeOffs {
		to := &timeOffs[i]
		if until != nil && !to.StartTime.Before(until.Time()) {
			continue
		}
		switch {
		case !to.StartTime.Before(boundary):
			if to.BalanceEntryID != "" {
				if err := tx.DeleteEntry(ctx, to.BalanceEntryID); err != nil {
					return err
				}
			}
			if err := tx.DeleteTimeOff(ctx, to.ID); err != nil {
				return err
			}

		case to.Straddles(endDate):
			if err := h.clipTimeOff(ctx, tx, to, endDate); err != nil {
				return err
			}
		}
	}

	entries, err := tx.EntriesByCategory(ctx, employeeID, categoryID)
	if err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if e.Kind == KindTimeOff || !e.Key.Date.After(endDate) {
			continue
		}
		if until != nil && !e.Key.Date.Before(*until) {
			continue
		}
		if err := tx.DeleteEntry(ctx, e.ID); err != nil {
			return err
		}
	}
	return nil
}

// rederiveTills rewrites every EffectiveTill per category after timeline
// surgery, keeping till = next.effective_at - 1 day.
func (h *ContractHandler) rederiveTills(ctx context.Context, tx Store, employeeID string) error {
	assignments, err := tx.AssignmentsByEmployee(ctx, employeeID, ResourceTimeOff, "")
	if err != nil {
		return err
	}
	byCategory := map[string]Timeline{}
	for _, a := range assignments {
		byCategory[a.CategoryID] = append(byCategory[a.CategoryID], a)
	}
	for _, tl := range byCategory {
		updated := NewTimeline(tl).WithTills()
		for i := range updated {
			if err := tx.SaveAssignment(ctx, &updated[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// clipTimeOff shortens a straddling absence to the contract end,
// re-derives its consumed minutes and re-points its debit entry at the
// boundary so it stays inside the closing period.
func (h *ContractHandler) clipTimeOff(ctx context.Context, tx Store, to *TimeOff, endDate Date) error {
	consumed, err := h.Recompute.Removals.TimeOffs.BalanceInRange(ctx, *to, to.StartTime, endDate.EndOfDay())
	if err != nil {
		return err
	}
	to.EndTime = endDate.EndOfDay()
	to.Amount = consumed
	if err := tx.SaveTimeOff(ctx, to); err != nil {
		return err
	}

	if to.BalanceEntryID == "" {
		return nil
	}
	entry, err := tx.GetEntry(ctx, to.BalanceEntryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	entry.Key = KeyFor(endDate, KindTimeOff)
	entry.Amount = consumed.Neg()
	return tx.UpdateEntry(ctx, entry)
}

// =============================================================================
// RESET BRIDGE
// =============================================================================

// createReset writes the reset assignment + reset entry at the day after
// the contract end.
func (h *ContractHandler) createReset(ctx context.Context, tx Store, employeeID, categoryID string, at Date) error {
	resetPolicy, err := tx.ResetPolicy(ctx, categoryID)
	if err != nil {
		return err
	}
	if resetPolicy == nil {
		return &NotFoundError{Entity: "reset_policy", ID: categoryID}
	}

	assignment := PolicyAssignment{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		Kind:        ResourceTimeOff,
		ResourceID:  resetPolicy.ID,
		CategoryID:  categoryID,
		EffectiveAt: at,
		Reset:       true,
	}
	if err := tx.SaveAssignment(ctx, &assignment); err != nil {
		return err
	}

	_, err = h.Factory.CreateEntry(ctx, tx, EntryInput{
		EmployeeID:   employeeID,
		CategoryID:   categoryID,
		AssignmentID: assignment.ID,
		PolicyID:     resetPolicy.ID,
		Kind:         KindReset,
		EffectiveAt:  at,
	})
	return err
}

// removeResets deletes reset assignments and reset entries at-or-after
// the given date, for every time-off category.
func (h *ContractHandler) removeResets(ctx context.Context, tx Store, employeeID string, from Date) error {
	assignments, err := tx.AssignmentsByEmployee(ctx, employeeID, ResourceTimeOff, "")
	if err != nil {
		return err
	}
	for i := range assignments {
		a := &assignments[i]
		if !a.Reset || a.EffectiveAt.Before(from) {
			continue
		}
		if err := h.deleteResetRows(ctx, tx, a); err != nil {
			return err
		}
	}
	return nil
}

// removeResetsBefore deletes reset rows on or before hireDate, returning
// the earliest date touched and the affected categories. A rehire on the
// very day the bridge starts (contract end + 1) must still unwind it.
func (h *ContractHandler) removeResetsBefore(ctx context.Context, tx Store, employeeID string, hireDate Date) (Date, []string, error) {
	assignments, err := tx.AssignmentsByEmployee(ctx, employeeID, ResourceTimeOff, "")
	if err != nil {
		return Date{}, nil, err
	}

	earliest := hireDate
	var categories []string
	seen := map[string]bool{}
	for i := range assignments {
		a := &assignments[i]
		if !a.Reset || a.EffectiveAt.After(hireDate) {
			continue
		}
		if a.EffectiveAt.Before(earliest) {
			earliest = a.EffectiveAt
		}
		if !seen[a.CategoryID] {
			seen[a.CategoryID] = true
			categories = append(categories, a.CategoryID)
		}
		if err := h.deleteResetRows(ctx, tx, a); err != nil {
			return Date{}, nil, err
		}
	}
	return earliest, categories, nil
}

func (h *ContractHandler) deleteResetRows(ctx context.Context, tx Store, a *PolicyAssignment) error {
	entries, err := tx.EntriesByCategory(ctx, a.EmployeeID, a.CategoryID)
	if err != nil {
		return err
	}
	for i := range entries {
		e := &entries[i]
		if e.AssignmentID == a.ID && e.Kind == KindReset {
			if err := tx.DeleteEntry(ctx, e.ID); err != nil {
				return err
			}
		}
	}
	return tx.DeleteAssignment(ctx, a.ID)
}

// markFrom flags every surviving entry at-or-after the boundary.
func (h *ContractHandler) markFrom(ctx context.Context, tx Store, employeeID, categoryID string, from Date) error {
	entries, err := tx.EntriesByCategory(ctx, employeeID, categoryID)
	if err != nil {
		return err
	}
	var ids []string
	for i := range entries {
		if !entries[i].Key.Date.Before(from) {
			ids = append(ids, entries[i].ID)
		}
	}
	return h.Recompute.MarkForRecompute(ctx, tx, ids)
}
