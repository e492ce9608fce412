/*
recompute.go - Balance recompute orchestration

PURPOSE:
  Two-phase recompute of ledger amounts after a mutation.

  Phase (a), synchronous: the selected entry ids are flagged
  being_processed = true inside the same transaction as the triggering
  change, so readers can tell "this balance is stale".

  Phase (b), asynchronous: a task scheduled after commit loads the flagged
  entries oldest-first and re-derives each amount from persisted state,
  then clears the flag.

IDEMPOTENCY:
  Every amount is a pure function of persisted rows (never an increment),
  so re-running the task in full after a partial failure converges to the
  same result. Missing rows (deleted between scheduling and execution) are
  skipped silently.

SEE ALSO:
  - selector.go: which ids get flagged
  - worker/: the task runner executing Process in the background
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ORCHESTRATOR
// =============================================================================

type RecomputeOrchestrator struct {
	Removals *RemovalCalculator

	// Now stamps run records; overridable in tests.
	Now func() time.Time
}

func NewRecomputeOrchestrator(removals *RemovalCalculator) *RecomputeOrchestrator {
	return &RecomputeOrchestrator{Removals: removals, Now: time.Now}
}

// =============================================================================
// PHASE A - SYNCHRONOUS MARKING
// =============================================================================

// MarkForRecompute flags the given entries inside the caller's
// transaction. Unknown ids are skipped: a concurrent delete between
// selection and marking is not an error.
func (o *RecomputeOrchestrator) MarkForRecompute(ctx context.Context, store Store, ids []string) error {
	for _, id := range ids {
		entry, err := store.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if entry == nil || entry.BeingProcessed {
			continue
		}
		entry.BeingProcessed = true
		if err := store.UpdateEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleRecompute enqueues the async task for one (employee, category).
// Call after the marking transaction has committed.
func (o *RecomputeOrchestrator) ScheduleRecompute(ctx context.Context, runner TaskRunner, employeeID, categoryID string) error {
	return runner.Schedule(ctx, TaskRecompute, map[string]string{
		"employee_id": employeeID,
		"category_id": categoryID,
	})
}

// =============================================================================
// PHASE B - ASYNCHRONOUS RECOMPUTE
// =============================================================================

// Process re-derives every flagged entry of one (employee, category) in
// key order and clears the flags, all in one transaction. Safe to re-run.
func (o *RecomputeOrchestrator) Process(ctx context.Context, store TxStore, employeeID, categoryID string) error {
	run := o.startRun(ctx, store, employeeID, categoryID)

	err := store.WithTx(ctx, func(tx Store) error {
		flagged, err := tx.EntriesBeingProcessed(ctx, employeeID, categoryID)
		if err != nil {
			return err
		}
		run.Entries = len(flagged)
		if len(flagged) == 0 {
			return nil
		}

		// Removals reference prior additions, so recompute walks
		// oldest-first over a fresh ledger read per entry.
		SortEntries(flagged)
		for i := range flagged {
			if err := o.recomputeOne(ctx, tx, flagged[i].ID); err != nil {
				return err
			}
		}
		return nil
	})

	o.finishRun(ctx, store, run, err)
	return err
}

// recomputeOne re-derives one entry's amount from current persisted state
// and clears its flag. No-op when the row has vanished.
func (o *RecomputeOrchestrator) recomputeOne(ctx context.Context, store Store, id string) error {
	entry, err := store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	amount, err := o.deriveAmount(ctx, store, entry)
	if err != nil {
		return err
	}
	entry.Amount = amount
	entry.BeingProcessed = false
	return store.UpdateEntry(ctx, entry)
}

// deriveAmount recomputes the net amount per entry kind. Mirrors the entry
// factory's derivation; both read only persisted state.
func (o *RecomputeOrchestrator) deriveAmount(ctx context.Context, store Store, entry *BalanceEntry) (Minutes, error) {
	switch entry.Kind {
	case KindAddition, KindAssignation:
		return entry.ResourceAmount.Add(entry.ManualAmount), nil

	case KindEndOfPeriod:
		return NewMinutes(0), nil

	case KindTimeOff:
		timeOff, err := store.GetTimeOff(ctx, entry.TimeOffID)
		if err != nil {
			return Minutes{}, err
		}
		if timeOff == nil {
			// Absence deleted; its debit entry goes with it elsewhere,
			// here the amount just degrades to zero.
			return NewMinutes(0), nil
		}
		return timeOff.Amount.Neg(), nil

	case KindRemoval:
		policy, err := store.GetPolicy(ctx, entry.PolicyID)
		if err != nil {
			return Minutes{}, err
		}
		if policy == nil {
			return entry.Amount, nil
		}
		entries, err := store.EntriesByCategory(ctx, entry.EmployeeID, entry.CategoryID)
		if err != nil {
			return Minutes{}, err
		}
		timeOffs, err := store.TimeOffsByEmployee(ctx, entry.EmployeeID, entry.CategoryID)
		if err != nil {
			return Minutes{}, err
		}
		return o.Removals.Amount(ctx, *policy, entries, *entry, timeOffs)

	case KindReset:
		entries, err := store.EntriesByCategory(ctx, entry.EmployeeID, entry.CategoryID)
		if err != nil {
			return Minutes{}, err
		}
		previous := RunningBalance(entries, entry.Key, true)
		entry.ResourceAmount = previous
		return previous.Neg(), nil
	}
	return entry.Amount, nil
}

// =============================================================================
// RUN BOOKKEEPING
// =============================================================================

func (o *RecomputeOrchestrator) startRun(ctx context.Context, store TxStore, employeeID, categoryID string) *RecomputeRun {
	run := &RecomputeRun{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		CategoryID: categoryID,
		Status:     RunRunning,
		StartedAt:  o.now(),
	}
	if rs, ok := store.(RunStore); ok {
		// Best effort: a failed run insert must not block the recompute.
		_ = rs.SaveRun(ctx, run)
	}
	return run
}

func (o *RecomputeOrchestrator) finishRun(ctx context.Context, store TxStore, run *RecomputeRun, runErr error) {
	rs, ok := store.(RunStore)
	if !ok {
		return
	}
	finished := o.now()
	run.FinishedAt = &finished
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = RunCompleted
	}
	_ = rs.SaveRun(ctx, run)
}

func (o *RecomputeOrchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
