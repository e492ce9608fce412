package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
	memstore "github.com/avincentLoyco/yalty-backend-sub001/engine/store"
	"github.com/avincentLoyco/yalty-backend-sub001/worker"
)

func flaggedAddition(id string, amount int64) *engine.BalanceEntry {
	return &engine.BalanceEntry{
		ID:             id,
		EmployeeID:     "emp-1",
		CategoryID:     "vacation",
		Kind:           engine.KindAddition,
		Key:            engine.KeyFor(engine.NewDate(2025, time.January, 1), engine.KindAddition),
		ResourceAmount: engine.NewMinutes(amount),
		BeingProcessed: true,
	}
}

func newWorker(s engine.TxStore) *worker.Worker {
	recompute := engine.NewRecomputeOrchestrator(engine.NewRemovalCalculator(nil))
	return worker.New(s, recompute, zerolog.Nop())
}

func TestRunNow_ProcessesFlaggedEntries(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewMemory()
	require.NoError(t, s.CreateEntry(ctx, flaggedAddition("e-1", 2400)))
	w := newWorker(s)

	require.NoError(t, w.RunNow(ctx, "emp-1", "vacation"))

	got, err := s.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, got.BeingProcessed)
	assert.True(t, got.Amount.Equal(engine.NewMinutes(2400)))
}

func TestSchedule_BackgroundLoopPicksUpTask(t *testing.T) {
	// GIVEN: A running worker and one flagged entry
	// WHEN: A recompute task is scheduled
	// THEN: The entry is processed without further intervention

	ctx := context.Background()
	s := memstore.NewMemory()
	require.NoError(t, s.CreateEntry(ctx, flaggedAddition("e-1", 2400)))
	w := newWorker(s)
	w.Start()
	defer w.Stop()

	require.NoError(t, w.Schedule(ctx, engine.TaskRecompute, map[string]string{
		"employee_id": "emp-1",
		"category_id": "vacation",
	}))

	require.Eventually(t, func() bool {
		got, err := s.GetEntry(ctx, "e-1")
		return err == nil && !got.BeingProcessed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedule_UnknownTask_Ignored(t *testing.T) {
	ctx := context.Background()
	s := memstore.NewMemory()
	w := newWorker(s)
	w.Start()
	defer w.Stop()

	require.NoError(t, w.Schedule(ctx, "no-such-task", nil))

	// Nothing to assert beyond "does not wedge the loop": a follow-up real
	// task still gets processed.
	require.NoError(t, s.CreateEntry(ctx, flaggedAddition("e-1", 100)))
	require.NoError(t, w.Schedule(ctx, engine.TaskRecompute, map[string]string{
		"employee_id": "emp-1",
		"category_id": "vacation",
	}))
	require.Eventually(t, func() bool {
		got, err := s.GetEntry(ctx, "e-1")
		return err == nil && !got.BeingProcessed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunNow_MissingRowsAreNoOp(t *testing.T) {
	// A task scheduled for rows deleted in the meantime completes cleanly.
	ctx := context.Background()
	s := memstore.NewMemory()
	w := newWorker(s)

	require.NoError(t, w.RunNow(ctx, "emp-1", "vacation"))

	runs, err := s.RunsByStatus(ctx, engine.RunCompleted)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 0, runs[0].Entries)
}

func TestStop_IsIdempotent(t *testing.T) {
	s := memstore.NewMemory()
	w := newWorker(s)
	w.Start()

	w.Stop()
	w.Stop()
}
