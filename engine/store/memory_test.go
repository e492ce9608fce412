package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
	"github.com/avincentLoyco/yalty-backend-sub001/engine/store"
)

func newEntry(id string, d engine.Date, amount int64) *engine.BalanceEntry {
	return &engine.BalanceEntry{
		ID:         id,
		EmployeeID: "emp-1",
		CategoryID: "vacation",
		Kind:       engine.KindAddition,
		Key:        engine.KeyFor(d, engine.KindAddition),
		Amount:     engine.NewMinutes(amount),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_ErrorRollsBackAllWrites(t *testing.T) {
	// GIVEN: Pre-existing rows of every flavor
	// WHEN: A transaction mutates them all and then fails
	// THEN: Every map is restored, including the reset-policy designation

	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.CreateEntry(ctx, newEntry("e-1", engine.NewDate(2025, time.January, 1), 2400)))
	a := engine.PolicyAssignment{ID: "a-1", EmployeeID: "emp-1", Kind: engine.ResourceTimeOff, ResourceID: "p-1", CategoryID: "vacation", EffectiveAt: engine.NewDate(2025, time.January, 1)}
	require.NoError(t, m.SaveAssignment(ctx, &a))
	reset := engine.TimeOffPolicy{ID: "p-reset", Name: "Reset", CategoryID: "vacation", Type: engine.PolicyBalancer, StartDay: 1, StartMonth: time.January, Reset: true}
	require.NoError(t, m.SavePolicy(ctx, &reset))
	to := engine.TimeOff{ID: "to-1", EmployeeID: "emp-1", CategoryID: "vacation", Amount: engine.NewMinutes(600)}
	require.NoError(t, m.SaveTimeOff(ctx, &to))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx engine.Store) error {
		require.NoError(t, tx.DeleteEntry(ctx, "e-1"))
		require.NoError(t, tx.DeleteAssignment(ctx, "a-1"))
		require.NoError(t, tx.DeleteTimeOff(ctx, "to-1"))
		other := engine.TimeOffPolicy{ID: "p-other", Name: "Other", CategoryID: "vacation", Type: engine.PolicyBalancer, StartDay: 1, StartMonth: time.January, Reset: true}
		require.NoError(t, tx.SavePolicy(ctx, &other))
		return boom
	})
	require.ErrorIs(t, err, boom)

	entry, err := m.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.NotNil(t, entry)
	assignment, err := m.GetAssignment(ctx, "a-1")
	require.NoError(t, err)
	assert.NotNil(t, assignment)
	timeOff, err := m.GetTimeOff(ctx, "to-1")
	require.NoError(t, err)
	assert.NotNil(t, timeOff)

	designated, err := m.ResetPolicy(ctx, "vacation")
	require.NoError(t, err)
	require.NotNil(t, designated)
	assert.Equal(t, "p-reset", designated.ID)
}

func TestWithTx_SuccessKeepsWrites(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	err := m.WithTx(ctx, func(tx engine.Store) error {
		return tx.CreateEntry(ctx, newEntry("e-1", engine.NewDate(2025, time.January, 1), 100))
	})
	require.NoError(t, err)

	entry, err := m.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestWithTx_RunRecordsSurviveRollback(t *testing.T) {
	// Failed recompute runs must stay observable, so run records are
	// deliberately exempt from rollback.
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.SaveRun(ctx, &engine.RecomputeRun{
		ID: "run-1", EmployeeID: "emp-1", CategoryID: "vacation",
		Status: engine.RunFailed, StartedAt: time.Now(),
	}))
	boom := errors.New("boom")
	_ = m.WithTx(ctx, func(tx engine.Store) error {
		return boom
	})

	runs, err := m.RunsByStatus(ctx, engine.RunFailed)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestEntriesByCategory_SortedByCompositeKey(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	// Same date, different kinds: priority decides.
	removal := newEntry("rm", engine.NewDate(2025, time.April, 1), -100)
	removal.Kind = engine.KindRemoval
	removal.Key = engine.KeyFor(engine.NewDate(2025, time.April, 1), engine.KindRemoval)
	addition := newEntry("add", engine.NewDate(2025, time.April, 1), 100)
	earlier := newEntry("early", engine.NewDate(2025, time.January, 1), 100)
	require.NoError(t, m.CreateEntry(ctx, removal))
	require.NoError(t, m.CreateEntry(ctx, addition))
	require.NoError(t, m.CreateEntry(ctx, earlier))

	entries, err := m.EntriesByCategory(ctx, "emp-1", "vacation")

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "early", entries[0].ID)
	assert.Equal(t, "add", entries[1].ID)
	assert.Equal(t, "rm", entries[2].ID)
}

func TestEntriesBeingProcessed_FiltersFlagged(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	flagged := newEntry("f-1", engine.NewDate(2025, time.January, 1), 100)
	flagged.BeingProcessed = true
	clean := newEntry("c-1", engine.NewDate(2025, time.February, 1), 100)
	require.NoError(t, m.CreateEntry(ctx, flagged))
	require.NoError(t, m.CreateEntry(ctx, clean))

	entries, err := m.EntriesBeingProcessed(ctx, "emp-1", "vacation")

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f-1", entries[0].ID)
}

func TestStoreIsolation_ReturnsCopies(t *testing.T) {
	// Mutating a returned row must not leak into the store.
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.CreateEntry(ctx, newEntry("e-1", engine.NewDate(2025, time.January, 1), 100)))

	got, err := m.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	got.Amount = engine.NewMinutes(999)

	again, err := m.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, again.Amount.Equal(engine.NewMinutes(100)))
}
