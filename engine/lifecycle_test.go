package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
	memstore "github.com/avincentLoyco/yalty-backend-sub001/engine/store"
)

// =============================================================================
// FIXTURE
// =============================================================================

func lifecycleFixture(t *testing.T) (*memstore.Memory, *engine.LifecycleManager, *stubRunner) {
	t.Helper()
	ctx := context.Background()
	s := memstore.NewMemory()

	require.NoError(t, s.SaveCategory(ctx, &engine.Category{ID: "vacation", Name: "Vacation"}))
	standard := balancerPolicy()
	require.NoError(t, s.SavePolicy(ctx, &standard))
	extended := balancerPolicy()
	extended.ID = "vacation-extended"
	extended.Name = "Extended vacation"
	extended.Amount = engine.NewMinutes(12000)
	require.NoError(t, s.SavePolicy(ctx, &extended))

	factory := engine.NewEntryFactory(engine.NewRemovalCalculator(nil))
	factory.Clock = func() engine.Date { return date(2025, time.June, 1) }
	recompute := engine.NewRecomputeOrchestrator(engine.NewRemovalCalculator(nil))
	runner := &stubRunner{}
	m := engine.NewLifecycleManager(s, runner, factory, recompute)
	return s, m, runner
}

func vacationInput(effectiveAt engine.Date) engine.AssignmentInput {
	return engine.AssignmentInput{
		EmployeeID:  "emp-1",
		Kind:        engine.ResourceTimeOff,
		ResourceID:  "vacation-standard",
		CategoryID:  "vacation",
		EffectiveAt: effectiveAt,
	}
}

// =============================================================================
// CREATE / UPDATE PROTOCOL
// =============================================================================

func TestCreateAssignment_FreshTimeline_CreatesWithLedgerCascade(t *testing.T) {
	// GIVEN: An empty timeline
	// WHEN: A time-off assignment is created effective Jan 1
	// THEN: 201, assignation + addition rows exist and a recompute task is
	//       scheduled after the commit

	ctx := context.Background()
	s, m, runner := lifecycleFixture(t)

	result, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))

	require.NoError(t, err)
	assert.Equal(t, engine.StatusCreated, result.Status)
	assert.Nil(t, result.Assignment.EffectiveTill, "single assignment stays open-ended")

	entries, err := s.EntriesByCategory(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, engine.KindAssignation, entries[0].Kind)
	assert.Equal(t, engine.KindAddition, entries[1].Kind)
	assert.True(t, entries[1].ResourceAmount.Equal(minutes(9600)))
	assert.True(t, entries[0].BeingProcessed)
	assert.True(t, entries[1].BeingProcessed)

	require.Len(t, runner.tasks, 1)
	assert.Equal(t, "emp-1", runner.tasks[0]["employee_id"])
	assert.Equal(t, "vacation", runner.tasks[0]["category_id"])
}

func TestCreateAssignment_SameResourceSameDate_Duplicate(t *testing.T) {
	ctx := context.Background()
	_, m, runner := lifecycleFixture(t)

	_, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))
	require.NoError(t, err)
	runner.tasks = nil

	_, err = m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))

	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrDuplicateAssignment))
	assert.Empty(t, runner.tasks, "rejected write schedules nothing")
}

func TestCreateAssignment_DifferentResourceSameDate_ReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	first, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))
	require.NoError(t, err)

	in := vacationInput(date(2025, time.January, 1))
	in.ResourceID = "vacation-extended"
	result, err := m.CreateOrUpdateAssignment(ctx, in)

	require.NoError(t, err)
	assert.Equal(t, engine.StatusUpdated, result.Status)
	assert.Equal(t, first.Assignment.ID, result.Assignment.ID, "row updated, not replaced")
	assert.Equal(t, "vacation-extended", result.Assignment.ResourceID)

	assignments, err := s.AssignmentsByEmployee(ctx, "emp-1", engine.ResourceTimeOff, "vacation")
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
}

func TestReplaceInPlace_RepointsLedgerRows(t *testing.T) {
	// GIVEN: vacation-standard (9600/yr) assigned Jan 1 with its rows
	// WHEN: vacation-extended (12000/yr) replaces it at the same date
	// THEN: The existing assignation and addition follow the new policy —
	//       stored link and grant, not just the recomputed net amount

	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	_, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))
	require.NoError(t, err)

	in := vacationInput(date(2025, time.January, 1))
	in.ResourceID = "vacation-extended"
	_, err = m.CreateOrUpdateAssignment(ctx, in)
	require.NoError(t, err)

	entries, err := s.EntriesByCategory(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "vacation-extended", entries[0].PolicyID, "assignation repointed")
	assert.Equal(t, "vacation-extended", entries[1].PolicyID, "addition repointed")
	assert.True(t, entries[1].ResourceAmount.Equal(minutes(12000)), "got %s", entries[1].ResourceAmount)

	recompute := engine.NewRecomputeOrchestrator(engine.NewRemovalCalculator(nil))
	require.NoError(t, recompute.Process(ctx, s, "emp-1", "vacation"))

	addition, err := s.GetEntry(ctx, entries[1].ID)
	require.NoError(t, err)
	assert.True(t, addition.Amount.Equal(minutes(12000)), "recompute lands on the new grant")
	assert.False(t, addition.BeingProcessed)
}

func TestCreateAssignment_SameResourceLater_MergesLeft(t *testing.T) {
	// GIVEN: vacation-standard active since Jan 1
	// WHEN: The same resource is assigned again at Mar 1
	// THEN: The write collapses into the existing row (205)

	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	first, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))
	require.NoError(t, err)

	result, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.March, 1)))

	require.NoError(t, err)
	assert.Equal(t, engine.StatusMerged, result.Status)
	assert.Equal(t, first.Assignment.ID, result.Assignment.ID)

	assignments, err := s.AssignmentsByEmployee(ctx, "emp-1", engine.ResourceTimeOff, "vacation")
	require.NoError(t, err)
	assert.Len(t, assignments, 1)
}

func TestCreateAssignment_SecondResource_DerivesEffectiveTill(t *testing.T) {
	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	_, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))
	require.NoError(t, err)

	in := vacationInput(date(2025, time.July, 1))
	in.ResourceID = "vacation-extended"
	_, err = m.CreateOrUpdateAssignment(ctx, in)
	require.NoError(t, err)

	assignments, err := s.AssignmentsByEmployee(ctx, "emp-1", engine.ResourceTimeOff, "vacation")
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	require.NotNil(t, assignments[0].EffectiveTill)
	assert.True(t, assignments[0].EffectiveTill.Equal(date(2025, time.June, 30)))
	assert.Nil(t, assignments[1].EffectiveTill)
}

func TestCreateAssignment_RemovesRightDuplicate(t *testing.T) {
	// GIVEN: extended at Jan 1, standard at Jul 1
	// WHEN: standard is assigned at Mar 1
	// THEN: The Jul 1 row merges forward into the new one and is deleted

	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	in := vacationInput(date(2025, time.January, 1))
	in.ResourceID = "vacation-extended"
	_, err := m.CreateOrUpdateAssignment(ctx, in)
	require.NoError(t, err)

	_, err = m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.July, 1)))
	require.NoError(t, err)

	result, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.March, 1)))

	require.NoError(t, err)
	assert.Equal(t, engine.StatusCreated, result.Status)

	assignments, err := s.AssignmentsByEmployee(ctx, "emp-1", engine.ResourceTimeOff, "vacation")
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.True(t, assignments[0].EffectiveAt.Equal(date(2025, time.January, 1)))
	assert.True(t, assignments[1].EffectiveAt.Equal(date(2025, time.March, 1)))
	assert.Nil(t, assignments[1].EffectiveTill)
}

// =============================================================================
// DESTRUCTION
// =============================================================================

func TestDestroyAssignment_DeletesOwnedEntries(t *testing.T) {
	ctx := context.Background()
	s, m, runner := lifecycleFixture(t)

	created, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))
	require.NoError(t, err)
	runner.tasks = nil

	require.NoError(t, m.DestroyAssignment(ctx, created.Assignment.ID))

	got, err := s.GetAssignment(ctx, created.Assignment.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	entries, err := s.EntriesByCategory(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Len(t, runner.tasks, 1)
}

func TestDestroyAssignment_KeepsTimeOffReferencedEntries(t *testing.T) {
	// An absence's debit row must survive its assignment; the absence is
	// the source of truth and goes first.
	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	created, err := m.CreateOrUpdateAssignment(ctx, vacationInput(date(2025, time.January, 1)))
	require.NoError(t, err)

	debit := entry("t-1", engine.KindTimeOff, date(2025, time.February, 1), -600)
	debit.AssignmentID = created.Assignment.ID
	debit.TimeOffID = "to-1"
	require.NoError(t, s.CreateEntry(ctx, &debit))

	require.NoError(t, m.DestroyAssignment(ctx, created.Assignment.ID))

	entries, err := s.EntriesByCategory(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t-1", entries[0].ID)
}

func TestDestroyAssignment_ResetAssignment_Locked(t *testing.T) {
	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	reset := assignmentAt(date(2025, time.May, 1))
	reset.ID = "reset-1"
	reset.Reset = true
	require.NoError(t, s.SaveAssignment(ctx, &reset))

	err := m.DestroyAssignment(ctx, "reset-1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrLockedResource))
}

func TestDestroyEntry_TimeOffReferenced_Locked(t *testing.T) {
	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	to := timeOffBetween("to-1",
		time.Date(2025, time.February, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 2, 17, 0, 0, 0, time.UTC),
		600,
	)
	require.NoError(t, s.SaveTimeOff(ctx, &to))
	debit := entry("t-1", engine.KindTimeOff, date(2025, time.February, 2), -600)
	debit.TimeOffID = "to-1"
	require.NoError(t, s.CreateEntry(ctx, &debit))

	err := m.DestroyEntry(ctx, "t-1", true)

	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrLockedResource))
}

func TestDestroyEntry_Removal_UnlinksAdditionsAndRecomputes(t *testing.T) {
	// GIVEN: An addition covered by a removal
	// WHEN: The removal is destroyed
	// THEN: The addition's link is cleared and downstream rows are flagged

	ctx := context.Background()
	s, m, runner := lifecycleFixture(t)

	addition := withRemovalLink(
		entry("add-1", engine.KindAddition, date(2025, time.January, 1), 2400), "rm-1")
	addition.PolicyID = "vacation-standard"
	removal := entry("rm-1", engine.KindRemoval, date(2025, time.April, 1), -2400)
	removal.PolicyID = "vacation-standard"
	later := entry("t-1", engine.KindTimeOff, date(2025, time.May, 1), -300)
	require.NoError(t, s.CreateEntry(ctx, &addition))
	require.NoError(t, s.CreateEntry(ctx, &removal))
	require.NoError(t, s.CreateEntry(ctx, &later))

	require.NoError(t, m.DestroyEntry(ctx, "rm-1", true))

	gone, err := s.GetEntry(ctx, "rm-1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	unlinked, err := s.GetEntry(ctx, "add-1")
	require.NoError(t, err)
	require.NotNil(t, unlinked)
	assert.Empty(t, unlinked.RemovalID)
	assert.True(t, unlinked.BeingProcessed, "selection starts at the unlinked addition")

	flagged, err := s.EntriesBeingProcessed(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	assert.Len(t, flagged, 2)
	assert.Len(t, runner.tasks, 1)
}

func TestDestroyEntries_BatchDeletesAndFlagsOnce(t *testing.T) {
	// GIVEN: Three manual rows across the year
	// WHEN: Two of them are destroyed in one batch
	// THEN: Both are gone, survivors from the earliest deleted date are
	//       flagged and exactly one task is scheduled

	ctx := context.Background()
	s, m, runner := lifecycleFixture(t)

	jan := entry("e-jan", engine.KindAssignation, date(2025, time.January, 1), 0)
	mar := entry("e-mar", engine.KindAddition, date(2025, time.March, 1), 2400)
	may := entry("e-may", engine.KindAddition, date(2025, time.May, 1), 1200)
	require.NoError(t, s.CreateEntry(ctx, &jan))
	require.NoError(t, s.CreateEntry(ctx, &mar))
	require.NoError(t, s.CreateEntry(ctx, &may))

	require.NoError(t, m.DestroyEntries(ctx, []string{"e-jan", "e-mar"}, true))

	for _, id := range []string{"e-jan", "e-mar"} {
		got, err := s.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	flagged, err := s.EntriesBeingProcessed(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "e-may", flagged[0].ID)
	assert.Len(t, runner.tasks, 1)
}

func TestDestroyEntries_LockedRowFailsWholeBatch(t *testing.T) {
	ctx := context.Background()
	s, m, _ := lifecycleFixture(t)

	plain := entry("e-1", engine.KindAssignation, date(2025, time.January, 1), 0)
	require.NoError(t, s.CreateEntry(ctx, &plain))
	to := timeOffBetween("to-1",
		time.Date(2025, time.February, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 2, 17, 0, 0, 0, time.UTC),
		600,
	)
	require.NoError(t, s.SaveTimeOff(ctx, &to))
	debit := entry("t-1", engine.KindTimeOff, date(2025, time.February, 2), -600)
	debit.TimeOffID = "to-1"
	require.NoError(t, s.CreateEntry(ctx, &debit))

	err := m.DestroyEntries(ctx, []string{"e-1", "t-1"}, true)

	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrLockedResource))
	survivor, getErr := s.GetEntry(ctx, "e-1")
	require.NoError(t, getErr)
	assert.NotNil(t, survivor, "batch rolls back as one transaction")
}

func TestDestroyEntry_NoUpdate_JustDeletes(t *testing.T) {
	ctx := context.Background()
	s, m, runner := lifecycleFixture(t)

	e := entry("e-1", engine.KindAssignation, date(2025, time.January, 1), 0)
	require.NoError(t, s.CreateEntry(ctx, &e))

	require.NoError(t, m.DestroyEntry(ctx, "e-1", false))

	got, err := s.GetEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, runner.tasks)
}
