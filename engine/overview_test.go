package engine_test

import (
	"context"
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

func overviewFixture(t *testing.T, effectiveAt engine.Date) (*memstore.Memory, *engine.OverviewAggregator) {
	t.Helper()
	ctx := context.Background()
	s := memstore.NewMemory()

	require.NoError(t, s.SaveCategory(ctx, &engine.Category{ID: "vacation", Name: "Vacation"}))
	policy := balancerPolicy()
	require.NoError(t, s.SavePolicy(ctx, &policy))
	a := assignmentAt(effectiveAt)
	require.NoError(t, s.SaveAssignment(ctx, &a))

	agg := engine.NewOverviewAggregator(s, nil)
	agg.Clock = func() engine.Date { return date(2025, time.June, 1) }
	return s, agg
}

// absence stores a time-off plus its debit entry.
func absence(t *testing.T, s *memstore.Memory, id string, start, end time.Time, amount int64) {
	t.Helper()
	ctx := context.Background()
	to := timeOffBetween(id, start, end, amount)
	to.BalanceEntryID = "entry-" + id
	require.NoError(t, s.SaveTimeOff(ctx, &to))

	debit := entry("entry-"+id, engine.KindTimeOff, engine.DateOf(end), -amount)
	debit.TimeOffID = id
	require.NoError(t, s.CreateEntry(ctx, &debit))
}

// =============================================================================
// SINGLE PERIOD
// =============================================================================

func TestOverview_SinglePeriod_GrantUsageAndBalance(t *testing.T) {
	// GIVEN: 9600 granted Jan 1, one 600-minute absence in February
	// THEN: One period with taken 600, result 9000, balance 9000

	ctx := context.Background()
	s, agg := overviewFixture(t, date(2025, time.January, 1))

	validity := date(2026, time.April, 1)
	add := withValidity(entry("add-1", engine.KindAddition, date(2025, time.January, 1), 9600), validity)
	require.NoError(t, s.CreateEntry(ctx, &add))
	absence(t, s, "to-1",
		time.Date(2025, time.February, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 3, 18, 0, 0, 0, time.UTC),
		600,
	)

	overviews, err := agg.Overview(ctx, "emp-1", "vacation")

	require.NoError(t, err)
	require.Len(t, overviews, 1)
	assert.Equal(t, "Vacation", overviews[0].Category.Name)
	require.Len(t, overviews[0].Periods, 1)

	p := overviews[0].Periods[0]
	assert.Equal(t, engine.PolicyBalancer, p.Type)
	assert.True(t, p.Start.Equal(date(2025, time.January, 1)))
	require.NotNil(t, p.ValidityDate)
	assert.True(t, p.ValidityDate.Equal(validity))
	assert.True(t, p.AmountTaken.Equal(minutes(600)), "taken %s", p.AmountTaken)
	assert.True(t, p.PeriodResult.Equal(minutes(9000)), "result %s", p.PeriodResult)
	assert.True(t, p.Balance.Equal(minutes(9000)), "balance %s", p.Balance)
}

// =============================================================================
// MULTIPLE PERIODS
// =============================================================================

func TestOverview_TwoYears_NoDoubleCounting(t *testing.T) {
	// GIVEN: Two policy years, one absence in each
	// THEN: Each period counts only its own grant and usage, even though
	//       the first year's validity stretches into the second

	ctx := context.Background()
	s, agg := overviewFixture(t, date(2024, time.January, 1))

	v24 := date(2025, time.April, 1)
	add24 := withValidity(entry("add-24", engine.KindAddition, date(2024, time.January, 1), 9600), v24)
	require.NoError(t, s.CreateEntry(ctx, &add24))
	v25 := date(2026, time.April, 1)
	add25 := withValidity(entry("add-25", engine.KindAddition, date(2025, time.January, 1), 9600), v25)
	require.NoError(t, s.CreateEntry(ctx, &add25))

	absence(t, s, "to-24",
		time.Date(2024, time.February, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 3, 18, 0, 0, 0, time.UTC),
		600,
	)
	absence(t, s, "to-25",
		time.Date(2025, time.February, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 3, 18, 0, 0, 0, time.UTC),
		600,
	)

	overviews, err := agg.Overview(ctx, "emp-1", "vacation")

	require.NoError(t, err)
	require.Len(t, overviews, 1)
	require.Len(t, overviews[0].Periods, 2)

	p1, p2 := overviews[0].Periods[0], overviews[0].Periods[1]
	assert.True(t, p1.AmountTaken.Equal(minutes(600)), "p1 taken %s", p1.AmountTaken)
	assert.True(t, p1.PeriodResult.Equal(minutes(9000)), "p1 result %s", p1.PeriodResult)
	assert.True(t, p1.Balance.Equal(minutes(9000)))
	assert.True(t, p2.AmountTaken.Equal(minutes(600)), "p2 taken %s", p2.AmountTaken)
	assert.True(t, p2.PeriodResult.Equal(minutes(9000)), "p2 result %s", p2.PeriodResult)
	assert.True(t, p2.Balance.Equal(minutes(18000)), "running balance spans both years")
}

func TestOverview_StraddlingAbsence_SplitAtBoundary(t *testing.T) {
	// GIVEN: A 960-minute absence spanning New Year's Eve and Jan 1
	// THEN: 480 lands in each period

	ctx := context.Background()
	s, agg := overviewFixture(t, date(2024, time.January, 1))

	v24 := date(2025, time.April, 1)
	add24 := withValidity(entry("add-24", engine.KindAddition, date(2024, time.January, 1), 9600), v24)
	require.NoError(t, s.CreateEntry(ctx, &add24))
	v25 := date(2026, time.April, 1)
	add25 := withValidity(entry("add-25", engine.KindAddition, date(2025, time.January, 1), 9600), v25)
	require.NoError(t, s.CreateEntry(ctx, &add25))

	absence(t, s, "to-1",
		time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
		960,
	)

	overviews, err := agg.Overview(ctx, "emp-1", "vacation")

	require.NoError(t, err)
	require.Len(t, overviews, 1)
	require.Len(t, overviews[0].Periods, 2)

	p1, p2 := overviews[0].Periods[0], overviews[0].Periods[1]
	assert.True(t, p1.AmountTaken.Equal(minutes(480)), "p1 taken %s", p1.AmountTaken)
	assert.True(t, p2.AmountTaken.Equal(minutes(480)), "p2 taken %s", p2.AmountTaken)
}

// =============================================================================
// EDGE CASES
// =============================================================================

func TestOverview_UnknownCategory_NotFound(t *testing.T) {
	ctx := context.Background()
	_, agg := overviewFixture(t, date(2025, time.January, 1))

	_, err := agg.Overview(ctx, "emp-1", "nope")

	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))
}

func TestOverview_NoTimeline_SkipsCategory(t *testing.T) {
	ctx := context.Background()
	_, agg := overviewFixture(t, date(2025, time.January, 1))

	overviews, err := agg.Overview(ctx, "someone-else", "")

	require.NoError(t, err)
	assert.Empty(t, overviews)
}
