package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
)

// =============================================================================
// COUNTER POLICIES
// =============================================================================

func TestRemovalAmount_Counter_ZeroesNegativeBalance(t *testing.T) {
	// GIVEN: A sick-leave counter that has tracked 170 minutes of usage
	// WHEN: The period removal runs
	// THEN: The removal carries +170, netting the counter back to zero

	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.January, 1), 0)
	entries := []engine.BalanceEntry{
		entry("a-1", engine.KindAssignation, date(2024, time.January, 1), 0),
		entry("t-1", engine.KindTimeOff, date(2024, time.March, 10), -100),
		entry("t-2", engine.KindTimeOff, date(2024, time.August, 2), -70),
		removal,
	}

	amount, err := calc.Amount(context.Background(), counterPolicy(), entries, removal, nil)

	require.NoError(t, err)
	assert.True(t, amount.Equal(minutes(170)), "got %s", amount)
}

func TestRemovalAmount_Counter_ZeroBalanceYieldsZero(t *testing.T) {
	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.January, 1), 0)
	entries := []engine.BalanceEntry{
		entry("a-1", engine.KindAssignation, date(2024, time.January, 1), 0),
		removal,
	}

	amount, err := calc.Amount(context.Background(), counterPolicy(), entries, removal, nil)

	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

// =============================================================================
// BALANCER POLICIES
// =============================================================================

func TestRemovalAmount_Balancer_PartialExpiry(t *testing.T) {
	// GIVEN: 2400 minutes granted, 600 consumed before the validity date
	// THEN: 1800 unused minutes expire

	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.April, 1), 0)
	addition := withValidity(
		entry("add-1", engine.KindAddition, date(2025, time.January, 1), 2400),
		date(2025, time.April, 1),
	)
	entries := []engine.BalanceEntry{
		addition,
		entry("t-1", engine.KindTimeOff, date(2025, time.February, 10), -600),
		removal,
	}

	amount, err := calc.Amount(context.Background(), balancerPolicy(), entries, removal, nil)

	require.NoError(t, err)
	assert.True(t, amount.Equal(minutes(-1800)), "got %s", amount)
}

func TestRemovalAmount_Balancer_NothingConsumed_EverythingExpires(t *testing.T) {
	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.April, 1), 0)
	addition := withValidity(
		entry("add-1", engine.KindAddition, date(2025, time.January, 1), 2400),
		date(2025, time.April, 1),
	)
	entries := []engine.BalanceEntry{addition, removal}

	amount, err := calc.Amount(context.Background(), balancerPolicy(), entries, removal, nil)

	require.NoError(t, err)
	assert.True(t, amount.Equal(minutes(-2400)), "got %s", amount)
}

func TestRemovalAmount_Balancer_FullyConsumed_NothingExpires(t *testing.T) {
	// Consumption equals the expiring credit exactly: the removal is 0, not
	// a negative rounding artifact.
	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.April, 1), 0)
	addition := withValidity(
		entry("add-1", engine.KindAddition, date(2025, time.January, 1), 2400),
		date(2025, time.April, 1),
	)
	entries := []engine.BalanceEntry{
		addition,
		entry("t-1", engine.KindTimeOff, date(2025, time.February, 10), -2400),
		removal,
	}

	amount, err := calc.Amount(context.Background(), balancerPolicy(), entries, removal, nil)

	require.NoError(t, err)
	assert.True(t, amount.IsZero(), "got %s", amount)
}

func TestRemovalAmount_Balancer_OverConsumed_NothingExpires(t *testing.T) {
	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.April, 1), 0)
	addition := withValidity(
		entry("add-1", engine.KindAddition, date(2025, time.January, 1), 2400),
		date(2025, time.April, 1),
	)
	entries := []engine.BalanceEntry{
		addition,
		entry("t-1", engine.KindTimeOff, date(2025, time.February, 10), -3000),
		removal,
	}

	amount, err := calc.Amount(context.Background(), balancerPolicy(), entries, removal, nil)

	require.NoError(t, err)
	assert.True(t, amount.IsZero(), "got %s", amount)
}

func TestRemovalAmount_Balancer_NoCoveredAdditions_Zero(t *testing.T) {
	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.April, 1), 0)
	entries := []engine.BalanceEntry{
		entry("t-1", engine.KindTimeOff, date(2025, time.February, 10), -600),
		removal,
	}

	amount, err := calc.Amount(context.Background(), balancerPolicy(), entries, removal, nil)

	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

func TestRemovalAmount_Balancer_EarlierRemovalInRange(t *testing.T) {
	// GIVEN: Two additions linked to the same removal, with an intermediate
	//        removal that already expired 200 minutes inside the range
	// THEN: The already-expired 200 is not charged as consumption again

	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-2", engine.KindRemoval, date(2025, time.April, 1), 0)
	entries := []engine.BalanceEntry{
		withRemovalLink(entry("add-1", engine.KindAddition, date(2025, time.January, 1), 1000), "r-2"),
		entry("r-1", engine.KindRemoval, date(2025, time.February, 1), -200),
		withRemovalLink(entry("add-2", engine.KindAddition, date(2025, time.March, 1), 500), "r-2"),
		entry("t-1", engine.KindTimeOff, date(2025, time.March, 10), -300),
		removal,
	}

	amount, err := calc.Amount(context.Background(), balancerPolicy(), entries, removal, nil)

	// amountToExpire 1500, previous balance 1000, already expired 200:
	// net consumption 700, so 800 expire.
	require.NoError(t, err)
	assert.True(t, amount.Equal(minutes(-800)), "got %s", amount)
}

func TestRemovalAmount_Balancer_CapDifference_ReducedGrant(t *testing.T) {
	// GIVEN: 500 consumed before a grant retroactively reduced to 400
	// THEN: The over-consumed excess is capped; nothing expires

	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.April, 1), 0)
	addition := withRemovalLink(
		entry("add-1", engine.KindAddition, date(2025, time.February, 1), 400), "r-1")
	entries := []engine.BalanceEntry{
		entry("t-1", engine.KindTimeOff, date(2025, time.January, 10), -500),
		addition,
		removal,
	}

	amount, err := calc.Amount(context.Background(), balancerPolicy(), entries, removal, nil)

	require.NoError(t, err)
	assert.True(t, amount.IsZero(), "got %s", amount)
}

func TestRemovalAmount_Balancer_StraddlingTimeOff(t *testing.T) {
	// GIVEN: A 960-minute absence spanning Apr 1-2, validity ends Apr 1
	// WHEN: The removal at Apr 1 runs
	// THEN: The first half (480) counts against the expiring period even
	//       though the absence's ledger entry sorts after the removal

	calc := engine.NewRemovalCalculator(nil)
	removal := entry("r-1", engine.KindRemoval, date(2025, time.April, 1), 0)
	addition := withValidity(
		entry("add-1", engine.KindAddition, date(2025, time.January, 1), 2400),
		date(2025, time.April, 1),
	)
	straddler := timeOffBetween("to-1",
		time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 3, 0, 0, 0, 0, time.UTC),
		960,
	)
	entries := []engine.BalanceEntry{
		addition,
		entry("t-1", engine.KindTimeOff, date(2025, time.April, 2), -960),
		removal,
	}

	amount, err := calc.Amount(context.Background(), balancerPolicy(), entries, removal,
		[]engine.TimeOff{straddler})

	// 480 consumed inside the period: 2400 - 480 = 1920 expire.
	require.NoError(t, err)
	assert.True(t, amount.Equal(minutes(-1920)), "got %s", amount)
}

// =============================================================================
// LINEAR TIME-OFF PRORATION
// =============================================================================

func TestLinearTimeOffSource_ProratesByClockTime(t *testing.T) {
	src := engine.LinearTimeOffSource{}
	to := timeOffBetween("to-1",
		time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 3, 0, 0, 0, 0, time.UTC),
		960,
	)

	half, err := src.BalanceInRange(context.Background(), to,
		to.StartTime, date(2025, time.April, 1).EndOfDay())
	require.NoError(t, err)
	assert.True(t, half.Equal(minutes(480)), "got %s", half)

	full, err := src.BalanceInRange(context.Background(), to,
		to.StartTime, to.EndTime)
	require.NoError(t, err)
	assert.True(t, full.Equal(minutes(960)))

	none, err := src.BalanceInRange(context.Background(), to,
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestTimeOffStraddles(t *testing.T) {
	to := timeOffBetween("to-1",
		time.Date(2025, time.April, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2025, time.April, 2, 17, 0, 0, 0, time.UTC),
		960,
	)

	assert.True(t, to.Straddles(date(2025, time.April, 1)))
	assert.False(t, to.Straddles(date(2025, time.April, 2)), "ends within the day")
	assert.False(t, to.Straddles(date(2025, time.March, 31)), "starts after the boundary")
}
