/*
overview.go - Period overview aggregation

PURPOSE:
  Read-side replay of one employee's ledger into per-period summaries.
  Nothing here mutates state; the aggregator tolerates being_processed
  entries by reporting their current (possibly provisional) amounts.

PER-PERIOD FIGURES:
  - amount_taken: minutes consumed inside the period's window, which runs
    to the next period's start (or the validity date for the last period).
    Absences straddling a window boundary are split at end-of-day via the
    time-off source, so each side sees only its own share.
  - period_result: the period's grant minus amount_taken. Positive means
    unused credit (expired, for closed balancer periods); negative means
    the period was overdrawn against carry-over.
  - balance: the running ledger balance at the period's last entry.
*/
package engine

import "context"

// =============================================================================
// OVERVIEW SHAPES
// =============================================================================

type PeriodSummary struct {
	Type         PolicyType
	Start        Date
	ValidityDate *Date
	AmountTaken  Minutes
	PeriodResult Minutes
	Balance      Minutes
}

type CategoryOverview struct {
	Category Category
	Periods  []PeriodSummary
}

// =============================================================================
// AGGREGATOR
// =============================================================================

type OverviewAggregator struct {
	Store    Store
	Resolver PeriodResolver
	TimeOffs TimeOffSource

	Clock func() Date
}

func NewOverviewAggregator(store Store, timeOffs TimeOffSource) *OverviewAggregator {
	if timeOffs == nil {
		timeOffs = LinearTimeOffSource{}
	}
	return &OverviewAggregator{Store: store, TimeOffs: timeOffs, Clock: Today}
}

// Overview aggregates every category of the employee, or just one when
// categoryID is non-empty.
func (agg *OverviewAggregator) Overview(ctx context.Context, employeeID, categoryID string) ([]CategoryOverview, error) {
	categories, err := agg.categories(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	var out []CategoryOverview
	for _, category := range categories {
		periods, err := agg.categoryPeriods(ctx, employeeID, category.ID)
		if err != nil {
			return nil, err
		}
		if periods == nil {
			continue
		}
		out = append(out, CategoryOverview{Category: category, Periods: periods})
	}
	return out, nil
}

func (agg *OverviewAggregator) categories(ctx context.Context, categoryID string) ([]Category, error) {
	if categoryID != "" {
		category, err := agg.Store.GetCategory(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		if category == nil {
			return nil, &NotFoundError{Entity: "category", ID: categoryID}
		}
		return []Category{*category}, nil
	}
	return agg.Store.Categories(ctx)
}

// categoryPeriods replays one category's ledger into period summaries.
// Returns nil when the employee has no timeline in the category.
func (agg *OverviewAggregator) categoryPeriods(ctx context.Context, employeeID, categoryID string) ([]PeriodSummary, error) {
	assignments, err := agg.Store.AssignmentsByEmployee(ctx, employeeID, ResourceTimeOff, categoryID)
	if err != nil {
		return nil, err
	}
	timeline := NewTimeline(assignments)
	if len(timeline) == 0 {
		return nil, nil
	}

	entries, err := agg.Store.EntriesByCategory(ctx, employeeID, categoryID)
	if err != nil {
		return nil, err
	}
	timeOffs, err := agg.Store.TimeOffsByEmployee(ctx, employeeID, categoryID)
	if err != nil {
		return nil, err
	}

	var summaries []PeriodSummary
	today := agg.today()
	for i := range timeline {
		a := &timeline[i]
		if a.Reset {
			continue
		}
		policy, err := agg.Store.GetPolicy(ctx, a.ResourceID)
		if err != nil {
			return nil, err
		}
		if policy == nil {
			continue
		}

		till := today
		if a.EffectiveTill != nil && a.EffectiveTill.Before(till) {
			till = *a.EffectiveTill
		}
		periods := agg.Resolver.PeriodsBetween(*policy, *a, a.EffectiveAt, till)
		for j, period := range periods {
			// Consumption windows partition time at period starts; carry-over
			// only stretches the LAST window out to its validity date.
			var next *Date
			if j+1 < len(periods) {
				next = &periods[j+1].Start
			} else if a.EffectiveTill != nil {
				boundary := a.EffectiveTill.AddDays(1)
				next = &boundary
			}
			summary, err := agg.summarize(ctx, *policy, period, next, entries, timeOffs)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}

func (agg *OverviewAggregator) summarize(ctx context.Context, policy TimeOffPolicy, period PolicyPeriod, nextStart *Date, entries []BalanceEntry, timeOffs []TimeOff) (PeriodSummary, error) {
	summary := PeriodSummary{
		Type:         policy.Type,
		Start:        period.Start,
		ValidityDate: period.ValidityDate,
	}

	// The period's window ends the day before the next period starts;
	// carry-over only stretches the last window out to its validity date.
	var windowEnd *Date
	switch {
	case nextStart != nil:
		end := nextStart.AddDays(-1)
		windowEnd = &end
	case period.ValidityDate != nil:
		windowEnd = period.ValidityDate
	}
	inWindow := func(d Date) bool {
		if d.Before(period.Start) {
			return false
		}
		return windowEnd == nil || !d.After(*windowEnd)
	}

	granted := NewMinutes(0)
	balance := NewMinutes(0)
	for i := range entries {
		e := &entries[i]
		balance = balance.Add(e.Amount)
		if !inWindow(e.Key.Date) {
			continue
		}
		summary.Balance = balance

		granted = granted.Add(e.ResourceAmount.PositivePart())
		granted = granted.Add(e.ManualAmount.PositivePart())
	}

	// Consumption is split by clock time, not by entry key, so each side
	// of a straddled window boundary sees only its own share and no minute
	// is counted in two periods.
	taken := NewMinutes(0)
	from := period.Start.AddDays(-1).EndOfDay()
	for i := range timeOffs {
		to := &timeOffs[i]
		until := to.EndTime
		if windowEnd != nil && windowEnd.EndOfDay().Before(until) {
			until = windowEnd.EndOfDay()
		}
		portion, err := agg.TimeOffs.BalanceInRange(ctx, *to, from, until)
		if err != nil {
			return PeriodSummary{}, err
		}
		taken = taken.Add(portion)
	}

	summary.AmountTaken = taken
	summary.PeriodResult = granted.Sub(taken)
	return summary, nil
}

func (agg *OverviewAggregator) today() Date {
	if agg.Clock != nil {
		return agg.Clock()
	}
	return Today()
}
