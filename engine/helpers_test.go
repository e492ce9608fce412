package engine_test

import (
	"context"
	"time"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
)

// stubRunner records scheduled tasks instead of executing them.
type stubRunner struct {
	tasks []map[string]string
}

func (r *stubRunner) Schedule(_ context.Context, _ string, args map[string]string) error {
	r.tasks = append(r.tasks, args)
	return nil
}

// =============================================================================
// SHARED TEST FIXTURES
// =============================================================================

func date(y int, m time.Month, d int) engine.Date {
	return engine.NewDate(y, m, d)
}

func minutes(v int64) engine.Minutes {
	return engine.NewMinutes(v)
}

func balancerPolicy() engine.TimeOffPolicy {
	return engine.TimeOffPolicy{
		ID:         "vacation-standard",
		Name:       "Standard vacation",
		CategoryID: "vacation",
		Type:       engine.PolicyBalancer,
		Amount:     engine.NewMinutes(9600),
		StartDay:   1, StartMonth: time.January,
		EndDay: 1, EndMonth: time.April,
	}
}

func counterPolicy() engine.TimeOffPolicy {
	return engine.TimeOffPolicy{
		ID:         "sick-counter",
		Name:       "Sick leave counter",
		CategoryID: "sick",
		Type:       engine.PolicyCounter,
		StartDay:   1, StartMonth: time.January,
	}
}

func assignmentAt(d engine.Date) engine.PolicyAssignment {
	return engine.PolicyAssignment{
		ID:          "assignment-1",
		EmployeeID:  "emp-1",
		Kind:        engine.ResourceTimeOff,
		ResourceID:  "vacation-standard",
		CategoryID:  "vacation",
		EffectiveAt: d,
	}
}

// entry builds a ledger row with the amount also mirrored into the
// resource/manual split the way the factory would fill it.
func entry(id string, kind engine.EntryKind, d engine.Date, amount int64) engine.BalanceEntry {
	e := engine.BalanceEntry{
		ID:         id,
		EmployeeID: "emp-1",
		CategoryID: "vacation",
		Kind:       kind,
		Key:        engine.KeyFor(d, kind),
		Amount:     minutes(amount),
	}
	switch kind {
	case engine.KindAddition:
		e.ResourceAmount = minutes(amount)
	case engine.KindAssignation:
		e.ManualAmount = minutes(amount)
	}
	return e
}

func withValidity(e engine.BalanceEntry, d engine.Date) engine.BalanceEntry {
	e.ValidityDate = &d
	return e
}

func withRemovalLink(e engine.BalanceEntry, removalID string) engine.BalanceEntry {
	e.RemovalID = removalID
	return e
}

func timeOffBetween(id string, start, end time.Time, amount int64) engine.TimeOff {
	return engine.TimeOff{
		ID:         id,
		EmployeeID: "emp-1",
		CategoryID: "vacation",
		StartTime:  start,
		EndTime:    end,
		Amount:     minutes(amount),
	}
}
