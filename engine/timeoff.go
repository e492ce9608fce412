package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

func decimalFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// =============================================================================
// TIME-OFF - Collaborator record for approved absences
// =============================================================================

// TimeOff is the engine's view of an approved absence. The absence workflow
// itself (requests, approval) lives outside the engine; the ledger only
// needs the consumed minutes and the clock-time range, so straddling
// absences can be split across validity boundaries.
type TimeOff struct {
	ID         string
	EmployeeID string
	CategoryID string

	StartTime time.Time
	EndTime   time.Time

	// Total minutes of entitlement the absence consumes.
	Amount Minutes

	// The KindTimeOff ledger entry debiting this absence.
	BalanceEntryID string
}

// =============================================================================
// TIME-OFF SOURCE - Partial-consumption arithmetic (external)
// =============================================================================

// TimeOffSource computes the minutes an absence consumes inside a
// sub-range. Shift/time-entry arithmetic is a separate subsystem; the
// engine only consumes this one operation, for attributing straddling
// absences to the correct expiring period.
type TimeOffSource interface {
	BalanceInRange(ctx context.Context, timeOff TimeOff, from, to time.Time) (Minutes, error)
}

// LinearTimeOffSource prorates the absence's total minutes uniformly over
// its clock-time span. Deployments with real shift data plug in their own
// source; this is the default and the test double.
type LinearTimeOffSource struct{}

func (LinearTimeOffSource) BalanceInRange(_ context.Context, to TimeOff, from, until time.Time) (Minutes, error) {
	if !until.After(from) || !to.EndTime.After(to.StartTime) {
		return NewMinutes(0), nil
	}
	if from.Before(to.StartTime) {
		from = to.StartTime
	}
	if until.After(to.EndTime) {
		until = to.EndTime
	}
	if !until.After(from) {
		return NewMinutes(0), nil
	}

	span := to.EndTime.Sub(to.StartTime).Minutes()
	part := until.Sub(from).Minutes()
	fraction := decimalFromFloat(part).Div(decimalFromFloat(span))
	return Minutes{Value: to.Amount.Value.Mul(fraction).Round(0)}, nil
}

// Straddles reports whether the absence crosses the end of the given day.
func (to TimeOff) Straddles(boundary Date) bool {
	end := boundary.EndOfDay()
	return to.StartTime.Before(end) && to.EndTime.After(end)
}
