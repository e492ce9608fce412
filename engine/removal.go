/*
removal.go - Removal amount calculation

PURPOSE:
  Computes the signed amount a removal entry must carry so that, combined
  with the additions it covers, the post-removal balance reflects actual
  usage and expiry.

COUNTER POLICIES:
  The ledger is a usage counter. A removal nets the running total back to
  zero: amount = -(balance immediately before the removal). No carry-over.

BALANCER POLICIES:
  Each addition carries credit that expires at the removal's date. The
  calculation walks the covered range [first addition, removal):

    amountToExpire = sum of positive movements in the range
    netPosition    = amountToExpire
                     - (previousBalance
                        - alreadyExpiredInRange
                        - additionCapDifference
                        + straddlingTimeOffUsage)

  netPosition is the consumption attributed to the expiring credit:
    netPosition <= 0              -> nothing consumed, everything expires
    netPosition >= amountToExpire -> fully consumed, nothing expires (0)
    otherwise                     -> partial expiry, -(amountToExpire - netPosition)

  additionCapDifference caps an addition whose manual amount was reduced
  retroactively below what was already consumed (addition.amount greater
  than the balance it actually contributed), so expiry never double-counts
  a negative.

  straddlingTimeOffUsage is the (negative) movement of absences that cross
  the removal's date: their consumption up to the end of the validity day
  belongs to the expiring period even though their ledger entry sorts after
  the removal.

NUMERIC SEMANTICS:
  All amounts are whole minutes. When amountToExpire equals netPosition the
  removal amount is exactly zero.
*/
package engine

import "context"

// =============================================================================
// REMOVAL AMOUNT CALCULATOR
// =============================================================================

type RemovalCalculator struct {
	TimeOffs TimeOffSource
}

func NewRemovalCalculator(source TimeOffSource) *RemovalCalculator {
	if source == nil {
		source = LinearTimeOffSource{}
	}
	return &RemovalCalculator{TimeOffs: source}
}

// Amount computes the signed amount for removal given the full category
// ledger (sorted by key) and the absences in the category. The removal's
// own current amount is ignored; the result is derived from scratch.
func (rc *RemovalCalculator) Amount(
	ctx context.Context,
	policy TimeOffPolicy,
	entries []BalanceEntry,
	removal BalanceEntry,
	timeOffs []TimeOff,
) (Minutes, error) {
	if policy.Type == PolicyCounter {
		return rc.counterAmount(entries, removal), nil
	}
	return rc.balancerAmount(ctx, entries, removal, timeOffs)
}

// counterAmount zeroes the running total: no carry-over, ever.
func (rc *RemovalCalculator) counterAmount(entries []BalanceEntry, removal BalanceEntry) Minutes {
	previous := runningBalanceExcluding(entries, removal)
	return previous.Neg()
}

func (rc *RemovalCalculator) balancerAmount(
	ctx context.Context,
	entries []BalanceEntry,
	removal BalanceEntry,
	timeOffs []TimeOff,
) (Minutes, error) {
	covered := rc.coveredAdditions(entries, removal)
	if len(covered) == 0 {
		return NewMinutes(0), nil
	}
	rangeStart := covered[0].Key

	var (
		amountToExpire = NewMinutes(0)
		alreadyExpired = NewMinutes(0)
		capDifference  = NewMinutes(0)
		running        = NewMinutes(0)
	)

	for i := range entries {
		e := &entries[i]
		if e.Key.Compare(removal.Key) >= 0 {
			break
		}
		if e.Key.Compare(rangeStart) >= 0 {
			// Positive movements inside the covered range are the credit
			// that expires at this removal.
			amountToExpire = amountToExpire.Add(e.ResourceAmount.PositivePart())
			amountToExpire = amountToExpire.Add(e.ManualAmount.PositivePart())

			if e.Kind == KindRemoval {
				alreadyExpired = alreadyExpired.Add(e.Amount.Neg().PositivePart())
			}
			if e.Kind == KindAddition && rc.isCoveredBy(e, removal) {
				// Addition granting more than the balance available at its
				// own position: the excess was consumed before the grant
				// was reduced and must not expire again.
				excess := e.Amount.Sub(running.Add(e.Amount).PositivePart())
				capDifference = capDifference.Add(excess.PositivePart())
			}
		}
		running = running.Add(e.Amount)
	}
	previousBalance := running

	straddling, err := rc.straddlingUsage(ctx, removal, timeOffs)
	if err != nil {
		return Minutes{}, err
	}

	netPosition := amountToExpire.Sub(
		previousBalance.
			Sub(alreadyExpired).
			Sub(capDifference).
			Add(straddling),
	)

	switch {
	case !netPosition.IsPositive():
		return amountToExpire.Neg(), nil
	case netPosition.GreaterOrEqual(amountToExpire):
		return NewMinutes(0), nil
	default:
		return amountToExpire.Sub(netPosition).Neg(), nil
	}
}

// coveredAdditions returns the additions this removal nets out, in key
// order. Linked additions (RemovalID) win; without links, additions whose
// validity date equals the removal's date are covered.
func (rc *RemovalCalculator) coveredAdditions(entries []BalanceEntry, removal BalanceEntry) []BalanceEntry {
	var covered []BalanceEntry
	for i := range entries {
		e := &entries[i]
		if e.Kind != KindAddition || e.Key.Compare(removal.Key) >= 0 {
			continue
		}
		if rc.isCoveredBy(e, removal) {
			covered = append(covered, *e)
		}
	}
	return covered
}

func (rc *RemovalCalculator) isCoveredBy(addition *BalanceEntry, removal BalanceEntry) bool {
	if addition.RemovalID != "" {
		return addition.RemovalID == removal.ID
	}
	return addition.ValidityDate != nil && addition.ValidityDate.Equal(removal.Key.Date)
}

// straddlingUsage sums the (negative) consumption, up to the end of the
// removal's day, of absences crossing it. Their ledger entries sort after
// the removal, so this portion is invisible to the running balance.
func (rc *RemovalCalculator) straddlingUsage(ctx context.Context, removal BalanceEntry, timeOffs []TimeOff) (Minutes, error) {
	usage := NewMinutes(0)
	boundary := removal.Key.Date
	for _, to := range timeOffs {
		if !to.Straddles(boundary) {
			continue
		}
		consumed, err := rc.TimeOffs.BalanceInRange(ctx, to, to.StartTime, boundary.EndOfDay())
		if err != nil {
			return Minutes{}, err
		}
		usage = usage.Sub(consumed)
	}
	return usage, nil
}

// runningBalanceExcluding sums amounts of all entries strictly before the
// given entry's key.
func runningBalanceExcluding(entries []BalanceEntry, entry BalanceEntry) Minutes {
	return RunningBalance(entries, entry.Key, true)
}
