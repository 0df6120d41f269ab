package credit

import (
	"math/big"

	"creditline/native/calendar"
)

// ComputeDueInfo derives the billing state a refresh would produce as of now.
// It is pure: both inputs are cloned before any mutation, so callers can
// compare the results against the stored records to decide whether anything
// changed. Terminal states and credits that have never been drawn down pass
// through untouched.
//
// The refresh walks three phases:
//  1. roll the expired bill (if any) into the past-due buckets,
//  2. bill every fully-skipped period into past due, one amortisation slice
//     and one full-period yield charge per period,
//  3. generate the bill for the period containing now, ballooning the entire
//     remaining unbilled principal when that period is the final one.
//
// Late fees then extend from the last charged day to the start of the day
// after now. The first delinquency anchors the fee window at the bill's
// original due date.
func ComputeDueInfo(cfg *CreditConfig, fees FeeStructure, settings PoolSettings, record *CreditRecord, detail *DueDetail, now int64) (*CreditRecord, *DueDetail, error) {
	cr := record.Clone()
	cr.EnsureDefaults()
	dd := detail.Clone()
	dd.EnsureDefaults()

	if cr.State != StateGoodStanding && cr.State != StateDelayed {
		return cr, dd, nil
	}

	priorDueDate := cr.NextDueDate
	if now >= cr.NextDueDate {
		graceDeadline := cr.NextDueDate + int64(settings.LatePaymentGracePeriodDays)*calendar.DaySeconds
		withinGrace := cr.TotalPastDue.Sign() == 0 && cr.NextDue.Sign() > 0 && now <= graceDeadline
		if !withinGrace {
			if err := rollPeriods(cfg, fees, cr, dd, now); err != nil {
				return nil, nil, err
			}
		}
	}

	if dd.YieldPastDue.Sign() > 0 || dd.PrincipalPastDue.Sign() > 0 || dd.LateFee.Sign() > 0 {
		if err := accrueLateFee(fees, cr, dd, priorDueDate, now); err != nil {
			return nil, nil, err
		}
	}

	cr.TotalPastDue = new(big.Int).Add(dd.LateFee, dd.YieldPastDue)
	cr.TotalPastDue.Add(cr.TotalPastDue, dd.PrincipalPastDue)
	if cr.TotalPastDue.Sign() > 0 {
		cr.State = StateDelayed
	}
	return cr, dd, nil
}

// rollPeriods advances the bill across every period boundary crossed since
// the stored due date. The caller has already established that the expired
// bill is either past its grace window or fully paid.
func rollPeriods(cfg *CreditConfig, fees FeeStructure, cr *CreditRecord, dd *DueDetail, now int64) error {
	du := cfg.PeriodDuration
	maturity := calendar.AddPeriods(du, cr.NextDueDate, cr.RemainingPeriods)
	periodDays := du.DaysInPeriod()

	// Phase 1: unpaid current bill rolls into past due.
	if cr.NextDue.Sign() > 0 {
		principalPortion := new(big.Int).Sub(cr.NextDue, cr.YieldDue)
		dd.YieldPastDue.Add(dd.YieldPastDue, cr.YieldDue)
		dd.PrincipalPastDue.Add(dd.PrincipalPastDue, principalPortion)
		cr.MissedPeriods++
	}
	cr.NextDue = big.NewInt(0)
	cr.YieldDue = big.NewInt(0)
	dd.Paid = big.NewInt(0)
	dd.Accrued = big.NewInt(0)
	dd.Committed = big.NewInt(0)

	// Phase 2: catch up on fully-skipped periods.
	billStart := calendar.StartOfPeriod(du, now)
	if billStart > maturity {
		billStart = maturity
	}
	skipped, err := calendar.PeriodsPassed(du, cr.NextDueDate, billStart)
	if err != nil {
		return err
	}
	for i := uint32(0); i < skipped && cr.RemainingPeriods > 0; i++ {
		accrued, committed := AccruedAndCommittedYield(outstandingPrincipal(cr, dd), cfg.CommittedAmount, cfg.YieldBps, periodDays)
		yield := BilledYield(accrued, committed)
		var slice *big.Int
		if cr.RemainingPeriods == 1 {
			// Final period: full payoff falls due at maturity.
			slice = new(big.Int).Set(cr.UnbilledPrincipal)
		} else {
			slice = PrincipalDueForFullPeriods(cr.UnbilledPrincipal, fees.MinPrincipalRateBps, 1)
		}
		if yield.Sign() > 0 || slice.Sign() > 0 {
			cr.MissedPeriods++
		}
		dd.YieldPastDue.Add(dd.YieldPastDue, yield)
		dd.PrincipalPastDue.Add(dd.PrincipalPastDue, slice)
		cr.UnbilledPrincipal.Sub(cr.UnbilledPrincipal, slice)
		cr.RemainingPeriods--
	}

	// Phase 3: bill the period containing now.
	if cr.RemainingPeriods == 0 || billStart >= maturity {
		cr.NextDueDate = maturity
		return nil
	}
	cr.RemainingPeriods--
	nextDueDate := calendar.StartOfNextPeriod(du, billStart)
	if nextDueDate > maturity {
		nextDueDate = maturity
	}
	accrued, committed := AccruedAndCommittedYield(outstandingPrincipal(cr, dd), cfg.CommittedAmount, cfg.YieldBps, periodDays)
	dd.Accrued = accrued
	dd.Committed = committed
	cr.YieldDue = BilledYield(accrued, committed)
	var principalDue *big.Int
	if cr.RemainingPeriods == 0 {
		principalDue = new(big.Int).Set(cr.UnbilledPrincipal)
	} else {
		principalDue = PrincipalDueForFullPeriods(cr.UnbilledPrincipal, fees.MinPrincipalRateBps, 1)
	}
	cr.UnbilledPrincipal.Sub(cr.UnbilledPrincipal, principalDue)
	cr.NextDue = new(big.Int).Add(cr.YieldDue, principalDue)
	cr.NextDueDate = nextDueDate
	return nil
}

// accrueLateFee extends the late fee window to the start of the day after
// now. Fees accrue on total outstanding principal at the configured late fee
// rate, through the same fused-division yield arithmetic as regular accrual.
func accrueLateFee(fees FeeStructure, cr *CreditRecord, dd *DueDetail, priorDueDate, now int64) error {
	if cr.State == StateDefaulted {
		return nil
	}
	anchor := dd.LateFeeUpdatedDate
	if anchor == 0 {
		anchor = priorDueDate
	}
	end := calendar.StartOfNextDay(now)
	if end <= anchor {
		return nil
	}
	days, err := calendar.DaysDiff(anchor, end)
	if err != nil {
		return err
	}
	if days > 0 {
		dd.LateFee.Add(dd.LateFee, YieldAmount(outstandingPrincipal(cr, dd), fees.LateFeeBps, days))
		dd.LateFeeUpdatedDate = end
	}
	return nil
}

// outstandingPrincipal sums every principal bucket of a credit: unbilled,
// billed into the current period, and rolled into past due.
func outstandingPrincipal(cr *CreditRecord, dd *DueDetail) *big.Int {
	out := new(big.Int).Add(cr.UnbilledPrincipal, dd.PrincipalPastDue)
	out.Add(out, new(big.Int).Sub(cr.NextDue, cr.YieldDue))
	return out
}

// NextBillRefreshDate reports the earliest time at which a refresh would
// change the stored billing state: delinquent bills re-price daily, unpaid
// current bills change once the late-payment grace deadline passes, and paid
// bills roll at the next period boundary. The grace deadline itself is still
// inside the window, so the unpaid-bill case points one second past it.
func NextBillRefreshDate(settings PoolSettings, cr *CreditRecord, now int64) int64 {
	if cr == nil || (cr.State != StateGoodStanding && cr.State != StateDelayed) {
		return 0
	}
	if cr.TotalPastDue != nil && cr.TotalPastDue.Sign() > 0 {
		return calendar.StartOfNextDay(now)
	}
	if cr.NextDue != nil && cr.NextDue.Sign() > 0 {
		return cr.NextDueDate + int64(settings.LatePaymentGracePeriodDays)*calendar.DaySeconds + 1
	}
	return cr.NextDueDate
}
