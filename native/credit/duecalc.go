package credit

import (
	"math/big"

	"creditline/native/calendar"
)

var (
	basisPoints = big.NewInt(10_000)
	// yieldDenominator fuses the basis-point and 30/360 day-count divisors so
	// YieldAmount truncates exactly once. Splitting the division into two
	// sequential truncations would change least-significant-unit outcomes
	// under multi-period catch-up, so every accrual path shares this single
	// fused division.
	yieldDenominator = new(big.Int).Mul(basisPoints, big.NewInt(calendar.DaysInYear))
)

// YieldAmount computes principal * rateBps * days / (10000 * 360) with a
// single truncating division. It prices both next-due yield and late fees;
// only the rate input differs.
func YieldAmount(principal *big.Int, rateBps uint64, days int) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rateBps == 0 || days <= 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(principal, new(big.Int).SetUint64(rateBps))
	amount.Mul(amount, big.NewInt(int64(days)))
	return amount.Quo(amount, yieldDenominator)
}

// PrincipalDueForFullPeriods amortises unbilled principal at the minimum
// principal rate over numPeriods whole periods. The result never exceeds the
// unbilled amount.
func PrincipalDueForFullPeriods(unbilled *big.Int, principalRateBps uint64, numPeriods uint32) *big.Int {
	if unbilled == nil || unbilled.Sign() <= 0 || principalRateBps == 0 || numPeriods == 0 {
		return big.NewInt(0)
	}
	due := new(big.Int).Mul(unbilled, new(big.Int).SetUint64(principalRateBps))
	due.Mul(due, new(big.Int).SetUint64(uint64(numPeriods)))
	due.Quo(due, basisPoints)
	if due.Cmp(unbilled) > 0 {
		return new(big.Int).Set(unbilled)
	}
	return due
}

// PrincipalDueForPartialPeriod pro-rates the full-period principal rate down
// by the day fraction, capped at the amount itself.
func PrincipalDueForPartialPeriod(amount *big.Int, principalRateBps uint64, daysInPartial, daysInFullPeriod int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || principalRateBps == 0 || daysInPartial <= 0 || daysInFullPeriod <= 0 {
		return big.NewInt(0)
	}
	due := new(big.Int).Mul(amount, new(big.Int).SetUint64(principalRateBps))
	due.Mul(due, big.NewInt(int64(daysInPartial)))
	due.Quo(due, new(big.Int).Mul(basisPoints, big.NewInt(int64(daysInFullPeriod))))
	if due.Cmp(amount) > 0 {
		return new(big.Int).Set(amount)
	}
	return due
}

// AccruedAndCommittedYield returns both yield figures for a billing window:
// the accrual on actual drawn principal and the accrual on the committed
// amount. The caller bills the larger of the two when a commitment exists.
func AccruedAndCommittedYield(principal, committed *big.Int, yieldBps uint64, days int) (*big.Int, *big.Int) {
	return YieldAmount(principal, yieldBps, days), YieldAmount(committed, yieldBps, days)
}

// BilledYield selects the billed yield for a window: the committed figure acts
// as a floor whenever a non-zero commitment exists.
func BilledYield(accrued, committed *big.Int) *big.Int {
	if committed != nil && committed.Sign() > 0 && committed.Cmp(accrued) > 0 {
		return new(big.Int).Set(committed)
	}
	return cloneBigInt(accrued)
}
