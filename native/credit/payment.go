package credit

import "math/big"

// takeFrom drains min(remaining, bucket) from the bucket, reduces the
// remaining payment accordingly and returns the consumed amount. Zero-balance
// buckets are skipped untouched.
func takeFrom(bucket, remaining *big.Int) *big.Int {
	if bucket == nil || bucket.Sign() <= 0 || remaining.Sign() <= 0 {
		return big.NewInt(0)
	}
	take := new(big.Int).Set(remaining)
	if take.Cmp(bucket) > 0 {
		take.Set(bucket)
	}
	bucket.Sub(bucket, take)
	remaining.Sub(remaining, take)
	return take
}

// allocatePayment applies a requested amount across the obligation buckets in
// the fixed waterfall order: yield past due, late fee, principal past due,
// yield next due, principal next due, unbilled principal. The record and
// detail are mutated in place (callers pass clones) and the collected total
// never exceeds the outstanding obligation.
func allocatePayment(cr *CreditRecord, dd *DueDetail, amount *big.Int) (PaymentBreakdown, *big.Int) {
	b := emptyBreakdown()
	remaining := new(big.Int).Set(amount)

	b.YieldPastDuePaid = takeFrom(dd.YieldPastDue, remaining)
	b.LateFeePaid = takeFrom(dd.LateFee, remaining)
	b.PrincipalPastDuePaid = takeFrom(dd.PrincipalPastDue, remaining)
	cr.TotalPastDue = new(big.Int).Add(dd.LateFee, dd.YieldPastDue)
	cr.TotalPastDue.Add(cr.TotalPastDue, dd.PrincipalPastDue)

	b.YieldDuePaid = takeFrom(cr.YieldDue, remaining)
	dd.Paid.Add(dd.Paid, b.YieldDuePaid)
	cr.NextDue.Sub(cr.NextDue, b.YieldDuePaid)

	principalPortion := new(big.Int).Sub(cr.NextDue, cr.YieldDue)
	b.PrincipalDuePaid = takeFrom(principalPortion, remaining)
	cr.NextDue.Sub(cr.NextDue, b.PrincipalDuePaid)

	b.UnbilledPrincipalPaid = takeFrom(cr.UnbilledPrincipal, remaining)

	return b, b.Total()
}

// allocatePrincipalPayment applies a principal-only payment: the principal
// portion of the current bill first, then unbilled principal. Yield and late
// fee buckets are never touched.
func allocatePrincipalPayment(cr *CreditRecord, amount *big.Int) (principalDuePaid, unbilledPaid *big.Int) {
	remaining := new(big.Int).Set(amount)

	principalPortion := new(big.Int).Sub(cr.NextDue, cr.YieldDue)
	principalDuePaid = takeFrom(principalPortion, remaining)
	cr.NextDue.Sub(cr.NextDue, principalDuePaid)

	unbilledPaid = takeFrom(cr.UnbilledPrincipal, remaining)
	return principalDuePaid, unbilledPaid
}

// settleAfterPayment derives the post-allocation lifecycle state: clearing the
// past-due buckets restores good standing, and a fully retired credit at the
// end of its term is deleted.
func settleAfterPayment(cr *CreditRecord, dd *DueDetail) {
	if cr.TotalPastDue.Sign() == 0 {
		cr.MissedPeriods = 0
		dd.LateFeeUpdatedDate = 0
		if cr.State == StateDelayed {
			cr.State = StateGoodStanding
		}
	}
	if cr.TotalPastDue.Sign() == 0 && cr.NextDue.Sign() == 0 &&
		cr.UnbilledPrincipal.Sign() == 0 && cr.RemainingPeriods == 0 {
		cr.State = StateDeleted
	}
}
