package credit

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"creditline/core/types"
)

const (
	EventTypeCreditApproved   = "credit.approved"
	EventTypeDrawdown         = "credit.drawdown"
	EventTypeBillRefreshed    = "credit.bill_refreshed"
	EventTypePaymentMade      = "credit.payment_made"
	EventTypePrincipalPayment = "credit.principal_payment_made"
	EventTypeCreditClosed     = "credit.closed"
	EventTypeDefaultTriggered = "credit.default_triggered"
	EventTypePeriodsExtended  = "credit.remaining_periods_extended"
	EventTypeYieldUpdated     = "credit.yield_updated"
	EventTypeLimitUpdated     = "credit.limit_commitment_updated"
	EventTypeLateFeeWaived    = "credit.late_fee_waived"
)

func baseAttributes(hash [32]byte) map[string]string {
	return map[string]string{"creditHash": hex.EncodeToString(hash[:])}
}

func putAmount(attrs map[string]string, key string, v *big.Int) {
	if v == nil {
		v = big.NewInt(0)
	}
	attrs[key] = v.String()
}

// NewApprovedEvent returns the canonical payload emitted when a credit is
// approved.
func NewApprovedEvent(hash [32]byte, cfg *CreditConfig) *types.Event {
	attrs := baseAttributes(hash)
	if cfg != nil {
		putAmount(attrs, "creditLimit", cfg.CreditLimit)
		putAmount(attrs, "committedAmount", cfg.CommittedAmount)
		attrs["numPeriods"] = strconv.FormatUint(uint64(cfg.NumPeriods), 10)
		attrs["yieldBps"] = strconv.FormatUint(cfg.YieldBps, 10)
		attrs["periodDuration"] = cfg.PeriodDuration.String()
		attrs["revolving"] = strconv.FormatBool(cfg.Revolving)
	}
	return &types.Event{Type: EventTypeCreditApproved, Attributes: attrs}
}

// NewDrawdownEvent returns the canonical payload emitted when principal is
// drawn against the credit line.
func NewDrawdownEvent(hash [32]byte, amount *big.Int, cr *CreditRecord) *types.Event {
	attrs := baseAttributes(hash)
	putAmount(attrs, "amount", amount)
	if cr != nil {
		putAmount(attrs, "unbilledPrincipal", cr.UnbilledPrincipal)
		putAmount(attrs, "nextDue", cr.NextDue)
		attrs["nextDueDate"] = strconv.FormatInt(cr.NextDueDate, 10)
	}
	return &types.Event{Type: EventTypeDrawdown, Attributes: attrs}
}

// NewBillRefreshedEvent returns the payload emitted when a refresh actually
// mutated the stored bill. The pool listens to this to rebalance
// distributions.
func NewBillRefreshedEvent(hash [32]byte, cr *CreditRecord) *types.Event {
	attrs := baseAttributes(hash)
	if cr != nil {
		attrs["newDueDate"] = strconv.FormatInt(cr.NextDueDate, 10)
		putAmount(attrs, "nextDue", cr.NextDue)
		putAmount(attrs, "totalPastDue", cr.TotalPastDue)
		attrs["missedPeriods"] = strconv.FormatUint(uint64(cr.MissedPeriods), 10)
	}
	return &types.Event{Type: EventTypeBillRefreshed, Attributes: attrs}
}

// NewPaymentMadeEvent returns the payload emitted after a successful payment
// allocation, carrying the full bucket breakdown for downstream profit and
// loss distribution.
func NewPaymentMadeEvent(hash [32]byte, payer [20]byte, applied *big.Int, b PaymentBreakdown) *types.Event {
	attrs := baseAttributes(hash)
	attrs["payer"] = hex.EncodeToString(payer[:])
	putAmount(attrs, "applied", applied)
	putAmount(attrs, "yieldDuePaid", b.YieldDuePaid)
	putAmount(attrs, "principalDuePaid", b.PrincipalDuePaid)
	putAmount(attrs, "unbilledPrincipalPaid", b.UnbilledPrincipalPaid)
	putAmount(attrs, "yieldPastDuePaid", b.YieldPastDuePaid)
	putAmount(attrs, "lateFeePaid", b.LateFeePaid)
	putAmount(attrs, "principalPastDuePaid", b.PrincipalPastDuePaid)
	return &types.Event{Type: EventTypePaymentMade, Attributes: attrs}
}

// NewPrincipalPaymentEvent returns the payload for a principal-only payment.
func NewPrincipalPaymentEvent(hash [32]byte, payer [20]byte, applied, principalDuePaid, unbilledPaid *big.Int) *types.Event {
	attrs := baseAttributes(hash)
	attrs["payer"] = hex.EncodeToString(payer[:])
	putAmount(attrs, "applied", applied)
	putAmount(attrs, "principalDuePaid", principalDuePaid)
	putAmount(attrs, "unbilledPrincipalPaid", unbilledPaid)
	return &types.Event{Type: EventTypePrincipalPayment, Attributes: attrs}
}

// NewClosedEvent returns the payload emitted when a credit line is closed.
func NewClosedEvent(hash [32]byte) *types.Event {
	return &types.Event{Type: EventTypeCreditClosed, Attributes: baseAttributes(hash)}
}

// NewDefaultTriggeredEvent returns the payload emitted when a delinquent
// credit is written off, crystallising the principal, yield and fee losses.
func NewDefaultTriggeredEvent(hash [32]byte, principalLoss, yieldLoss, feeLoss *big.Int) *types.Event {
	attrs := baseAttributes(hash)
	putAmount(attrs, "principalLoss", principalLoss)
	putAmount(attrs, "yieldLoss", yieldLoss)
	putAmount(attrs, "feeLoss", feeLoss)
	return &types.Event{Type: EventTypeDefaultTriggered, Attributes: attrs}
}

// NewPeriodsExtendedEvent returns the payload emitted when the remaining term
// is extended.
func NewPeriodsExtendedEvent(hash [32]byte, added, remaining uint32) *types.Event {
	attrs := baseAttributes(hash)
	attrs["addedPeriods"] = strconv.FormatUint(uint64(added), 10)
	attrs["remainingPeriods"] = strconv.FormatUint(uint64(remaining), 10)
	return &types.Event{Type: EventTypePeriodsExtended, Attributes: attrs}
}

// NewYieldUpdatedEvent returns the payload emitted when the yield rate is
// re-priced mid-cycle.
func NewYieldUpdatedEvent(hash [32]byte, oldBps, newBps uint64, yieldDue *big.Int) *types.Event {
	attrs := baseAttributes(hash)
	attrs["oldYieldBps"] = strconv.FormatUint(oldBps, 10)
	attrs["newYieldBps"] = strconv.FormatUint(newBps, 10)
	putAmount(attrs, "yieldDue", yieldDue)
	return &types.Event{Type: EventTypeYieldUpdated, Attributes: attrs}
}

// NewLimitUpdatedEvent returns the payload emitted when the credit limit and
// committed amount are revised.
func NewLimitUpdatedEvent(hash [32]byte, limit, committed *big.Int) *types.Event {
	attrs := baseAttributes(hash)
	putAmount(attrs, "creditLimit", limit)
	putAmount(attrs, "committedAmount", committed)
	return &types.Event{Type: EventTypeLimitUpdated, Attributes: attrs}
}

// NewLateFeeWaivedEvent returns the payload emitted when a late fee is
// partially or fully waived.
func NewLateFeeWaivedEvent(hash [32]byte, waived, remaining *big.Int) *types.Event {
	attrs := baseAttributes(hash)
	putAmount(attrs, "waivedAmount", waived)
	putAmount(attrs, "remainingLateFee", remaining)
	return &types.Event{Type: EventTypeLateFeeWaived, Attributes: attrs}
}
