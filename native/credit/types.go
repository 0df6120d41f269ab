package credit

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"creditline/native/calendar"
)

// CreditState represents the lifecycle states of a credit facility.
type CreditState uint8

const (
	// StateDeleted marks a credit that has been fully retired or closed. The
	// zero value doubles as "no credit exists" for fresh hashes.
	StateDeleted CreditState = iota
	StateApproved
	StateGoodStanding
	StateDelayed
	StateDefaulted
)

// Valid reports whether the state value is within the supported range.
func (s CreditState) Valid() bool {
	switch s {
	case StateDeleted, StateApproved, StateGoodStanding, StateDelayed, StateDefaulted:
		return true
	default:
		return false
	}
}

func (s CreditState) String() string {
	switch s {
	case StateDeleted:
		return "deleted"
	case StateApproved:
		return "approved"
	case StateGoodStanding:
		return "good_standing"
	case StateDelayed:
		return "delayed"
	case StateDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Hash derives the deterministic identity of a credit facility. Plain credit
// lines use receivableID zero; factoring variants bind the receivable into the
// identity so each receivable gets its own bill.
func Hash(borrower [20]byte, receivableID uint64) [32]byte {
	var buf [28]byte
	copy(buf[:20], borrower[:])
	binary.BigEndian.PutUint64(buf[20:], receivableID)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(buf[:]))
	return id
}

// CreditConfig captures the immutable terms of an approved credit facility. It
// is replaced wholesale on re-approval after closure; only the yield rate and
// the limit/commitment pair may be updated in place through dedicated admin
// operations.
type CreditConfig struct {
	// CreditLimit is the maximum outstanding principal allowed for the credit.
	CreditLimit *big.Int
	// CommittedAmount establishes a contractual yield floor independent of
	// utilisation. Zero disables the commitment.
	CommittedAmount *big.Int
	// PeriodDuration selects the billing cycle length.
	PeriodDuration calendar.PeriodDuration
	// NumPeriods is the total number of billing periods until maturity.
	NumPeriods uint32
	// YieldBps is the annualised yield rate in basis points.
	YieldBps uint64
	// Revolving permits repeated drawdowns while the credit is in good
	// standing.
	Revolving bool
	// AdvanceRateBps caps the borrowable fraction of the credit limit.
	AdvanceRateBps uint64
	// AutoApproval marks credits approved without manual evaluation.
	AutoApproval bool
	// DesignatedStartDate optionally delays the first drawdown. Zero means
	// drawdown is allowed immediately after approval.
	DesignatedStartDate int64
}

// Clone returns a deep copy of the config so callers can mutate the copy
// without affecting the stored instance.
func (c *CreditConfig) Clone() *CreditConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.CreditLimit = cloneBigInt(c.CreditLimit)
	clone.CommittedAmount = cloneBigInt(c.CommittedAmount)
	return &clone
}

// EnsureDefaults populates nil amount fields so codec handling stays safe.
func (c *CreditConfig) EnsureDefaults() {
	if c == nil {
		return
	}
	if c.CreditLimit == nil {
		c.CreditLimit = big.NewInt(0)
	}
	if c.CommittedAmount == nil {
		c.CommittedAmount = big.NewInt(0)
	}
}

// CreditRecord is the billing ledger entry for a credit facility. NextDue and
// TotalPastDue are mutually exclusive buckets: NextDue covers the current
// not-yet-expired period while TotalPastDue carries everything rolled over
// unpaid from prior periods.
type CreditRecord struct {
	// UnbilledPrincipal is drawn principal not yet amortised into any
	// period's due amount.
	UnbilledPrincipal *big.Int
	// NextDueDate is the timestamp the current bill falls due, always a
	// period boundary except for the final bill which is capped at maturity.
	NextDueDate int64
	// NextDue is the total owed for the current period, yield plus principal.
	NextDue *big.Int
	// YieldDue is the yield portion of NextDue; the principal portion is
	// implicit (NextDue - YieldDue).
	YieldDue *big.Int
	// TotalPastDue sums unpaid yield, principal and late fees from prior
	// periods.
	TotalPastDue *big.Int
	// MissedPeriods counts consecutive periods with unpaid past due.
	MissedPeriods uint32
	// RemainingPeriods counts billing periods left until maturity.
	RemainingPeriods uint32
	// State is the coarse lifecycle state.
	State CreditState
}

// Clone returns a deep copy of the record.
func (r *CreditRecord) Clone() *CreditRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.UnbilledPrincipal = cloneBigInt(r.UnbilledPrincipal)
	clone.NextDue = cloneBigInt(r.NextDue)
	clone.YieldDue = cloneBigInt(r.YieldDue)
	clone.TotalPastDue = cloneBigInt(r.TotalPastDue)
	return &clone
}

// EnsureDefaults populates nil amount fields.
func (r *CreditRecord) EnsureDefaults() {
	if r == nil {
		return
	}
	if r.UnbilledPrincipal == nil {
		r.UnbilledPrincipal = big.NewInt(0)
	}
	if r.NextDue == nil {
		r.NextDue = big.NewInt(0)
	}
	if r.YieldDue == nil {
		r.YieldDue = big.NewInt(0)
	}
	if r.TotalPastDue == nil {
		r.TotalPastDue = big.NewInt(0)
	}
}

// Equal reports whether two records carry identical billing state. Used by
// the engine to decide whether a refresh actually mutated anything.
func (r *CreditRecord) Equal(other *CreditRecord) bool {
	if r == nil || other == nil {
		return r == other
	}
	return bigEqual(r.UnbilledPrincipal, other.UnbilledPrincipal) &&
		r.NextDueDate == other.NextDueDate &&
		bigEqual(r.NextDue, other.NextDue) &&
		bigEqual(r.YieldDue, other.YieldDue) &&
		bigEqual(r.TotalPastDue, other.TotalPastDue) &&
		r.MissedPeriods == other.MissedPeriods &&
		r.RemainingPeriods == other.RemainingPeriods &&
		r.State == other.State
}

// DueDetail decomposes the past-due bucket and records the yield components of
// the current bill so callers can introspect which of the accrued or committed
// figures was billed.
type DueDetail struct {
	// LateFeeUpdatedDate is the exclusive end of the window late fees have
	// been charged through, midnight UTC. Zero while the bill is current.
	LateFeeUpdatedDate int64
	// LateFee is the accrued, unpaid late fee.
	LateFee *big.Int
	// YieldPastDue is unpaid yield rolled over from prior periods.
	YieldPastDue *big.Int
	// PrincipalPastDue is unpaid principal rolled over from prior periods.
	PrincipalPastDue *big.Int
	// Accrued is the full-cycle yield computed from actual drawn principal.
	Accrued *big.Int
	// Committed is the full-cycle yield computed from the committed amount.
	Committed *big.Int
	// Paid tracks yield already collected within the current billing cycle.
	Paid *big.Int
}

// Clone returns a deep copy of the due detail.
func (d *DueDetail) Clone() *DueDetail {
	if d == nil {
		return nil
	}
	clone := *d
	clone.LateFee = cloneBigInt(d.LateFee)
	clone.YieldPastDue = cloneBigInt(d.YieldPastDue)
	clone.PrincipalPastDue = cloneBigInt(d.PrincipalPastDue)
	clone.Accrued = cloneBigInt(d.Accrued)
	clone.Committed = cloneBigInt(d.Committed)
	clone.Paid = cloneBigInt(d.Paid)
	return &clone
}

// EnsureDefaults populates nil amount fields.
func (d *DueDetail) EnsureDefaults() {
	if d == nil {
		return
	}
	if d.LateFee == nil {
		d.LateFee = big.NewInt(0)
	}
	if d.YieldPastDue == nil {
		d.YieldPastDue = big.NewInt(0)
	}
	if d.PrincipalPastDue == nil {
		d.PrincipalPastDue = big.NewInt(0)
	}
	if d.Accrued == nil {
		d.Accrued = big.NewInt(0)
	}
	if d.Committed == nil {
		d.Committed = big.NewInt(0)
	}
	if d.Paid == nil {
		d.Paid = big.NewInt(0)
	}
}

// Equal reports whether two due details carry identical state.
func (d *DueDetail) Equal(other *DueDetail) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.LateFeeUpdatedDate == other.LateFeeUpdatedDate &&
		bigEqual(d.LateFee, other.LateFee) &&
		bigEqual(d.YieldPastDue, other.YieldPastDue) &&
		bigEqual(d.PrincipalPastDue, other.PrincipalPastDue) &&
		bigEqual(d.Accrued, other.Accrued) &&
		bigEqual(d.Committed, other.Committed) &&
		bigEqual(d.Paid, other.Paid)
}

// PaymentBreakdown reports how an applied payment was distributed across the
// obligation buckets, in waterfall order.
type PaymentBreakdown struct {
	YieldPastDuePaid      *big.Int
	LateFeePaid           *big.Int
	PrincipalPastDuePaid  *big.Int
	YieldDuePaid          *big.Int
	PrincipalDuePaid      *big.Int
	UnbilledPrincipalPaid *big.Int
}

// Total sums every bucket of the breakdown.
func (b PaymentBreakdown) Total() *big.Int {
	total := big.NewInt(0)
	for _, part := range []*big.Int{
		b.YieldPastDuePaid, b.LateFeePaid, b.PrincipalPastDuePaid,
		b.YieldDuePaid, b.PrincipalDuePaid, b.UnbilledPrincipalPaid,
	} {
		if part != nil {
			total.Add(total, part)
		}
	}
	return total
}

func emptyBreakdown() PaymentBreakdown {
	return PaymentBreakdown{
		YieldPastDuePaid:      big.NewInt(0),
		LateFeePaid:           big.NewInt(0),
		PrincipalPastDuePaid:  big.NewInt(0),
		YieldDuePaid:          big.NewInt(0),
		PrincipalDuePaid:      big.NewInt(0),
		UnbilledPrincipalPaid: big.NewInt(0),
	}
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func bigEqual(a, b *big.Int) bool {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	return a.Cmp(b) == 0
}
