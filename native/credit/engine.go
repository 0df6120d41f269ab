package credit

import (
	"math/big"

	"creditline/core/events"
	"creditline/core/types"
	"creditline/native/calendar"
	nativecommon "creditline/native/common"
)

const moduleName = "credit"

// engineState abstracts the persistence required by the billing engine. Every
// credit is identified by its hash; the config, record and detail for a hash
// are always read and written together so the billing invariants hold across
// the triple. Lookups return nil (without error) when nothing is stored.
type engineState interface {
	GetCreditConfig(hash [32]byte) (*CreditConfig, error)
	PutCreditConfig(hash [32]byte, cfg *CreditConfig) error
	GetCreditRecord(hash [32]byte) (*CreditRecord, error)
	PutCreditRecord(hash [32]byte, record *CreditRecord) error
	GetDueDetail(hash [32]byte) (*DueDetail, error)
	PutDueDetail(hash [32]byte, detail *DueDetail) error
}

type creditEvent struct {
	evt *types.Event
}

func (e creditEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e creditEvent) Event() *types.Event { return e.evt }

// Engine orchestrates the credit lifecycle: approval, drawdown, bill refresh,
// payment allocation, delinquency and default. Every operation is
// all-or-nothing: state is computed on clones and persisted only when every
// guard has passed, so a rejected call leaves the stored triple untouched.
//
// Time never advances inside the engine; callers supply now explicitly, which
// keeps every transition deterministic and replayable.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	settings SettingsProvider
}

// NewEngine constructs a credit engine with a no-op emitter. Callers wire the
// persistence layer via SetState and the pool configuration via SetSettings.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetSettings configures the pool settings provider consulted on each call.
func (e *Engine) SetSettings(provider SettingsProvider) { e.settings = provider }

// SetPauses wires the host protocol's pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(creditEvent{evt: event})
}

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.settings == nil {
		return ErrSettingsNotConfigured
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// loadCredit fetches the stored triple for a hash. A credit exists only while
// its record is in a non-deleted state.
func (e *Engine) loadCredit(hash [32]byte) (*CreditConfig, *CreditRecord, *DueDetail, error) {
	cfg, err := e.state.GetCreditConfig(hash)
	if err != nil {
		return nil, nil, nil, err
	}
	record, err := e.state.GetCreditRecord(hash)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg == nil || record == nil || record.State == StateDeleted {
		return nil, nil, nil, ErrCreditNotFound
	}
	detail, err := e.state.GetDueDetail(hash)
	if err != nil {
		return nil, nil, nil, err
	}
	if detail == nil {
		detail = &DueDetail{}
	}
	cfg = cfg.Clone()
	cfg.EnsureDefaults()
	record = record.Clone()
	record.EnsureDefaults()
	detail = detail.Clone()
	detail.EnsureDefaults()
	return cfg, record, detail, nil
}

func (e *Engine) persistBill(hash [32]byte, cr *CreditRecord, dd *DueDetail) error {
	if err := e.state.PutCreditRecord(hash, cr); err != nil {
		return err
	}
	return e.state.PutDueDetail(hash, dd)
}

// ApprovalParams carries the terms evaluated when approving a credit line.
type ApprovalParams struct {
	CreditLimit         *big.Int
	CommittedAmount     *big.Int
	NumPeriods          uint32
	YieldBps            uint64
	Revolving           bool
	AdvanceRateBps      uint64
	AutoApproved        bool
	DesignatedStartDate int64
}

// Approve validates the requested terms and records a fresh credit for the
// borrower (and receivable, for factoring pools). Re-approval is only allowed
// once any previous credit under the same hash has been closed.
func (e *Engine) Approve(borrower [20]byte, receivableID uint64, params ApprovalParams, now int64) ([32]byte, error) {
	var hash [32]byte
	if err := e.guard(); err != nil {
		return hash, err
	}
	if borrower == ([20]byte{}) {
		return hash, ErrZeroBorrower
	}
	if params.CreditLimit == nil || params.CreditLimit.Sign() <= 0 {
		return hash, ErrInvalidCreditLimit
	}
	if params.NumPeriods == 0 {
		return hash, ErrInvalidNumPeriods
	}
	committed := cloneBigInt(params.CommittedAmount)
	if committed.Cmp(params.CreditLimit) > 0 {
		return hash, ErrCommittedExceedsLimit
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	if settings.MaxCreditLine.Sign() > 0 && params.CreditLimit.Cmp(settings.MaxCreditLine) > 0 {
		return hash, ErrCreditLimitTooHigh
	}
	if !settings.PayPeriodDuration.Valid() {
		return hash, ErrInvalidPeriodDuration
	}
	if params.DesignatedStartDate != 0 {
		if params.DesignatedStartDate <= now {
			return hash, ErrStartDateInPast
		}
		if params.NumPeriods < 2 {
			return hash, ErrStartDateRequiresTerm
		}
	} else if committed.Sign() > 0 && params.NumPeriods < 2 {
		return hash, ErrCommitmentNeedsStart
	}

	hash = Hash(borrower, receivableID)
	existing, err := e.state.GetCreditRecord(hash)
	if err != nil {
		return hash, err
	}
	if existing != nil && existing.State != StateDeleted {
		return hash, ErrCreditExists
	}

	yieldBps := params.YieldBps
	if yieldBps == 0 {
		yieldBps = e.settings.FeeStructure().YieldBps
	}
	advanceRate := params.AdvanceRateBps
	if advanceRate == 0 {
		advanceRate = settings.AdvanceRateBps
	}
	cfg := &CreditConfig{
		CreditLimit:         cloneBigInt(params.CreditLimit),
		CommittedAmount:     committed,
		PeriodDuration:      settings.PayPeriodDuration,
		NumPeriods:          params.NumPeriods,
		YieldBps:            yieldBps,
		Revolving:           params.Revolving,
		AdvanceRateBps:      advanceRate,
		AutoApproval:        params.AutoApproved,
		DesignatedStartDate: params.DesignatedStartDate,
	}
	record := &CreditRecord{State: StateApproved, RemainingPeriods: params.NumPeriods}
	record.EnsureDefaults()
	detail := &DueDetail{}
	detail.EnsureDefaults()

	if err := e.state.PutCreditConfig(hash, cfg); err != nil {
		return hash, err
	}
	if err := e.persistBill(hash, record, detail); err != nil {
		return hash, err
	}
	e.emit(NewApprovedEvent(hash, cfg))
	return hash, nil
}

// Drawdown transfers principal into the borrower's hands: it bills yield (and
// any minimum amortisation slice) for the remainder of the current period and
// parks the rest of the amount as unbilled principal. The first drawdown moves
// the credit from Approved to GoodStanding and opens the first billing cycle.
func (e *Engine) Drawdown(hash [32]byte, amount *big.Int, now int64) (*CreditRecord, *DueDetail, error) {
	if err := e.guard(); err != nil {
		return nil, nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return nil, nil, err
	}
	if record.State != StateApproved && record.State != StateGoodStanding {
		return nil, nil, ErrNotInStateForDrawdown
	}
	if record.State == StateGoodStanding && !cfg.Revolving {
		return nil, nil, ErrNotRevolving
	}
	if cfg.DesignatedStartDate != 0 && now < cfg.DesignatedStartDate {
		return nil, nil, ErrDrawdownBeforeStartDate
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	fees := e.settings.FeeStructure()
	du := cfg.PeriodDuration

	firstDrawdown := record.State == StateApproved
	cr, dd := record, detail
	if record.State == StateGoodStanding {
		cr, dd, err = ComputeDueInfo(cfg, fees, settings, record, detail, now)
		if err != nil {
			return nil, nil, err
		}
		if cr.State != StateGoodStanding {
			return nil, nil, ErrNotInStateForDrawdown
		}
		if cr.RemainingPeriods == 0 || now >= calendar.AddPeriods(du, cr.NextDueDate, cr.RemainingPeriods) {
			return nil, nil, ErrDrawdownInFinalPeriod
		}
	}

	available := cloneBigInt(cfg.CreditLimit)
	if cfg.AdvanceRateBps > 0 {
		available.Mul(available, new(big.Int).SetUint64(cfg.AdvanceRateBps))
		available.Quo(available, basisPoints)
	}
	projected := new(big.Int).Add(outstandingPrincipal(cr, dd), amount)
	if projected.Cmp(available) > 0 {
		return nil, nil, ErrExceedsCreditLimit
	}

	if firstDrawdown {
		cr.State = StateGoodStanding
		cr.NextDueDate = calendar.StartOfNextPeriod(du, now)
		cr.RemainingPeriods--
	}
	days, err := daysUntilDue(cr, now)
	if err != nil {
		return nil, nil, err
	}
	additionalYield := YieldAmount(amount, cfg.YieldBps, days)
	if additionalYield.Cmp(amount) >= 0 {
		return nil, nil, ErrBorrowBelowFees
	}
	additionalCommitted := YieldAmount(cfg.CommittedAmount, cfg.YieldBps, days)

	if firstDrawdown {
		dd.Accrued = additionalYield
		dd.Committed = additionalCommitted
	} else {
		// Repeat drawdowns only add accrual for the newly drawn amount; the
		// committed figure for the cycle is already on the books.
		dd.Accrued = new(big.Int).Add(dd.Accrued, additionalYield)
	}
	principalPortion := new(big.Int).Sub(cr.NextDue, cr.YieldDue)
	principalSlice := PrincipalDueForPartialPeriod(amount, fees.MinPrincipalRateBps, days, du.DaysInPeriod())
	principalPortion.Add(principalPortion, principalSlice)

	yieldDue := BilledYield(dd.Accrued, dd.Committed)
	yieldDue.Sub(yieldDue, dd.Paid)
	if yieldDue.Sign() < 0 {
		yieldDue = big.NewInt(0)
	}
	cr.YieldDue = yieldDue
	cr.NextDue = new(big.Int).Add(yieldDue, principalPortion)
	cr.UnbilledPrincipal.Add(cr.UnbilledPrincipal, new(big.Int).Sub(amount, principalSlice))

	if err := e.persistBill(hash, cr, dd); err != nil {
		return nil, nil, err
	}
	e.emit(NewDrawdownEvent(hash, amount, cr))
	return cr.Clone(), dd.Clone(), nil
}

// RefreshBill brings the stored bill up to date as of now. It is idempotent
// and safe to call speculatively; the refresh event fires only when the
// stored state actually changed.
func (e *Engine) RefreshBill(hash [32]byte, now int64) (*CreditRecord, *DueDetail, error) {
	if err := e.guard(); err != nil {
		return nil, nil, err
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return nil, nil, err
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	cr, dd, err := ComputeDueInfo(cfg, e.settings.FeeStructure(), settings, record, detail, now)
	if err != nil {
		return nil, nil, err
	}
	if cr.Equal(record) && dd.Equal(detail) {
		return cr, dd, nil
	}
	if err := e.persistBill(hash, cr, dd); err != nil {
		return nil, nil, err
	}
	e.emit(NewBillRefreshedEvent(hash, cr))
	return cr.Clone(), dd.Clone(), nil
}

// GetDueInfo projects what a refresh would produce without mutating stored
// state.
func (e *Engine) GetDueInfo(hash [32]byte, now int64) (*CreditRecord, *DueDetail, error) {
	if err := e.guard(); err != nil {
		return nil, nil, err
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return nil, nil, err
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	return ComputeDueInfo(cfg, e.settings.FeeStructure(), settings, record, detail, now)
}

// GetNextBillRefreshDate reports the next time a refresh would change stored
// state for the credit.
func (e *Engine) GetNextBillRefreshDate(hash [32]byte, now int64) (int64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	_, record, _, err := e.loadCredit(hash)
	if err != nil {
		return 0, err
	}
	settings := e.settings.PoolSettings()
	return NextBillRefreshDate(settings, record, now), nil
}

// ApplyPayment refreshes the bill and allocates the requested amount across
// the obligation buckets in waterfall order. The collected amount is capped at
// the total outstanding obligation; a request against a fully-paid bill is a
// silent no-op. Clearing the past-due buckets restores good standing, and a
// fully retired credit at the end of its term is deleted.
func (e *Engine) ApplyPayment(hash [32]byte, payer [20]byte, amount *big.Int, now int64) (*big.Int, PaymentBreakdown, *CreditRecord, *DueDetail, error) {
	breakdown := emptyBreakdown()
	if err := e.guard(); err != nil {
		return nil, breakdown, nil, nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, breakdown, nil, nil, ErrInvalidAmount
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return nil, breakdown, nil, nil, err
	}
	if record.State != StateGoodStanding && record.State != StateDelayed {
		return nil, breakdown, nil, nil, ErrNotInStateForPayment
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	fees := e.settings.FeeStructure()
	cr, dd, err := ComputeDueInfo(cfg, fees, settings, record, detail, now)
	if err != nil {
		return nil, breakdown, nil, nil, err
	}

	breakdown, applied := allocatePayment(cr, dd, amount)
	settleAfterPayment(cr, dd)

	// A borrower paying ahead of schedule rolls straight into the next cycle
	// rather than leaving a stale zero bill on the books.
	if cr.State == StateGoodStanding && cr.NextDue.Sign() == 0 && now >= cr.NextDueDate && cr.RemainingPeriods > 0 {
		cr, dd, err = ComputeDueInfo(cfg, fees, settings, cr, dd, now)
		if err != nil {
			return nil, breakdown, nil, nil, err
		}
	}

	if err := e.persistBill(hash, cr, dd); err != nil {
		return nil, breakdown, nil, nil, err
	}
	if applied.Sign() > 0 {
		e.emit(NewPaymentMadeEvent(hash, payer, applied, breakdown))
	}
	return applied, breakdown, cr.Clone(), dd.Clone(), nil
}

// ApplyPrincipalPayment repays principal only: the principal portion of the
// current bill first, then unbilled principal. It is rejected outright when
// the pool disallows principal-only payments or when the bill is delinquent.
func (e *Engine) ApplyPrincipalPayment(hash [32]byte, payer [20]byte, amount *big.Int, now int64) (*big.Int, *big.Int, *big.Int, *CreditRecord, *DueDetail, error) {
	if err := e.guard(); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, nil, nil, nil, ErrInvalidAmount
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	if !settings.PrincipalOnlyPaymentAllowed {
		return nil, nil, nil, nil, nil, ErrPrincipalPaymentNotAllowed
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if record.State != StateGoodStanding && record.State != StateDelayed {
		return nil, nil, nil, nil, nil, ErrNotInStateForPayment
	}
	fees := e.settings.FeeStructure()
	cr, dd, err := ComputeDueInfo(cfg, fees, settings, record, detail, now)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if cr.State == StateDelayed {
		return nil, nil, nil, nil, nil, ErrPrincipalPaymentWhileLate
	}

	principalDuePaid, unbilledPaid := allocatePrincipalPayment(cr, amount)
	applied := new(big.Int).Add(principalDuePaid, unbilledPaid)
	settleAfterPayment(cr, dd)

	if err := e.persistBill(hash, cr, dd); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if applied.Sign() > 0 {
		e.emit(NewPrincipalPaymentEvent(hash, payer, applied, principalDuePaid, unbilledPaid))
	}
	return applied, principalDuePaid, unbilledPaid, cr.Clone(), dd.Clone(), nil
}

// Close retires a credit with no outstanding balance. Credits carrying a
// commitment cannot be closed before the commitment period has fully elapsed.
func (e *Engine) Close(hash [32]byte, now int64) error {
	if err := e.guard(); err != nil {
		return err
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return err
	}
	if record.State != StateApproved && record.State != StateGoodStanding {
		return ErrNotInStateForUpdate
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	cr, _, err := ComputeDueInfo(cfg, e.settings.FeeStructure(), settings, record, detail, now)
	if err != nil {
		return err
	}
	if cr.UnbilledPrincipal.Sign() > 0 || cr.NextDue.Sign() > 0 || cr.TotalPastDue.Sign() > 0 {
		return ErrOutstandingBalance
	}
	du := cfg.PeriodDuration
	if cfg.CommittedAmount.Sign() > 0 {
		var commitmentEnd int64
		if cr.State == StateApproved {
			if cfg.DesignatedStartDate == 0 {
				return ErrUnfulfilledCommitment
			}
			commitmentEnd = calendar.AddPeriods(du, cfg.DesignatedStartDate, cfg.NumPeriods)
		} else {
			commitmentEnd = calendar.AddPeriods(du, cr.NextDueDate, cr.RemainingPeriods)
		}
		if now < commitmentEnd {
			return ErrUnfulfilledCommitment
		}
	}

	cfg.CreditLimit = big.NewInt(0)
	closed := &CreditRecord{State: StateDeleted}
	closed.EnsureDefaults()
	cleared := &DueDetail{}
	cleared.EnsureDefaults()
	if err := e.state.PutCreditConfig(hash, cfg); err != nil {
		return err
	}
	if err := e.persistBill(hash, closed, cleared); err != nil {
		return err
	}
	e.emit(NewClosedEvent(hash))
	return nil
}

// TriggerDefault writes off a delinquent credit once the default grace period
// beyond the missed due date has elapsed. It crystallises the principal, yield
// and fee losses, emits the loss event and freezes further late fee accrual.
// A second trigger on the same credit fails.
func (e *Engine) TriggerDefault(hash [32]byte, now int64) (*big.Int, *big.Int, *big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, nil, nil, err
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return nil, nil, nil, err
	}
	if record.State == StateDefaulted {
		return nil, nil, nil, ErrDefaultAlreadyTriggered
	}
	if record.State != StateDelayed {
		return nil, nil, nil, ErrBillNotDelinquent
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	du := cfg.PeriodDuration
	// The grace window anchors on the stored due date, i.e. the bill that went
	// delinquent, not the due date a refresh would advance to.
	threshold := calendar.StartOfNextPeriod(du, record.NextDueDate) +
		int64(settings.DefaultGracePeriodDays)*calendar.DaySeconds
	if now < threshold {
		return nil, nil, nil, ErrDefaultTooEarly
	}

	cr, dd, err := ComputeDueInfo(cfg, e.settings.FeeStructure(), settings, record, detail, now)
	if err != nil {
		return nil, nil, nil, err
	}
	principalLoss := new(big.Int).Add(cr.UnbilledPrincipal, dd.PrincipalPastDue)
	principalLoss.Add(principalLoss, new(big.Int).Sub(cr.NextDue, cr.YieldDue))
	yieldLoss := new(big.Int).Add(dd.YieldPastDue, cr.YieldDue)
	feeLoss := cloneBigInt(dd.LateFee)

	cr.State = StateDefaulted
	if err := e.persistBill(hash, cr, dd); err != nil {
		return nil, nil, nil, err
	}
	e.emit(NewDefaultTriggeredEvent(hash, principalLoss, yieldLoss, feeLoss))
	return principalLoss, yieldLoss, feeLoss, nil
}

// ExtendRemainingPeriods pushes the maturity of an active credit out by the
// given number of periods.
func (e *Engine) ExtendRemainingPeriods(hash [32]byte, periods uint32, now int64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if periods == 0 {
		return ErrInvalidExtensionPeriods
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return err
	}
	if record.State != StateGoodStanding && record.State != StateDelayed {
		return ErrNotInStateForUpdate
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	cr, dd, err := ComputeDueInfo(cfg, e.settings.FeeStructure(), settings, record, detail, now)
	if err != nil {
		return err
	}
	cr.RemainingPeriods += periods
	if err := e.persistBill(hash, cr, dd); err != nil {
		return err
	}
	e.emit(NewPeriodsExtendedEvent(hash, periods, cr.RemainingPeriods))
	return nil
}

// UpdateYield re-prices the current billing cycle under a new yield rate. Only
// the days remaining until the due date move to the new rate; yield already
// accrued this cycle keeps the old one, so the change never re-accrues the
// whole period and never bills days before principal was outstanding.
func (e *Engine) UpdateYield(hash [32]byte, newYieldBps uint64, now int64) error {
	if err := e.guard(); err != nil {
		return err
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return err
	}
	if record.State != StateGoodStanding && record.State != StateDelayed {
		return ErrNotInStateForUpdate
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	cr, dd, err := ComputeDueInfo(cfg, e.settings.FeeStructure(), settings, record, detail, now)
	if err != nil {
		return err
	}

	remaining, err := daysUntilDue(cr, now)
	if err != nil {
		return err
	}
	outstanding := outstandingPrincipal(cr, dd)
	oldBps := cfg.YieldBps

	// Swap only the remaining-days portion of the stored cycle figures. The
	// accrued figure already reflects the days principal was actually
	// outstanding, so credits drawn mid-period keep their shorter window.
	accrued := new(big.Int).Sub(dd.Accrued, YieldAmount(outstanding, oldBps, remaining))
	accrued.Add(accrued, YieldAmount(outstanding, newYieldBps, remaining))
	if accrued.Sign() < 0 {
		accrued = big.NewInt(0)
	}
	committed := new(big.Int).Sub(dd.Committed, YieldAmount(cfg.CommittedAmount, oldBps, remaining))
	committed.Add(committed, YieldAmount(cfg.CommittedAmount, newYieldBps, remaining))
	if committed.Sign() < 0 {
		committed = big.NewInt(0)
	}
	repriceYieldDue(cr, dd, accrued, committed)
	cfg.YieldBps = newYieldBps

	if err := e.state.PutCreditConfig(hash, cfg); err != nil {
		return err
	}
	if err := e.persistBill(hash, cr, dd); err != nil {
		return err
	}
	e.emit(NewYieldUpdatedEvent(hash, oldBps, newYieldBps, cr.YieldDue))
	return nil
}

// UpdateLimitAndCommitment revises the credit limit and committed amount. The
// committed yield for the current cycle is re-priced the same way as a yield
// rate change: only the days remaining until the due date move to the new
// commitment.
func (e *Engine) UpdateLimitAndCommitment(hash [32]byte, newLimit, newCommitted *big.Int, now int64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if newLimit == nil || newLimit.Sign() <= 0 {
		return ErrInvalidCreditLimit
	}
	committed := cloneBigInt(newCommitted)
	if committed.Cmp(newLimit) > 0 {
		return ErrCommittedExceedsLimit
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	if settings.MaxCreditLine.Sign() > 0 && newLimit.Cmp(settings.MaxCreditLine) > 0 {
		return ErrCreditLimitTooHigh
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return err
	}
	if record.State != StateGoodStanding && record.State != StateDelayed {
		return ErrNotInStateForUpdate
	}
	cr, dd, err := ComputeDueInfo(cfg, e.settings.FeeStructure(), settings, record, detail, now)
	if err != nil {
		return err
	}

	remaining, err := daysUntilDue(cr, now)
	if err != nil {
		return err
	}
	newCommittedYield := new(big.Int).Sub(dd.Committed, YieldAmount(cfg.CommittedAmount, cfg.YieldBps, remaining))
	newCommittedYield.Add(newCommittedYield, YieldAmount(committed, cfg.YieldBps, remaining))
	if newCommittedYield.Sign() < 0 {
		newCommittedYield = big.NewInt(0)
	}
	repriceYieldDue(cr, dd, dd.Accrued, newCommittedYield)

	cfg.CreditLimit = cloneBigInt(newLimit)
	cfg.CommittedAmount = committed
	if err := e.state.PutCreditConfig(hash, cfg); err != nil {
		return err
	}
	if err := e.persistBill(hash, cr, dd); err != nil {
		return err
	}
	e.emit(NewLimitUpdatedEvent(hash, cfg.CreditLimit, cfg.CommittedAmount))
	return nil
}

// WaiveLateFee forgives up to the requested amount of accrued late fee and
// returns the amount actually waived. Clearing the last of the past due
// restores good standing.
func (e *Engine) WaiveLateFee(hash [32]byte, amount *big.Int, now int64) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	cfg, record, detail, err := e.loadCredit(hash)
	if err != nil {
		return nil, err
	}
	if record.State != StateGoodStanding && record.State != StateDelayed {
		return nil, ErrNotInStateForUpdate
	}
	settings := e.settings.PoolSettings()
	settings.EnsureDefaults()
	cr, dd, err := ComputeDueInfo(cfg, e.settings.FeeStructure(), settings, record, detail, now)
	if err != nil {
		return nil, err
	}

	waived := new(big.Int).Set(amount)
	if waived.Cmp(dd.LateFee) > 0 {
		waived.Set(dd.LateFee)
	}
	dd.LateFee = new(big.Int).Sub(dd.LateFee, waived)
	cr.TotalPastDue = new(big.Int).Add(dd.LateFee, dd.YieldPastDue)
	cr.TotalPastDue.Add(cr.TotalPastDue, dd.PrincipalPastDue)
	settleAfterPayment(cr, dd)

	if err := e.persistBill(hash, cr, dd); err != nil {
		return nil, err
	}
	e.emit(NewLateFeeWaivedEvent(hash, waived, dd.LateFee))
	return waived, nil
}

// daysUntilDue counts the 30/360 days from now to the current bill's due
// date, clamped at zero once the due date has passed.
func daysUntilDue(cr *CreditRecord, now int64) (int, error) {
	if now >= cr.NextDueDate {
		return 0, nil
	}
	return calendar.DaysDiff(now, cr.NextDueDate)
}

// repriceYieldDue swaps the cycle's accrued/committed figures and rebuilds the
// yield portion of the current bill, honouring yield already paid this cycle.
func repriceYieldDue(cr *CreditRecord, dd *DueDetail, accrued, committed *big.Int) {
	principalPortion := new(big.Int).Sub(cr.NextDue, cr.YieldDue)
	dd.Accrued = cloneBigInt(accrued)
	dd.Committed = cloneBigInt(committed)
	yieldDue := BilledYield(dd.Accrued, dd.Committed)
	yieldDue.Sub(yieldDue, dd.Paid)
	if yieldDue.Sign() < 0 {
		yieldDue = big.NewInt(0)
	}
	cr.YieldDue = yieldDue
	cr.NextDue = new(big.Int).Add(yieldDue, principalPortion)
}
