package credit

import "errors"

// Validation errors: caller-fixable input problems that never mutate state.
var (
	ErrInvalidAmount           = errors.New("credit engine: amount must be positive")
	ErrZeroBorrower            = errors.New("credit engine: borrower address required")
	ErrInvalidCreditLimit      = errors.New("credit engine: credit limit must be positive")
	ErrInvalidNumPeriods       = errors.New("credit engine: number of periods must be positive")
	ErrCommittedExceedsLimit   = errors.New("credit engine: committed amount exceeds credit limit")
	ErrCreditLimitTooHigh      = errors.New("credit engine: credit limit exceeds pool maximum")
	ErrStartDateInPast         = errors.New("credit engine: designated start date not in the future")
	ErrStartDateRequiresTerm   = errors.New("credit engine: designated start date requires at least two periods")
	ErrCommitmentNeedsStart    = errors.New("credit engine: commitment on a single-period credit requires a start date")
	ErrInvalidPeriodDuration   = errors.New("credit engine: unsupported period duration")
	ErrInvalidExtensionPeriods = errors.New("credit engine: extension periods must be positive")
)

// State errors: the operation is not valid for the credit's current state.
var (
	ErrCreditExists            = errors.New("credit engine: credit already exists for hash")
	ErrCreditNotFound          = errors.New("credit engine: credit not found")
	ErrNotInStateForDrawdown   = errors.New("credit engine: credit not in state for drawdown")
	ErrNotInStateForPayment    = errors.New("credit engine: credit not in payable state")
	ErrNotInStateForUpdate     = errors.New("credit engine: credit not in state for update")
	ErrNotRevolving            = errors.New("credit engine: credit does not permit repeated drawdowns")
	ErrDrawdownBeforeStartDate = errors.New("credit engine: drawdown before designated start date")
	ErrDrawdownInFinalPeriod   = errors.New("credit engine: drawdown not allowed in final period")
	ErrOutstandingBalance      = errors.New("credit engine: outstanding balance prevents closure")
	ErrUnfulfilledCommitment   = errors.New("credit engine: commitment period has not elapsed")
	ErrDefaultTooEarly         = errors.New("credit engine: default grace period has not elapsed")
	ErrDefaultAlreadyTriggered = errors.New("credit engine: default already triggered")
	ErrBillNotDelinquent       = errors.New("credit engine: bill is not delinquent")
)

// Business-rule errors: arithmetic preconditions on otherwise valid calls.
var (
	ErrBorrowBelowFees            = errors.New("credit engine: borrow amount does not cover first-period yield")
	ErrExceedsCreditLimit         = errors.New("credit engine: drawdown exceeds available credit")
	ErrPrincipalPaymentNotAllowed = errors.New("credit engine: principal-only payment not allowed by pool")
	ErrPrincipalPaymentWhileLate  = errors.New("credit engine: principal-only payment rejected on delinquent bill")
	ErrNilState                   = errors.New("credit engine: state not configured")
	ErrSettingsNotConfigured      = errors.New("credit engine: pool settings not configured")
)
