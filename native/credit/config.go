package credit

import (
	"math/big"

	"creditline/native/calendar"
)

// FeeStructure carries the pool's pricing parameters. It is immutable per
// epoch; the engine reads a fresh snapshot at the start of each call.
type FeeStructure struct {
	// YieldBps is the default annualised yield rate in basis points applied
	// to drawn principal.
	YieldBps uint64 `toml:"YieldBps"`
	// MinPrincipalRateBps is the fraction of unbilled principal amortised
	// into each period's due, in basis points. Zero produces interest-only
	// bills with a balloon payment at maturity.
	MinPrincipalRateBps uint64 `toml:"MinPrincipalRateBps"`
	// LateFeeBps is the annualised late fee rate charged on outstanding
	// principal while a bill is delinquent.
	LateFeeBps uint64 `toml:"LateFeeBps"`
}

// PoolSettings groups the pool-level limits and calendar conventions consumed
// by the billing engine.
type PoolSettings struct {
	// MaxCreditLine caps the limit an individual credit may be approved for.
	MaxCreditLine *big.Int `toml:"MaxCreditLineWei"`
	// LatePaymentGracePeriodDays is the number of days after a due date
	// during which non-payment does not yet mark the bill delinquent.
	LatePaymentGracePeriodDays uint32 `toml:"LatePaymentGracePeriodDays"`
	// DefaultGracePeriodDays is the number of days after delinquency begins
	// during which default cannot yet be triggered.
	DefaultGracePeriodDays uint32 `toml:"DefaultGracePeriodDays"`
	// PayPeriodDuration selects the billing cycle applied to new approvals.
	PayPeriodDuration calendar.PeriodDuration `toml:"PayPeriodDuration"`
	// AdvanceRateBps is the default borrowable fraction of the credit limit.
	AdvanceRateBps uint64 `toml:"AdvanceRateBps"`
	// ReceivableAutoApproval marks pools that approve receivable-backed
	// credits without manual evaluation.
	ReceivableAutoApproval bool `toml:"ReceivableAutoApproval"`
	// PrincipalOnlyPaymentAllowed gates the principal-only payment entry
	// point.
	PrincipalOnlyPaymentAllowed bool `toml:"PrincipalOnlyPaymentAllowed"`
}

// EnsureDefaults populates nil amount fields so TOML and JSON handling is
// safe.
func (s *PoolSettings) EnsureDefaults() {
	if s == nil {
		return
	}
	if s.MaxCreditLine == nil {
		s.MaxCreditLine = big.NewInt(0)
	}
}

// Clone returns a deep copy of the settings.
func (s PoolSettings) Clone() PoolSettings {
	clone := s
	clone.MaxCreditLine = cloneBigInt(s.MaxCreditLine)
	return clone
}

// SettingsProvider supplies the engine with a read-only snapshot of the pool
// configuration at the time of each call.
type SettingsProvider interface {
	PoolSettings() PoolSettings
	FeeStructure() FeeStructure
}

// StaticSettings is a SettingsProvider backed by fixed values, used by tests
// and by deployments whose configuration is loaded once at startup.
type StaticSettings struct {
	Settings PoolSettings
	Fees     FeeStructure
}

// PoolSettings implements SettingsProvider.
func (s StaticSettings) PoolSettings() PoolSettings { return s.Settings.Clone() }

// FeeStructure implements SettingsProvider.
func (s StaticSettings) FeeStructure() FeeStructure { return s.Fees }
