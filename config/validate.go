package config

import "fmt"

const (
	maxRateBps   = 10_000
	maxGraceDays = 90
)

// Validate rejects configurations the billing engine cannot operate under.
func (c *Config) Validate() error {
	if !c.Pool.PayPeriodDuration.Valid() {
		return fmt.Errorf("config: unsupported PayPeriodDuration %d", c.Pool.PayPeriodDuration)
	}
	if c.Pool.LatePaymentGracePeriodDays > maxGraceDays {
		return fmt.Errorf("config: LatePaymentGracePeriodDays %d exceeds %d", c.Pool.LatePaymentGracePeriodDays, maxGraceDays)
	}
	if c.Pool.DefaultGracePeriodDays > maxGraceDays {
		return fmt.Errorf("config: DefaultGracePeriodDays %d exceeds %d", c.Pool.DefaultGracePeriodDays, maxGraceDays)
	}
	if c.Pool.AdvanceRateBps > maxRateBps {
		return fmt.Errorf("config: AdvanceRateBps %d exceeds %d", c.Pool.AdvanceRateBps, maxRateBps)
	}
	if c.Fees.YieldBps > maxRateBps {
		return fmt.Errorf("config: YieldBps %d exceeds %d", c.Fees.YieldBps, maxRateBps)
	}
	if c.Fees.LateFeeBps > maxRateBps {
		return fmt.Errorf("config: LateFeeBps %d exceeds %d", c.Fees.LateFeeBps, maxRateBps)
	}
	if c.Fees.MinPrincipalRateBps > maxRateBps {
		return fmt.Errorf("config: MinPrincipalRateBps %d exceeds %d", c.Fees.MinPrincipalRateBps, maxRateBps)
	}
	if c.Pool.MaxCreditLine != nil && c.Pool.MaxCreditLine.Sign() < 0 {
		return fmt.Errorf("config: MaxCreditLineWei must not be negative")
	}
	return nil
}
