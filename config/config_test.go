package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"creditline/native/calendar"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creditd.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesPoolAndFees(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"
DataDir = "/var/lib/creditd"

[pool]
MaxCreditLineWei = "1000000000000000000"
LatePaymentGracePeriodDays = 7
DefaultGracePeriodDays = 14
PayPeriodDuration = 1
AdvanceRateBps = 8000
PrincipalOnlyPaymentAllowed = true

[fees]
YieldBps = 1500
MinPrincipalRateBps = 500
LateFeeBps = 2400
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("listen address: got %q", cfg.ListenAddress)
	}
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if cfg.Pool.MaxCreditLine.Cmp(want) != 0 {
		t.Fatalf("max credit line: got %s, want %s", cfg.Pool.MaxCreditLine, want)
	}
	if cfg.Pool.PayPeriodDuration != calendar.Quarterly {
		t.Fatalf("period duration: got %d, want quarterly", cfg.Pool.PayPeriodDuration)
	}
	if !cfg.Pool.PrincipalOnlyPaymentAllowed {
		t.Fatal("principal-only flag lost")
	}
	if cfg.Fees.YieldBps != 1500 || cfg.Fees.MinPrincipalRateBps != 500 || cfg.Fees.LateFeeBps != 2400 {
		t.Fatalf("fees: %+v", cfg.Fees)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[fees]
YieldBps = 1200
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8545" {
		t.Fatalf("default listen address: got %q", cfg.ListenAddress)
	}
	if cfg.DataDir != "./credit-data" {
		t.Fatalf("default data dir: got %q", cfg.DataDir)
	}
	if cfg.Pool.MaxCreditLine == nil {
		t.Fatal("max credit line must be normalised to zero")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creditd.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if cfg.Fees.YieldBps == 0 {
		t.Fatal("default config must carry a yield rate")
	}
	// A second load reads the file it just wrote.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Fees.YieldBps != cfg.Fees.YieldBps {
		t.Fatal("reloaded config differs from the default")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"bad period duration", "[pool]\nPayPeriodDuration = 9\n"},
		{"yield too high", "[fees]\nYieldBps = 20000\n"},
		{"grace too long", "[pool]\nLatePaymentGracePeriodDays = 120\n"},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.contents)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
