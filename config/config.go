package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"creditline/native/calendar"
	"creditline/native/credit"
)

// Config is the top-level creditd configuration: the service surface plus the
// pool-level billing parameters consumed by the credit engine.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Env           string `toml:"Env"`

	Pool credit.PoolSettings `toml:"pool"`
	Fees credit.FeeStructure `toml:"fees"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./credit-data"
	}
	c.Pool.EnsureDefaults()
}

// PoolSettings implements credit.SettingsProvider.
func (c *Config) PoolSettings() credit.PoolSettings { return c.Pool.Clone() }

// FeeStructure implements credit.SettingsProvider.
func (c *Config) FeeStructure() credit.FeeStructure { return c.Fees }

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress: ":8545",
		DataDir:       "./credit-data",
		Env:           "local",
		Pool: credit.PoolSettings{
			MaxCreditLine:              big.NewInt(0),
			LatePaymentGracePeriodDays: 5,
			DefaultGracePeriodDays:     10,
			PayPeriodDuration:          calendar.Monthly,
		},
		Fees: credit.FeeStructure{
			YieldBps:   1200,
			LateFeeBps: 2400,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
