// Package config loads the dealer configuration: a YAML file, then a .env
// file if present, then DEALER_* environment variables. Secrets are only
// read from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/GaloyMoney/dealer-sub001/internal/dealer"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/hedging"
	"github.com/GaloyMoney/dealer-sub001/internal/instrument"
	"github.com/GaloyMoney/dealer-sub001/internal/ledger"
	"github.com/GaloyMoney/dealer-sub001/internal/limits"
	"github.com/GaloyMoney/dealer-sub001/internal/logging"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/scheduler"
	"github.com/GaloyMoney/dealer-sub001/internal/wallet"
)

// EnvPrefix prefixes every environment override, e.g. DEALER_EXCHANGE_API_KEY.
const EnvPrefix = "DEALER"

var (
	ErrInvalidLimits    = errors.New("config: limits must not be negative")
	ErrInvalidInterval  = errors.New("config: scheduler interval and lock ttl must be positive")
	ErrInvalidPort      = errors.New("config: http port out of range")
	ErrMissingExchange  = errors.New("config: exchange name and instrument id are required")
	ErrMissingWalletURL = errors.New("config: wallet token set without wallet url")
	ErrLockTTLTooShort  = errors.New("config: scheduler lock ttl shorter than the worst-case cycle")
)

// Config is the whole process configuration.
type Config struct {
	Exchange  exchange.Settings `yaml:"exchange"`
	Wallet    wallet.Settings   `yaml:"wallet"`
	Hedging   hedging.Config    `yaml:"hedging"`
	Order     Order             `yaml:"order"`
	Fees      model.FeeSchedule `yaml:"fees"`
	Limits    Limits            `yaml:"limits"`
	Ledger    ledger.Settings   `yaml:"ledger"`
	Scheduler Scheduler         `yaml:"scheduler"`
	Redis     Redis             `yaml:"redis"`
	Audit     Audit             `yaml:"audit"`
	HTTP      HTTP              `yaml:"http"`
	Log       logging.Settings  `yaml:"log"`
}

// Order controls market order polling.
type Order struct {
	PollInterval      time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	MaxPollIterations int           `yaml:"max_poll_iterations" envconfig:"MAX_POLL_ITERATIONS"`
}

// Limits caps a single cycle. Zero disables a cap.
type Limits struct {
	MaxOrderContracts decimal.Decimal `yaml:"max_order_contracts" envconfig:"MAX_ORDER_CONTRACTS"`
	MaxTransferSats   int64           `yaml:"max_transfer_sats" envconfig:"MAX_TRANSFER_SATS"`
}

type Scheduler struct {
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
	LockKey  string        `yaml:"lock_key" envconfig:"LOCK_KEY"`
	LockTTL  time.Duration `yaml:"lock_ttl" envconfig:"LOCK_TTL"`
	// ReconcileLookback widens exchange feed queries before the oldest
	// pending transfer.
	ReconcileLookback time.Duration `yaml:"reconcile_lookback" envconfig:"RECONCILE_LOOKBACK"`
}

// Redis enables the distributed cycle lock when URL is set.
type Redis struct {
	URL string `yaml:"url" envconfig:"URL"`
}

// Audit enables the Postgres audit store when DatabaseURL is set.
type Audit struct {
	DatabaseURL string `yaml:"database_url" envconfig:"DATABASE_URL"`
}

type HTTP struct {
	Port int `yaml:"port" envconfig:"PORT"`
}

// Default returns a configuration that runs against OKX with a local
// SQLite ledger.
func Default() *Config {
	dc := dealer.DefaultConfig()
	return &Config{
		Exchange: exchange.Settings{
			Name:         instrument.ExchangeOKX,
			InstrumentID: "BTC-USD-SWAP",
			Timeout:      10 * time.Second,
			RetryCount:   2,
			WithdrawFee:  dc.WithdrawFeeInBtc,
		},
		Wallet:  wallet.Settings{Timeout: 10 * time.Second},
		Hedging: hedging.DefaultConfig(),
		Order: Order{
			PollInterval:      dc.PollInterval,
			MaxPollIterations: dc.MaxPollIterations,
		},
		Fees:   dc.FeeSchedule,
		Ledger: ledger.Settings{Backend: ledger.BackendSQLite, Path: "dealer.db"},
		Scheduler: Scheduler{
			Interval:          time.Minute,
			LockKey:           "dealer:cycle",
			LockTTL:           20 * time.Minute,
			ReconcileLookback: dc.ReconcileLookback,
		},
		HTTP: HTTP{Port: 8080},
		Log:  logging.DefaultSettings(),
	}
}

// Load reads path (skipped when empty) over the defaults, loads envFiles
// (".env" when none are given; missing files are ignored) and applies
// DEALER_* overrides. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Exchange.Name == "" || c.Exchange.InstrumentID == "" {
		return ErrMissingExchange
	}
	if _, err := instrument.Parse(c.Exchange.Name, c.Exchange.InstrumentID); err != nil {
		return fmt.Errorf("config: exchange: %w", err)
	}
	if c.Wallet.Token != "" && c.Wallet.URL == "" {
		return ErrMissingWalletURL
	}
	if err := c.Hedging.Validate(); err != nil {
		return fmt.Errorf("config: hedging: %w", err)
	}
	if err := c.DealerConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Limits.MaxOrderContracts.IsNegative() || c.Limits.MaxTransferSats < 0 {
		return ErrInvalidLimits
	}
	switch c.Ledger.Backend {
	case "", ledger.BackendSQLite, ledger.BackendBadger:
	default:
		return fmt.Errorf("config: %w: %q", ledger.ErrUnknownBackend, c.Ledger.Backend)
	}
	if c.Scheduler.Interval <= 0 || c.Scheduler.LockTTL <= 0 {
		return ErrInvalidInterval
	}
	if budget := c.CycleBudget(); c.Scheduler.LockTTL <= budget {
		return fmt.Errorf("%w: %s <= %s", ErrLockTTLTooShort, c.Scheduler.LockTTL, budget)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return ErrInvalidPort
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Calls a single cycle makes outside the order poll.
const (
	exchangeCallsPerCycle = 13
	walletCallsPerCycle   = 3
	retryMaxWait          = 5 * time.Second
)

// CycleBudget is the longest a cycle can take when every call runs to its
// timeout and every retry fires. The cycle lock must outlive it.
func (c *Config) CycleBudget() time.Duration {
	exchangeCall := orDefault(c.Exchange.Timeout, 10*time.Second)*time.Duration(c.Exchange.RetryCount+1) +
		retryMaxWait*time.Duration(c.Exchange.RetryCount)
	polls := c.Order.MaxPollIterations
	return exchangeCall*time.Duration(exchangeCallsPerCycle+polls) +
		orDefault(c.Wallet.Timeout, 15*time.Second)*walletCallsPerCycle +
		c.Order.PollInterval*time.Duration(polls)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// DealerConfig assembles the dealer's cycle settings.
func (c *Config) DealerConfig() dealer.Config {
	return dealer.Config{
		PollInterval:      c.Order.PollInterval,
		MaxPollIterations: c.Order.MaxPollIterations,
		ReconcileLookback: c.Scheduler.ReconcileLookback,
		FeeSchedule:       c.Fees,
		WithdrawFeeInBtc:  c.Exchange.WithdrawFee,
		Leverage:          c.Exchange.Leverage,
	}
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Interval: c.Scheduler.Interval,
		LockKey:  c.Scheduler.LockKey,
		LockTTL:  c.Scheduler.LockTTL,
	}
}

func (c *Config) Limiter() *limits.TransferLimiter {
	return limits.NewTransferLimiter(c.Limits.MaxOrderContracts, c.Limits.MaxTransferSats)
}

// SimulatedWallet reports whether no wallet API is configured.
func (c *Config) SimulatedWallet() bool {
	return c.Wallet.URL == ""
}
