package dealer

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/pricing"
)

var (
	// ErrInvalidPollBudget is returned for a non-positive order poll budget.
	ErrInvalidPollBudget = errors.New("dealer: poll interval and max poll iterations must be positive")

	ErrNegativeSetting = errors.New("dealer: lookback, withdraw fee and leverage must not be negative")
)

// Config holds the cycle knobs that are not hedging bounds. It is built
// from the process configuration.
type Config struct {
	// PollInterval is the delay between FetchOrder calls.
	PollInterval time.Duration `json:"poll_interval"`
	// MaxPollIterations is the hard ceiling on FetchOrder calls per order.
	MaxPollIterations int `json:"max_poll_iterations"`

	// ReconcileLookback widens the exchange feed query before the oldest
	// pending transfer.
	ReconcileLookback time.Duration `json:"reconcile_lookback"`

	FeeSchedule model.FeeSchedule `json:"fee_schedule"`

	// WithdrawFeeInBtc is the network fee paid on exchange withdrawals.
	WithdrawFeeInBtc decimal.Decimal `json:"withdraw_fee_btc"`

	// Leverage is applied to the instrument at startup when positive.
	Leverage decimal.Decimal `json:"leverage"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:      time.Second,
		MaxPollIterations: 10,
		ReconcileLookback: time.Hour,
		FeeSchedule: model.FeeSchedule{
			BaseFee:         decimal.RequireFromString("0.0005"),
			ImmediateSpread: decimal.RequireFromString("0.0005"),
			DelayedSpread:   decimal.RequireFromString("0.001"),
		},
		WithdrawFeeInBtc: decimal.RequireFromString("0.0002"),
	}
}

// Validate checks the poll budget and fee schedule.
func (c Config) Validate() error {
	if c.PollInterval <= 0 || c.MaxPollIterations <= 0 {
		return ErrInvalidPollBudget
	}
	if c.ReconcileLookback < 0 || c.WithdrawFeeInBtc.IsNegative() || c.Leverage.IsNegative() {
		return ErrNegativeSetting
	}
	return pricing.ValidateFeeSchedule(c.FeeSchedule)
}
