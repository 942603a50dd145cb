package hedging

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidBands is returned when a bound band is not strictly ordered.
var ErrInvalidBands = errors.New("hedging: bounds must satisfy low < low_safebound <= high_safebound < high")

// ErrInvalidThreshold is returned for negative thresholds or an out-of-range
// settlement tolerance.
var ErrInvalidThreshold = errors.New("hedging: invalid threshold")

// Config holds the hedging bounds. Ratio bands are exposure/liability;
// leverage bands are liability/collateral.
type Config struct {
	LowBoundRatioShorting      decimal.Decimal `yaml:"low_bound_ratio_shorting" json:"low_bound_ratio_shorting"`
	LowSafeboundRatioShorting  decimal.Decimal `yaml:"low_safebound_ratio_shorting" json:"low_safebound_ratio_shorting"`
	HighSafeboundRatioShorting decimal.Decimal `yaml:"high_safebound_ratio_shorting" json:"high_safebound_ratio_shorting"`
	HighBoundRatioShorting     decimal.Decimal `yaml:"high_bound_ratio_shorting" json:"high_bound_ratio_shorting"`

	LowBoundLeverage      decimal.Decimal `yaml:"low_bound_leverage" json:"low_bound_leverage"`
	LowSafeboundLeverage  decimal.Decimal `yaml:"low_safebound_leverage" json:"low_safebound_leverage"`
	HighSafeboundLeverage decimal.Decimal `yaml:"high_safebound_leverage" json:"high_safebound_leverage"`
	HighBoundLeverage     decimal.Decimal `yaml:"high_bound_leverage" json:"high_bound_leverage"`

	// MinimumLiabilityUsd is the floor below which the Position Loop is
	// skipped.
	MinimumLiabilityUsd decimal.Decimal `yaml:"minimum_liability_usd" json:"minimum_liability_usd"`

	// MinimumTransferSats is the smallest deposit or withdrawal worth an
	// on-chain fee.
	MinimumTransferSats int64 `yaml:"minimum_transfer_sats" json:"minimum_transfer_sats"`

	// SettlementToleranceRatio is the relative amount difference accepted when
	// matching a pending transfer against the exchange feed.
	SettlementToleranceRatio decimal.Decimal `yaml:"settlement_tolerance_ratio" json:"settlement_tolerance_ratio"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LowBoundRatioShorting:      decimal.RequireFromString("0.95"),
		LowSafeboundRatioShorting:  decimal.RequireFromString("0.98"),
		HighSafeboundRatioShorting: decimal.RequireFromString("1"),
		HighBoundRatioShorting:     decimal.RequireFromString("1.03"),

		LowBoundLeverage:      decimal.RequireFromString("1.2"),
		LowSafeboundLeverage:  decimal.RequireFromString("1.8"),
		HighSafeboundLeverage: decimal.RequireFromString("2.25"),
		HighBoundLeverage:     decimal.RequireFromString("3"),

		MinimumLiabilityUsd:      decimal.RequireFromString("10"),
		MinimumTransferSats:      10_000,
		SettlementToleranceRatio: decimal.RequireFromString("0.01"),
	}
}

// Validate checks band ordering and thresholds.
func (c Config) Validate() error {
	if !ordered(c.LowBoundRatioShorting, c.LowSafeboundRatioShorting, c.HighSafeboundRatioShorting, c.HighBoundRatioShorting) {
		return ErrInvalidBands
	}
	if !ordered(c.LowBoundLeverage, c.LowSafeboundLeverage, c.HighSafeboundLeverage, c.HighBoundLeverage) {
		return ErrInvalidBands
	}
	if c.MinimumLiabilityUsd.IsNegative() || c.MinimumTransferSats < 0 {
		return ErrInvalidThreshold
	}
	if c.SettlementToleranceRatio.IsNegative() || c.SettlementToleranceRatio.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidThreshold
	}
	return nil
}

func ordered(low, lowSafe, highSafe, high decimal.Decimal) bool {
	return low.IsPositive() &&
		low.LessThan(lowSafe) &&
		lowSafe.LessThanOrEqual(highSafe) &&
		highSafe.LessThan(high)
}
