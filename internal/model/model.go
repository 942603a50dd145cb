// Package model defines the core domain types shared across the dealer.
// All monetary values and ratios use shopspring/decimal; satoshi amounts are
// int64.
package model

import "github.com/shopspring/decimal"

// SatsPerBtc is the number of satoshis in one bitcoin.
const SatsPerBtc = 100_000_000

// CentsPerUsd is the number of cents in one dollar.
const CentsPerUsd = 100

var (
	satsPerBtc  = decimal.NewFromInt(SatsPerBtc)
	centsPerUsd = decimal.NewFromInt(CentsPerUsd)
)

// Position is the exchange's current short-perpetual state.
// Leverage == ExposureInUsd / CollateralInUsd whenever collateral > 0.
type Position struct {
	Leverage               decimal.Decimal `json:"leverage"`
	CollateralInUsd        decimal.Decimal `json:"collateral_in_usd"`
	ExposureInUsd          decimal.Decimal `json:"exposure_in_usd"`
	TotalAccountValueInUsd decimal.Decimal `json:"total_account_value_in_usd"`
}

// NewPosition derives Leverage from exposure and collateral.
func NewPosition(collateralInUsd, exposureInUsd, totalAccountValueInUsd decimal.Decimal) Position {
	return Position{
		Leverage:               Ratio(exposureInUsd, collateralInUsd),
		CollateralInUsd:        collateralInUsd,
		ExposureInUsd:          exposureInUsd,
		TotalAccountValueInUsd: totalAccountValueInUsd,
	}
}

// UpdatedPosition is the snapshot pair produced by one Position Loop.
type UpdatedPosition struct {
	OriginalPosition Position `json:"original_position"`
	UpdatedPosition  Position `json:"updated_position"`
}

// UpdatedBalance is produced by one Collateral Loop.
// NewLeverageRatio is computed from the expected post-transfer collateral.
type UpdatedBalance struct {
	OriginalLeverageRatio decimal.Decimal `json:"original_leverage_ratio"`
	NewLeverageRatio      decimal.Decimal `json:"new_leverage_ratio"`
	LiabilityInUsd        decimal.Decimal `json:"liability_in_usd"`
	CollateralInUsd       decimal.Decimal `json:"collateral_in_usd"`
}

// Ratio returns numerator/denominator, or zero for a non-positive denominator.
func Ratio(numerator, denominator decimal.Decimal) decimal.Decimal {
	if !denominator.IsPositive() {
		return decimal.Zero
	}
	return numerator.DivRound(denominator, 16)
}

// BtcToSats converts a BTC amount to satoshis, rounding to the nearest sat.
func BtcToSats(btc decimal.Decimal) int64 {
	return btc.Mul(satsPerBtc).Round(0).IntPart()
}

// SatsToBtc converts satoshis to BTC.
func SatsToBtc(sats int64) decimal.Decimal {
	return decimal.NewFromInt(sats).Div(satsPerBtc)
}

// UsdToCents converts dollars to (fractional) cents.
func UsdToCents(usd decimal.Decimal) decimal.Decimal {
	return usd.Mul(centsPerUsd)
}

// CentsToUsd converts cents to dollars.
func CentsToUsd(cents decimal.Decimal) decimal.Decimal {
	return cents.Div(centsPerUsd)
}

// UsdToSats converts a dollar amount to satoshis at price (USD per BTC),
// rounding to the nearest sat.
func UsdToSats(usd, price decimal.Decimal) int64 {
	if !price.IsPositive() {
		return 0
	}
	return BtcToSats(usd.DivRound(price, 16))
}

// SatsToUsd converts satoshis to dollars at price (USD per BTC).
func SatsToUsd(sats int64, price decimal.Decimal) decimal.Decimal {
	return SatsToBtc(sats).Mul(price)
}
