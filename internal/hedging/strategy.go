// Package hedging holds the pure hedging decisions: whether the liability is
// large enough to hedge, which market order brings exposure back into the
// ratio band, and how much collateral must move to bring leverage back into
// the leverage band.
//
// Nothing here performs I/O or keeps state between calls.
package hedging

import (
	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/instrument"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

// Strategy evaluates hedging decisions against a fixed Config.
type Strategy struct {
	cfg Config
}

// New creates a strategy. cfg should already be validated.
func New(cfg Config) *Strategy {
	return &Strategy{cfg: cfg}
}

// Config returns the bounds the strategy was built with.
func (s *Strategy) Config() Config { return s.cfg }

// HasMinimalLiability reports whether liability is large enough to hedge.
func (s *Strategy) HasMinimalLiability(liabilityInUsd decimal.Decimal) bool {
	return liabilityInUsd.IsPositive() && liabilityInUsd.GreaterThanOrEqual(s.cfg.MinimumLiabilityUsd)
}

// OrderRecommendation is a market order that moves exposure toward the
// ratio band.
type OrderRecommendation struct {
	Side                model.TradeSide `json:"side"`
	Contracts           decimal.Decimal `json:"contracts"`
	TargetExposureInUsd decimal.Decimal `json:"target_exposure_in_usd"`
}

// ExposureRatio is exposure / liability, zero when liability is not positive.
// A net long has negative exposure and so a negative ratio.
func ExposureRatio(liabilityInUsd, exposureInUsd decimal.Decimal) decimal.Decimal {
	return model.Ratio(exposureInUsd, liabilityInUsd)
}

// OrderRecommendation returns the order needed to bring exposure back into
// the ratio band, or false when exposure is already in band or the required
// size rounds to zero contracts.
//
// Under-hedged (ratio below the low bound) sells up to the low safebound;
// a net long is sold through to that short target. Over-hedged (ratio
// above the high bound) buys back down to the high safebound. Without a
// positive liability there is nothing to hedge.
func (s *Strategy) OrderRecommendation(
	liabilityInUsd decimal.Decimal,
	position model.Position,
	inst *instrument.SupportedInstrument,
) (OrderRecommendation, bool) {
	exposure := position.ExposureInUsd
	if !liabilityInUsd.IsPositive() {
		return OrderRecommendation{}, false
	}

	ratio := ExposureRatio(liabilityInUsd, exposure)
	switch {
	case ratio.LessThan(s.cfg.LowBoundRatioShorting):
		target := liabilityInUsd.Mul(s.cfg.LowSafeboundRatioShorting)
		return recommend(model.SideSell, target.Sub(exposure), target, inst)
	case ratio.GreaterThan(s.cfg.HighBoundRatioShorting):
		target := liabilityInUsd.Mul(s.cfg.HighSafeboundRatioShorting)
		return recommend(model.SideBuy, exposure.Sub(target), target, inst)
	}
	return OrderRecommendation{}, false
}

func recommend(side model.TradeSide, diffUsd, target decimal.Decimal, inst *instrument.SupportedInstrument) (OrderRecommendation, bool) {
	if !diffUsd.IsPositive() {
		return OrderRecommendation{}, false
	}
	contracts := inst.ContractsForUsd(diffUsd)
	if !contracts.IsPositive() {
		return OrderRecommendation{}, false
	}
	return OrderRecommendation{Side: side, Contracts: contracts, TargetExposureInUsd: target}, true
}

// LeverageAction is the collateral movement a verdict calls for.
type LeverageAction string

const (
	LeverageInBounds     LeverageAction = "NONE"
	DepositOnExchange    LeverageAction = "DEPOSIT_ON_EXCHANGE"
	WithdrawFromExchange LeverageAction = "WITHDRAW_TO_WALLET"
)

// LeverageVerdict describes whether collateral must move and by how much.
type LeverageVerdict struct {
	Action                LeverageAction  `json:"action"`
	LeverageRatio         decimal.Decimal `json:"leverage_ratio"`
	NewLeverageRatio      decimal.Decimal `json:"new_leverage_ratio"`
	TargetCollateralInUsd decimal.Decimal `json:"target_collateral_in_usd"`
	AmountInUsd           decimal.Decimal `json:"amount_in_usd"`
	AmountInSats          int64           `json:"amount_in_sats"`
}

// LeverageRatio is liability / collateral, zero when collateral is not
// positive.
func LeverageRatio(liabilityInUsd, collateralInUsd decimal.Decimal) decimal.Decimal {
	return model.Ratio(liabilityInUsd, collateralInUsd)
}

// LeverageVerdict decides whether collateral must move.
//
// Leverage above the high bound deposits enough to reach the high safebound.
// Leverage below the low bound withdraws down to the low safebound, but
// never below max(liability, exposure) / low safebound so an open short keeps
// its margin. Liability without any collateral always deposits. Transfers
// that round below MinimumTransferSats are reported as in bounds.
func (s *Strategy) LeverageVerdict(
	liabilityInUsd, collateralInUsd, exposureInUsd, priceInUsdPerBtc decimal.Decimal,
) LeverageVerdict {
	ratio := LeverageRatio(liabilityInUsd, collateralInUsd)
	v := LeverageVerdict{
		Action:           LeverageInBounds,
		LeverageRatio:    ratio,
		NewLeverageRatio: ratio,
	}
	if !priceInUsdPerBtc.IsPositive() {
		return v
	}

	undercollateralized := liabilityInUsd.IsPositive() && !collateralInUsd.IsPositive()
	switch {
	case undercollateralized || ratio.GreaterThan(s.cfg.HighBoundLeverage):
		target := liabilityInUsd.DivRound(s.cfg.HighSafeboundLeverage, 16)
		v.TargetCollateralInUsd = target
		v.AmountInUsd = target.Sub(collateralInUsd)
		v.Action = DepositOnExchange
	case ratio.LessThan(s.cfg.LowBoundLeverage):
		floor := decimal.Max(liabilityInUsd, exposureInUsd.Abs())
		target := floor.DivRound(s.cfg.LowSafeboundLeverage, 16)
		v.TargetCollateralInUsd = target
		v.AmountInUsd = collateralInUsd.Sub(target)
		v.Action = WithdrawFromExchange
	default:
		return v
	}

	v.AmountInSats = model.UsdToSats(v.AmountInUsd, priceInUsdPerBtc)
	if !v.AmountInUsd.IsPositive() || v.AmountInSats <= 0 || v.AmountInSats < s.cfg.MinimumTransferSats {
		return LeverageVerdict{Action: LeverageInBounds, LeverageRatio: ratio, NewLeverageRatio: ratio}
	}
	v.NewLeverageRatio = LeverageRatio(liabilityInUsd, v.TargetCollateralInUsd)
	return v
}

// NeedsTransfer reports whether the verdict calls for a deposit or withdrawal.
func (v LeverageVerdict) NeedsTransfer() bool {
	return v.Action != LeverageInBounds
}
