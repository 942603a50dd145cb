// Package instrument handles derivative instrument id parsing and the
// contract sizing rules the dealer hedges with.
package instrument

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// Supported exchanges.
const (
	ExchangeOKX   = "okx"
	ExchangeBybit = "bybit"
)

// okxSwapRegex matches: {BASE}-{QUOTE}-SWAP
// Example: BTC-USD-SWAP
var okxSwapRegex = regexp.MustCompile(`^([A-Z]+)-([A-Z]+)-SWAP$`)

// bybitInverseRegex matches: {BASE}{QUOTE}
// Example: BTCUSD
var bybitInverseRegex = regexp.MustCompile(`^(BTC)(USD)$`)

var (
	ErrUnsupportedExchange   = errors.New("instrument: unsupported exchange")
	ErrUnsupportedInstrument = errors.New("instrument: unsupported instrument")
)

// SupportedInstrument is a parsed, hedgeable instrument.
type SupportedInstrument struct {
	Exchange                string          `json:"exchange"`
	ID                      string          `json:"id"`
	Base                    string          `json:"base"`
	Quote                   string          `json:"quote"`
	ContractValueInUsd      decimal.Decimal `json:"contract_value_in_usd"`
	MinOrderSizeInContracts decimal.Decimal `json:"min_order_size_in_contracts"`
	Inverse                 bool            `json:"inverse"`
}

// Parse validates id for the given exchange. Only the BTC/USD inverse
// perpetual is supported on either venue.
func Parse(exchange, id string) (*SupportedInstrument, error) {
	switch exchange {
	case ExchangeOKX:
		m := okxSwapRegex.FindStringSubmatch(id)
		if m == nil || m[1] != "BTC" || m[2] != "USD" {
			return nil, fmt.Errorf("%w: %s (expected BTC-USD-SWAP)", ErrUnsupportedInstrument, id)
		}
		return &SupportedInstrument{
			Exchange:                exchange,
			ID:                      id,
			Base:                    m[1],
			Quote:                   m[2],
			ContractValueInUsd:      decimal.NewFromInt(100),
			MinOrderSizeInContracts: decimal.NewFromInt(1),
			Inverse:                 true,
		}, nil
	case ExchangeBybit:
		m := bybitInverseRegex.FindStringSubmatch(id)
		if m == nil {
			return nil, fmt.Errorf("%w: %s (expected BTCUSD)", ErrUnsupportedInstrument, id)
		}
		return &SupportedInstrument{
			Exchange:                exchange,
			ID:                      id,
			Base:                    m[1],
			Quote:                   m[2],
			ContractValueInUsd:      decimal.NewFromInt(1),
			MinOrderSizeInContracts: decimal.NewFromInt(1),
			Inverse:                 true,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, exchange)
}

// ContractsForUsd converts a USD notional into a whole number of contracts,
// rounding to the nearest contract.
func (i *SupportedInstrument) ContractsForUsd(usd decimal.Decimal) decimal.Decimal {
	if !i.ContractValueInUsd.IsPositive() {
		return decimal.Zero
	}
	return usd.Abs().Div(i.ContractValueInUsd).Round(0)
}

// UsdForContracts is the USD notional of n contracts.
func (i *SupportedInstrument) UsdForContracts(n decimal.Decimal) decimal.Decimal {
	return n.Abs().Mul(i.ContractValueInUsd)
}

// ShortExposureUsd is the hedge exposure of a signed position of n
// contracts: positive for a short, negative for a long.
func (i *SupportedInstrument) ShortExposureUsd(n decimal.Decimal) decimal.Decimal {
	return n.Neg().Mul(i.ContractValueInUsd)
}

// MeetsMinimum reports whether n contracts can be ordered.
func (i *SupportedInstrument) MeetsMinimum(n decimal.Decimal) bool {
	return n.IsPositive() && n.GreaterThanOrEqual(i.MinOrderSizeInContracts)
}
