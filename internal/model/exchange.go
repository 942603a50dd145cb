package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the side of a market order.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Valid reports whether s is buy or sell.
func (s TradeSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus is the normalized status of an exchange order.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusClosed   OrderStatus = "closed"
	OrderStatusCanceled OrderStatus = "canceled"
	// OrderStatusExpired is assigned by the dealer when polling gives up.
	OrderStatusExpired OrderStatus = "expired"
)

// Terminal reports whether no further status changes are expected.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusClosed || s == OrderStatusCanceled
}

// FeeSchedule holds the dealer's conversion fees as fractions (0.001 = 10bp).
type FeeSchedule struct {
	BaseFee         decimal.Decimal `json:"base_fee" yaml:"base_fee"`
	ImmediateSpread decimal.Decimal `json:"immediate_spread" yaml:"immediate_spread"`
	DelayedSpread   decimal.Decimal `json:"delayed_spread" yaml:"delayed_spread"`
}

// ExchangeQuote is the cycle's price snapshot; read-only within a cycle.
type ExchangeQuote struct {
	LastBidInUsdPerBtc decimal.Decimal `json:"last_bid_in_usd_per_btc"`
	LastAskInUsdPerBtc decimal.Decimal `json:"last_ask_in_usd_per_btc"`
	FeeSchedule        FeeSchedule     `json:"fee_schedule"`
}

// Ticker is the normalized exchange ticker.
type Ticker struct {
	InstrumentID string          `json:"instrument_id"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Last         decimal.Decimal `json:"last"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Mid returns the bid/ask midpoint, falling back to Last.
func (t Ticker) Mid() decimal.Decimal {
	if t.Bid.IsPositive() && t.Ask.IsPositive() {
		return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
	}
	return t.Last
}

// Price is the reference price used to value collateral and size transfers.
func (t Ticker) Price() decimal.Decimal {
	if t.Last.IsPositive() {
		return t.Last
	}
	return t.Mid()
}

// Quote builds an ExchangeQuote from the ticker and a fee schedule.
func (t Ticker) Quote(fees FeeSchedule) ExchangeQuote {
	return ExchangeQuote{
		LastBidInUsdPerBtc: t.Bid,
		LastAskInUsdPerBtc: t.Ask,
		FeeSchedule:        fees,
	}
}

// Balance is the exchange account's BTC margin and total equity.
type Balance struct {
	TotalAccountValueInUsd decimal.Decimal `json:"total_account_value_in_usd"`
	BtcEquity              decimal.Decimal `json:"btc_equity"`
	BtcFree                decimal.Decimal `json:"btc_free"`
	BtcUsed                decimal.Decimal `json:"btc_used"`
}

// PositionSnapshot is the raw derivative position. Contracts is signed:
// negative for a short.
type PositionSnapshot struct {
	InstrumentID  string          `json:"instrument_id"`
	Contracts     decimal.Decimal `json:"contracts"`
	NotionalInUsd decimal.Decimal `json:"notional_in_usd"`
}

// Order is the normalized view of an exchange order.
type Order struct {
	ID              string          `json:"id"`
	InstrumentID    string          `json:"instrument_id"`
	Side            TradeSide       `json:"side"`
	Contracts       decimal.Decimal `json:"contracts"`
	FilledContracts decimal.Decimal `json:"filled_contracts"`
	AvgPrice        decimal.Decimal `json:"avg_price"`
	Status          OrderStatus     `json:"status"`
}

// DepositAddress is an exchange deposit address on a specific chain.
type DepositAddress struct {
	Chain    string `json:"chain"`
	Currency string `json:"currency"`
	Address  string `json:"address"`
}

// TransferStatus is the settlement state of an exchange deposit or
// withdrawal.
type TransferStatus string

const (
	TransferStatusPending TransferStatus = "pending"
	TransferStatusSettled TransferStatus = "settled"
	TransferStatusFailed  TransferStatus = "failed"
)

// Transfer is one entry from the exchange deposit or withdrawal feed.
type Transfer struct {
	ID           string         `json:"id"`
	Currency     string         `json:"currency"`
	Chain        string         `json:"chain"`
	Address      string         `json:"address"`
	AmountInSats int64          `json:"amount_in_sats"`
	Status       TransferStatus `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
}

// FundingRate is the current funding rate of a perpetual instrument.
type FundingRate struct {
	InstrumentID string          `json:"instrument_id"`
	Rate         decimal.Decimal `json:"rate"`
	FundingTime  time.Time       `json:"funding_time"`
}
