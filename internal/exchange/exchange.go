// Package exchange is the boundary between the dealer and a derivatives
// exchange.
//
// A raw Client speaks the exchange's REST dialect and returns undecoded JSON.
// A Configuration knows how to validate inputs before any network call and
// how to turn the raw JSON into model values. The Adapter composes the two:
// validate, call, process. Every Adapter operation returns a result.Result.
package exchange

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/instrument"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

// Currency is the only settlement currency the dealer moves.
const Currency = "BTC"

// PositionMode is the exchange's position bookkeeping mode.
type PositionMode string

const (
	PositionModeOneWay PositionMode = "net_mode"
	PositionModeHedge  PositionMode = "long_short_mode"
)

// OrderArgs describes a market order.
type OrderArgs struct {
	InstrumentID  string          `json:"instrument_id"`
	Side          model.TradeSide `json:"side"`
	Contracts     decimal.Decimal `json:"contracts"`
	ClientOrderID string          `json:"client_order_id"`
}

// FetchOrderArgs identifies an order.
type FetchOrderArgs struct {
	ID           string `json:"id"`
	InstrumentID string `json:"instrument_id"`
}

// WithdrawArgs describes an on-chain withdrawal from the exchange.
type WithdrawArgs struct {
	Currency       string          `json:"currency"`
	QuantityInSats int64           `json:"quantity_in_sats"`
	Address        string          `json:"address"`
	FeeInBtc       decimal.Decimal `json:"fee_in_btc"`
	ClientID       string          `json:"client_id"`
}

// DepositAddressArgs selects the deposit address to fetch.
type DepositAddressArgs struct {
	Currency string `json:"currency"`
}

// TransfersArgs selects a window of the deposit or withdrawal feed.
type TransfersArgs struct {
	Currency string    `json:"currency"`
	Since    time.Time `json:"since"`
	Limit    int       `json:"limit"`
}

// LeverageArgs configures instrument leverage.
type LeverageArgs struct {
	InstrumentID string          `json:"instrument_id"`
	Leverage     decimal.Decimal `json:"leverage"`
}

// PositionModeArgs configures the account position mode.
type PositionModeArgs struct {
	InstrumentID string       `json:"instrument_id"`
	Mode         PositionMode `json:"mode"`
}

// WithdrawResult is the exchange's acknowledgement of a withdrawal request.
type WithdrawResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Client is the raw exchange API. Implementations sign and send requests and
// return the response body untouched.
type Client interface {
	FetchTicker(ctx context.Context, instrumentID string) (json.RawMessage, error)
	FetchPosition(ctx context.Context, instrumentID string) (json.RawMessage, error)
	FetchBalance(ctx context.Context) (json.RawMessage, error)
	FetchDepositAddress(ctx context.Context, args DepositAddressArgs) (json.RawMessage, error)
	FetchDeposits(ctx context.Context, args TransfersArgs) (json.RawMessage, error)
	FetchWithdrawals(ctx context.Context, args TransfersArgs) (json.RawMessage, error)
	CreateMarketOrder(ctx context.Context, args OrderArgs) (json.RawMessage, error)
	FetchOrder(ctx context.Context, args FetchOrderArgs) (json.RawMessage, error)
	Withdraw(ctx context.Context, args WithdrawArgs) (json.RawMessage, error)
	FetchFundingRate(ctx context.Context, instrumentID string) (json.RawMessage, error)
	SetLeverage(ctx context.Context, args LeverageArgs) (json.RawMessage, error)
	SetPositionMode(ctx context.Context, args PositionModeArgs) (json.RawMessage, error)
}

// Configuration holds the pure, exchange-specific validation and response
// processing for each Client operation. Validate methods run before the
// network call; Process methods reject structurally invalid responses.
type Configuration interface {
	Name() string
	Instrument() *instrument.SupportedInstrument

	ValidateInstrument(instrumentID string) error
	ProcessFetchTicker(raw json.RawMessage) (model.Ticker, error)
	ProcessFetchPosition(raw json.RawMessage) (model.PositionSnapshot, error)
	ProcessFetchBalance(raw json.RawMessage) (model.Balance, error)

	ValidateFetchDepositAddress(args DepositAddressArgs) error
	ProcessFetchDepositAddress(raw json.RawMessage) (model.DepositAddress, error)

	ValidateFetchTransfers(args TransfersArgs) error
	ProcessFetchDeposits(raw json.RawMessage) ([]model.Transfer, error)
	ProcessFetchWithdrawals(raw json.RawMessage) ([]model.Transfer, error)

	ValidateCreateMarketOrder(args OrderArgs) error
	ProcessCreateMarketOrder(raw json.RawMessage) (string, error)

	ValidateFetchOrder(args FetchOrderArgs) error
	ProcessFetchOrder(raw json.RawMessage) (model.Order, error)

	ValidateWithdraw(args WithdrawArgs) error
	ProcessWithdraw(raw json.RawMessage) (WithdrawResult, error)

	ProcessFetchFundingRate(raw json.RawMessage) (model.FundingRate, error)

	ValidateSetLeverage(args LeverageArgs) error
	ProcessSetLeverage(raw json.RawMessage) error

	ValidateSetPositionMode(args PositionModeArgs) error
	ProcessSetPositionMode(raw json.RawMessage) error
}

// Settings configures a venue. Secrets come from the environment.
type Settings struct {
	Name         string          `yaml:"name" json:"name"`
	InstrumentID string          `yaml:"instrument_id" json:"instrument_id"`
	BaseURL      string          `yaml:"base_url" json:"base_url"`
	Sandbox      bool            `yaml:"sandbox" json:"sandbox"`
	Timeout      time.Duration   `yaml:"timeout" json:"timeout"`
	RetryCount   int             `yaml:"retry_count" json:"retry_count"`
	WithdrawFee  decimal.Decimal `yaml:"withdraw_fee_btc" json:"withdraw_fee_btc"`
	Leverage     decimal.Decimal `yaml:"leverage" json:"leverage"`
	APIKey       string          `yaml:"-" json:"-" envconfig:"API_KEY"`
	SecretKey    string          `yaml:"-" json:"-" envconfig:"SECRET_KEY"`
	Passphrase   string          `yaml:"-" json:"-" envconfig:"PASSPHRASE"`
}
