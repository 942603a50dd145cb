// Package okx implements the exchange boundary for OKX inverse perpetual
// swaps.
package okx

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/instrument"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

const (
	// BitcoinChain is the only deposit/withdrawal network the dealer uses.
	BitcoinChain = "BTC-Bitcoin"

	tradeModeCross = "cross"
	orderTypeMkt   = "market"
	destOnChain    = "4"
)

// Configuration is the OKX request validation and response processing.
type Configuration struct {
	inst *instrument.SupportedInstrument
}

var _ exchange.Configuration = (*Configuration)(nil)

// NewConfiguration creates a configuration for instrumentID.
func NewConfiguration(instrumentID string) (*Configuration, error) {
	inst, err := instrument.Parse(instrument.ExchangeOKX, instrumentID)
	if err != nil {
		return nil, err
	}
	return &Configuration{inst: inst}, nil
}

func (c *Configuration) Name() string { return instrument.ExchangeOKX }

func (c *Configuration) Instrument() *instrument.SupportedInstrument { return c.inst }

// envelope is the common OKX v5 response shape.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// decode checks the envelope and unmarshals data into out. With
// requireRows set an empty data array is rejected.
func decode[T any](op string, raw json.RawMessage, requireRows bool) ([]T, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, exchange.ResponseError(op, "invalid json: %v", err)
	}
	if env.Code != "0" {
		return nil, exchange.ResponseError(op, "code %q: %s", env.Code, env.Msg)
	}
	var rows []T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		if requireRows {
			return nil, exchange.ResponseError(op, "missing data")
		}
		return nil, nil
	}
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, exchange.ResponseError(op, "invalid data: %v", err)
	}
	if requireRows && len(rows) == 0 {
		return nil, exchange.ResponseError(op, "empty data")
	}
	return rows, nil
}

// --- Ticker / position / balance ---

func (c *Configuration) ValidateInstrument(instrumentID string) error {
	return exchange.ValidateInstrumentID("okx.ValidateInstrument", c.inst.ID, instrumentID)
}

type tickerRow struct {
	InstID string           `json:"instId"`
	Last   exchange.Decimal `json:"last"`
	AskPx  exchange.Decimal `json:"askPx"`
	BidPx  exchange.Decimal `json:"bidPx"`
	Ts     exchange.Millis  `json:"ts"`
}

func (c *Configuration) ProcessFetchTicker(raw json.RawMessage) (model.Ticker, error) {
	const op = "okx.ProcessFetchTicker"
	rows, err := decode[tickerRow](op, raw, true)
	if err != nil {
		return model.Ticker{}, err
	}
	r := rows[0]
	if r.InstID != c.inst.ID {
		return model.Ticker{}, exchange.ResponseError(op, "instrument %q", r.InstID)
	}
	if !r.BidPx.IsPositive() || !r.AskPx.IsPositive() || r.BidPx.GreaterThan(r.AskPx.Decimal) {
		return model.Ticker{}, exchange.ResponseError(op, "invalid book bid=%s ask=%s", r.BidPx, r.AskPx)
	}
	return model.Ticker{
		InstrumentID: r.InstID,
		Bid:          r.BidPx.Decimal,
		Ask:          r.AskPx.Decimal,
		Last:         r.Last.Decimal,
		Timestamp:    r.Ts.Time,
	}, nil
}

type positionRow struct {
	InstID  string           `json:"instId"`
	Pos     exchange.Decimal `json:"pos"`
	PosSide string           `json:"posSide"`
}

// ProcessFetchPosition sums the rows for the instrument. No rows means no
// position.
func (c *Configuration) ProcessFetchPosition(raw json.RawMessage) (model.PositionSnapshot, error) {
	const op = "okx.ProcessFetchPosition"
	rows, err := decode[positionRow](op, raw, false)
	if err != nil {
		return model.PositionSnapshot{}, err
	}
	contracts := decimal.Zero
	for _, r := range rows {
		if r.InstID != c.inst.ID {
			continue
		}
		pos := r.Pos.Decimal
		if r.PosSide == "short" && pos.IsPositive() {
			pos = pos.Neg()
		}
		contracts = contracts.Add(pos)
	}
	return model.PositionSnapshot{
		InstrumentID:  c.inst.ID,
		Contracts:     contracts,
		NotionalInUsd: c.inst.UsdForContracts(contracts),
	}, nil
}

type balanceRow struct {
	TotalEq string `json:"totalEq"`
	Details []struct {
		Ccy       string           `json:"ccy"`
		Eq        exchange.Decimal `json:"eq"`
		AvailEq   exchange.Decimal `json:"availEq"`
		FrozenBal exchange.Decimal `json:"frozenBal"`
	} `json:"details"`
}

func (c *Configuration) ProcessFetchBalance(raw json.RawMessage) (model.Balance, error) {
	const op = "okx.ProcessFetchBalance"
	rows, err := decode[balanceRow](op, raw, true)
	if err != nil {
		return model.Balance{}, err
	}
	r := rows[0]
	if strings.TrimSpace(r.TotalEq) == "" {
		return model.Balance{}, exchange.MissingAccountValue(op)
	}
	total, err := decimal.NewFromString(r.TotalEq)
	if err != nil {
		return model.Balance{}, exchange.ResponseError(op, "totalEq %q", r.TotalEq)
	}
	b := model.Balance{TotalAccountValueInUsd: total}
	for _, d := range r.Details {
		if d.Ccy != exchange.Currency {
			continue
		}
		b.BtcEquity = d.Eq.Decimal
		b.BtcFree = d.AvailEq.Decimal
		b.BtcUsed = d.FrozenBal.Decimal
	}
	return b, nil
}

// --- Deposit address ---

func (c *Configuration) ValidateFetchDepositAddress(args exchange.DepositAddressArgs) error {
	return exchange.ValidateCurrency("okx.ValidateFetchDepositAddress", args.Currency)
}

type depositAddressRow struct {
	Chain string `json:"chain"`
	Ccy   string `json:"ccy"`
	Addr  string `json:"addr"`
}

// ProcessFetchDepositAddress returns the first on-chain Bitcoin address.
func (c *Configuration) ProcessFetchDepositAddress(raw json.RawMessage) (model.DepositAddress, error) {
	const op = "okx.ProcessFetchDepositAddress"
	rows, err := decode[depositAddressRow](op, raw, true)
	if err != nil {
		return model.DepositAddress{}, err
	}
	for _, r := range rows {
		if r.Chain == BitcoinChain && r.Ccy == exchange.Currency && r.Addr != "" {
			return model.DepositAddress{Chain: r.Chain, Currency: r.Ccy, Address: r.Addr}, nil
		}
	}
	return model.DepositAddress{}, exchange.ResponseError(op, "no %s address", BitcoinChain)
}

// --- Deposit / withdrawal feeds ---

func (c *Configuration) ValidateFetchTransfers(args exchange.TransfersArgs) error {
	const op = "okx.ValidateFetchTransfers"
	if err := exchange.ValidateCurrency(op, args.Currency); err != nil {
		return err
	}
	if args.Limit < 0 || args.Limit > 100 {
		return exchange.MissingParameters(op, "limit %d out of range", args.Limit)
	}
	return nil
}

type transferRow struct {
	Ccy   string           `json:"ccy"`
	Chain string           `json:"chain"`
	Amt   exchange.Decimal `json:"amt"`
	To    string           `json:"to"`
	State string           `json:"state"`
	Ts    exchange.Millis  `json:"ts"`
	DepID string           `json:"depId"`
	WdID  string           `json:"wdId"`
}

func (c *Configuration) ProcessFetchDeposits(raw json.RawMessage) ([]model.Transfer, error) {
	return processTransfers("okx.ProcessFetchDeposits", raw, depositStatus, func(r transferRow) string { return r.DepID })
}

func (c *Configuration) ProcessFetchWithdrawals(raw json.RawMessage) ([]model.Transfer, error) {
	return processTransfers("okx.ProcessFetchWithdrawals", raw, withdrawalStatus, func(r transferRow) string { return r.WdID })
}

func processTransfers(
	op string,
	raw json.RawMessage,
	status func(string) model.TransferStatus,
	id func(transferRow) string,
) ([]model.Transfer, error) {
	rows, err := decode[transferRow](op, raw, false)
	if err != nil {
		return nil, err
	}
	out := make([]model.Transfer, 0, len(rows))
	for _, r := range rows {
		if r.Ccy != exchange.Currency {
			continue
		}
		if r.Chain != BitcoinChain {
			continue
		}
		if r.To == "" || id(r) == "" {
			return nil, exchange.ResponseError(op, "transfer missing address or id")
		}
		out = append(out, model.Transfer{
			ID:           id(r),
			Currency:     r.Ccy,
			Chain:        r.Chain,
			Address:      r.To,
			AmountInSats: model.BtcToSats(r.Amt.Decimal),
			Status:       status(r.State),
			Timestamp:    r.Ts.Time,
		})
	}
	return out, nil
}

func depositStatus(state string) model.TransferStatus {
	switch state {
	case "2":
		return model.TransferStatusSettled
	case "11", "12", "13", "14":
		return model.TransferStatusFailed
	}
	return model.TransferStatusPending
}

func withdrawalStatus(state string) model.TransferStatus {
	switch state {
	case "2":
		return model.TransferStatusSettled
	case "-1", "-2":
		return model.TransferStatusFailed
	}
	return model.TransferStatusPending
}

// --- Orders ---

func (c *Configuration) ValidateCreateMarketOrder(args exchange.OrderArgs) error {
	const op = "okx.ValidateCreateMarketOrder"
	if err := exchange.ValidateInstrumentID(op, c.inst.ID, args.InstrumentID); err != nil {
		return err
	}
	if err := exchange.ValidateSide(op, args.Side); err != nil {
		return err
	}
	return exchange.ValidateQuantity(op, args.Contracts)
}

type orderAckRow struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

func (c *Configuration) ProcessCreateMarketOrder(raw json.RawMessage) (string, error) {
	const op = "okx.ProcessCreateMarketOrder"
	rows, err := decode[orderAckRow](op, raw, true)
	if err != nil {
		return "", err
	}
	r := rows[0]
	if r.SCode != "" && r.SCode != "0" {
		return "", exchange.ResponseError(op, "sCode %q: %s", r.SCode, r.SMsg)
	}
	if r.OrdID == "" {
		return "", exchange.ResponseError(op, "missing ordId")
	}
	return r.OrdID, nil
}

func (c *Configuration) ValidateFetchOrder(args exchange.FetchOrderArgs) error {
	const op = "okx.ValidateFetchOrder"
	if err := exchange.ValidateOrderID(op, args.ID); err != nil {
		return err
	}
	return exchange.ValidateInstrumentID(op, c.inst.ID, args.InstrumentID)
}

type orderRow struct {
	OrdID     string           `json:"ordId"`
	InstID    string           `json:"instId"`
	Side      string           `json:"side"`
	Sz        exchange.Decimal `json:"sz"`
	AccFillSz exchange.Decimal `json:"accFillSz"`
	AvgPx     exchange.Decimal `json:"avgPx"`
	State     string           `json:"state"`
}

func (c *Configuration) ProcessFetchOrder(raw json.RawMessage) (model.Order, error) {
	const op = "okx.ProcessFetchOrder"
	rows, err := decode[orderRow](op, raw, true)
	if err != nil {
		return model.Order{}, err
	}
	r := rows[0]
	if r.OrdID == "" {
		return model.Order{}, exchange.ResponseError(op, "missing ordId")
	}
	status, ok := orderStatus(r.State)
	if !ok {
		return model.Order{}, exchange.ResponseError(op, "unknown state %q", r.State)
	}
	return model.Order{
		ID:              r.OrdID,
		InstrumentID:    r.InstID,
		Side:            model.TradeSide(r.Side),
		Contracts:       r.Sz.Decimal,
		FilledContracts: r.AccFillSz.Decimal,
		AvgPrice:        r.AvgPx.Decimal,
		Status:          status,
	}, nil
}

func orderStatus(state string) (model.OrderStatus, bool) {
	switch state {
	case "filled":
		return model.OrderStatusClosed, true
	case "canceled", "mmp_canceled":
		return model.OrderStatusCanceled, true
	case "live", "partially_filled":
		return model.OrderStatusOpen, true
	}
	return "", false
}

// --- Withdraw ---

func (c *Configuration) ValidateWithdraw(args exchange.WithdrawArgs) error {
	const op = "okx.ValidateWithdraw"
	if err := exchange.ValidateCurrency(op, args.Currency); err != nil {
		return err
	}
	if err := exchange.ValidateSats(op, args.QuantityInSats); err != nil {
		return err
	}
	if args.FeeInBtc.IsNegative() {
		return exchange.MissingParameters(op, "negative fee %s", args.FeeInBtc)
	}
	return exchange.ValidateAddress(op, args.Address)
}

type withdrawAckRow struct {
	WdID     string `json:"wdId"`
	ClientID string `json:"clientId"`
}

func (c *Configuration) ProcessWithdraw(raw json.RawMessage) (exchange.WithdrawResult, error) {
	const op = "okx.ProcessWithdraw"
	rows, err := decode[withdrawAckRow](op, raw, true)
	if err != nil {
		return exchange.WithdrawResult{}, err
	}
	if rows[0].WdID == "" {
		return exchange.WithdrawResult{}, exchange.ResponseError(op, "missing wdId")
	}
	return exchange.WithdrawResult{ID: rows[0].WdID, Status: "requested"}, nil
}

// --- Funding rate / account configuration ---

type fundingRow struct {
	InstID      string           `json:"instId"`
	FundingRate exchange.Decimal `json:"fundingRate"`
	FundingTime exchange.Millis  `json:"fundingTime"`
}

func (c *Configuration) ProcessFetchFundingRate(raw json.RawMessage) (model.FundingRate, error) {
	const op = "okx.ProcessFetchFundingRate"
	rows, err := decode[fundingRow](op, raw, true)
	if err != nil {
		return model.FundingRate{}, err
	}
	r := rows[0]
	if r.InstID != c.inst.ID {
		return model.FundingRate{}, exchange.ResponseError(op, "instrument %q", r.InstID)
	}
	return model.FundingRate{InstrumentID: r.InstID, Rate: r.FundingRate.Decimal, FundingTime: r.FundingTime.Time}, nil
}

func (c *Configuration) ValidateSetLeverage(args exchange.LeverageArgs) error {
	const op = "okx.ValidateSetLeverage"
	if err := exchange.ValidateInstrumentID(op, c.inst.ID, args.InstrumentID); err != nil {
		return err
	}
	return exchange.ValidateQuantity(op, args.Leverage)
}

func (c *Configuration) ProcessSetLeverage(raw json.RawMessage) error {
	_, err := decode[json.RawMessage]("okx.ProcessSetLeverage", raw, false)
	return err
}

func (c *Configuration) ValidateSetPositionMode(args exchange.PositionModeArgs) error {
	switch args.Mode {
	case exchange.PositionModeOneWay, exchange.PositionModeHedge:
		return nil
	}
	return exchange.MissingParameters("okx.ValidateSetPositionMode", "position mode %q", args.Mode)
}

func (c *Configuration) ProcessSetPositionMode(raw json.RawMessage) error {
	_, err := decode[json.RawMessage]("okx.ProcessSetPositionMode", raw, false)
	return err
}
