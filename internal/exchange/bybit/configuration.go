// Package bybit implements the exchange boundary for Bybit v5 inverse
// perpetuals.
package bybit

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/instrument"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

const (
	category     = "inverse"
	bitcoinChain = "BTC"

	// retCodeLeverageNotModified is returned when leverage already matches.
	retCodeLeverageNotModified = 110043
)

// Configuration is the Bybit request validation and response processing.
type Configuration struct {
	inst *instrument.SupportedInstrument
}

var _ exchange.Configuration = (*Configuration)(nil)

func NewConfiguration(instrumentID string) (*Configuration, error) {
	inst, err := instrument.Parse(instrument.ExchangeBybit, instrumentID)
	if err != nil {
		return nil, err
	}
	return &Configuration{inst: inst}, nil
}

func (c *Configuration) Name() string { return instrument.ExchangeBybit }

func (c *Configuration) Instrument() *instrument.SupportedInstrument { return c.inst }

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type listResult[T any] struct {
	List []T `json:"list"`
}

type rowsResult[T any] struct {
	Rows []T `json:"rows"`
}

func decode[T any](op string, raw json.RawMessage, ok ...int) (T, error) {
	var out T
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return out, exchange.ResponseError(op, "invalid json: %v", err)
	}
	accepted := env.RetCode == 0
	for _, code := range ok {
		accepted = accepted || env.RetCode == code
	}
	if !accepted {
		return out, exchange.ResponseError(op, "retCode %d: %s", env.RetCode, env.RetMsg)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return out, exchange.ResponseError(op, "missing result")
	}
	if err := json.Unmarshal(env.Result, &out); err != nil {
		return out, exchange.ResponseError(op, "invalid result: %v", err)
	}
	return out, nil
}

func (c *Configuration) ValidateInstrument(instrumentID string) error {
	return exchange.ValidateInstrumentID("bybit.ValidateInstrument", c.inst.ID, instrumentID)
}

type tickerRow struct {
	Symbol          string           `json:"symbol"`
	LastPrice       exchange.Decimal `json:"lastPrice"`
	Bid1Price       exchange.Decimal `json:"bid1Price"`
	Ask1Price       exchange.Decimal `json:"ask1Price"`
	FundingRate     exchange.Decimal `json:"fundingRate"`
	NextFundingTime exchange.Millis  `json:"nextFundingTime"`
}

func (c *Configuration) ticker(op string, raw json.RawMessage) (tickerRow, error) {
	res, err := decode[listResult[tickerRow]](op, raw)
	if err != nil {
		return tickerRow{}, err
	}
	for _, r := range res.List {
		if r.Symbol == c.inst.ID {
			return r, nil
		}
	}
	return tickerRow{}, exchange.ResponseError(op, "no ticker for %s", c.inst.ID)
}

func (c *Configuration) ProcessFetchTicker(raw json.RawMessage) (model.Ticker, error) {
	const op = "bybit.ProcessFetchTicker"
	r, err := c.ticker(op, raw)
	if err != nil {
		return model.Ticker{}, err
	}
	if !r.Bid1Price.IsPositive() || !r.Ask1Price.IsPositive() || r.Bid1Price.GreaterThan(r.Ask1Price.Decimal) {
		return model.Ticker{}, exchange.ResponseError(op, "invalid book bid=%s ask=%s", r.Bid1Price, r.Ask1Price)
	}
	return model.Ticker{
		InstrumentID: r.Symbol,
		Bid:          r.Bid1Price.Decimal,
		Ask:          r.Ask1Price.Decimal,
		Last:         r.LastPrice.Decimal,
	}, nil
}

type positionRow struct {
	Symbol string           `json:"symbol"`
	Side   string           `json:"side"`
	Size   exchange.Decimal `json:"size"`
}

func (c *Configuration) ProcessFetchPosition(raw json.RawMessage) (model.PositionSnapshot, error) {
	const op = "bybit.ProcessFetchPosition"
	res, err := decode[listResult[positionRow]](op, raw)
	if err != nil {
		return model.PositionSnapshot{}, err
	}
	contracts := decimal.Zero
	for _, r := range res.List {
		if r.Symbol != c.inst.ID {
			continue
		}
		switch r.Side {
		case "Sell":
			contracts = contracts.Sub(r.Size.Abs())
		case "Buy":
			contracts = contracts.Add(r.Size.Abs())
		}
	}
	return model.PositionSnapshot{
		InstrumentID:  c.inst.ID,
		Contracts:     contracts,
		NotionalInUsd: c.inst.UsdForContracts(contracts),
	}, nil
}

type walletRow struct {
	TotalEquity string `json:"totalEquity"`
	Coin        []struct {
		Coin                string           `json:"coin"`
		Equity              exchange.Decimal `json:"equity"`
		UsdValue            string           `json:"usdValue"`
		AvailableToWithdraw exchange.Decimal `json:"availableToWithdraw"`
		TotalPositionIM     exchange.Decimal `json:"totalPositionIM"`
	} `json:"coin"`
}

// ProcessFetchBalance reads the account equity, falling back to the BTC
// coin's USD value on accounts that do not report a total.
func (c *Configuration) ProcessFetchBalance(raw json.RawMessage) (model.Balance, error) {
	const op = "bybit.ProcessFetchBalance"
	res, err := decode[listResult[walletRow]](op, raw)
	if err != nil {
		return model.Balance{}, err
	}
	if len(res.List) == 0 {
		return model.Balance{}, exchange.ResponseError(op, "empty wallet list")
	}
	w := res.List[0]
	total := strings.TrimSpace(w.TotalEquity)
	var b model.Balance
	for _, coin := range w.Coin {
		if coin.Coin != exchange.Currency {
			continue
		}
		b.BtcEquity = coin.Equity.Decimal
		b.BtcFree = coin.AvailableToWithdraw.Decimal
		b.BtcUsed = coin.TotalPositionIM.Decimal
		if total == "" {
			total = strings.TrimSpace(coin.UsdValue)
		}
	}
	if total == "" {
		return model.Balance{}, exchange.MissingAccountValue(op)
	}
	v, err := decimal.NewFromString(total)
	if err != nil {
		return model.Balance{}, exchange.ResponseError(op, "total equity %q", total)
	}
	b.TotalAccountValueInUsd = v
	return b, nil
}

func (c *Configuration) ValidateFetchDepositAddress(args exchange.DepositAddressArgs) error {
	return exchange.ValidateCurrency("bybit.ValidateFetchDepositAddress", args.Currency)
}

type addressResult struct {
	Coin   string `json:"coin"`
	Chains []struct {
		ChainType      string `json:"chainType"`
		AddressDeposit string `json:"addressDeposit"`
		Chain          string `json:"chain"`
	} `json:"chains"`
}

func (c *Configuration) ProcessFetchDepositAddress(raw json.RawMessage) (model.DepositAddress, error) {
	const op = "bybit.ProcessFetchDepositAddress"
	res, err := decode[addressResult](op, raw)
	if err != nil {
		return model.DepositAddress{}, err
	}
	for _, ch := range res.Chains {
		if ch.Chain == bitcoinChain && ch.AddressDeposit != "" {
			return model.DepositAddress{Chain: ch.Chain, Currency: exchange.Currency, Address: ch.AddressDeposit}, nil
		}
	}
	return model.DepositAddress{}, exchange.ResponseError(op, "no %s address", bitcoinChain)
}

func (c *Configuration) ValidateFetchTransfers(args exchange.TransfersArgs) error {
	const op = "bybit.ValidateFetchTransfers"
	if err := exchange.ValidateCurrency(op, args.Currency); err != nil {
		return err
	}
	if args.Limit < 0 || args.Limit > 50 {
		return exchange.MissingParameters(op, "limit %d out of range", args.Limit)
	}
	return nil
}

type depositRow struct {
	Coin      string           `json:"coin"`
	Chain     string           `json:"chain"`
	Amount    exchange.Decimal `json:"amount"`
	ToAddress string           `json:"toAddress"`
	Status    int              `json:"status"`
	TxID      string           `json:"txID"`
	SuccessAt exchange.Millis  `json:"successAt"`
}

func (c *Configuration) ProcessFetchDeposits(raw json.RawMessage) ([]model.Transfer, error) {
	const op = "bybit.ProcessFetchDeposits"
	res, err := decode[rowsResult[depositRow]](op, raw)
	if err != nil {
		return nil, err
	}
	out := make([]model.Transfer, 0, len(res.Rows))
	for _, r := range res.Rows {
		if r.Coin != exchange.Currency || r.Chain != bitcoinChain {
			continue
		}
		if r.ToAddress == "" || r.TxID == "" {
			return nil, exchange.ResponseError(op, "deposit missing address or txID")
		}
		status := model.TransferStatusPending
		switch r.Status {
		case 3:
			status = model.TransferStatusSettled
		case 4:
			status = model.TransferStatusFailed
		}
		out = append(out, model.Transfer{
			ID:           r.TxID,
			Currency:     r.Coin,
			Chain:        r.Chain,
			Address:      r.ToAddress,
			AmountInSats: model.BtcToSats(r.Amount.Decimal),
			Status:       status,
			Timestamp:    r.SuccessAt.Time,
		})
	}
	return out, nil
}

type withdrawalRow struct {
	Coin       string           `json:"coin"`
	Chain      string           `json:"chain"`
	Amount     exchange.Decimal `json:"amount"`
	ToAddress  string           `json:"toAddress"`
	Status     string           `json:"status"`
	WithdrawID string           `json:"withdrawId"`
	UpdateTime exchange.Millis  `json:"updateTime"`
}

func (c *Configuration) ProcessFetchWithdrawals(raw json.RawMessage) ([]model.Transfer, error) {
	const op = "bybit.ProcessFetchWithdrawals"
	res, err := decode[rowsResult[withdrawalRow]](op, raw)
	if err != nil {
		return nil, err
	}
	out := make([]model.Transfer, 0, len(res.Rows))
	for _, r := range res.Rows {
		if r.Coin != exchange.Currency || r.Chain != bitcoinChain {
			continue
		}
		if r.ToAddress == "" || r.WithdrawID == "" {
			return nil, exchange.ResponseError(op, "withdrawal missing address or id")
		}
		status := model.TransferStatusPending
		switch r.Status {
		case "success":
			status = model.TransferStatusSettled
		case "fail", "Reject", "CancelByUser":
			status = model.TransferStatusFailed
		}
		out = append(out, model.Transfer{
			ID:           r.WithdrawID,
			Currency:     r.Coin,
			Chain:        r.Chain,
			Address:      r.ToAddress,
			AmountInSats: model.BtcToSats(r.Amount.Decimal),
			Status:       status,
			Timestamp:    r.UpdateTime.Time,
		})
	}
	return out, nil
}

func (c *Configuration) ValidateCreateMarketOrder(args exchange.OrderArgs) error {
	const op = "bybit.ValidateCreateMarketOrder"
	if err := exchange.ValidateInstrumentID(op, c.inst.ID, args.InstrumentID); err != nil {
		return err
	}
	if err := exchange.ValidateSide(op, args.Side); err != nil {
		return err
	}
	if err := exchange.ValidateQuantity(op, args.Contracts); err != nil {
		return err
	}
	if !args.Contracts.Equal(args.Contracts.Truncate(0)) {
		return exchange.MissingParameters(op, "fractional contracts %s", args.Contracts)
	}
	return nil
}

type orderAck struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

func (c *Configuration) ProcessCreateMarketOrder(raw json.RawMessage) (string, error) {
	const op = "bybit.ProcessCreateMarketOrder"
	ack, err := decode[orderAck](op, raw)
	if err != nil {
		return "", err
	}
	if ack.OrderID == "" {
		return "", exchange.ResponseError(op, "missing orderId")
	}
	return ack.OrderID, nil
}

func (c *Configuration) ValidateFetchOrder(args exchange.FetchOrderArgs) error {
	const op = "bybit.ValidateFetchOrder"
	if err := exchange.ValidateOrderID(op, args.ID); err != nil {
		return err
	}
	return exchange.ValidateInstrumentID(op, c.inst.ID, args.InstrumentID)
}

type orderRow struct {
	OrderID     string           `json:"orderId"`
	Symbol      string           `json:"symbol"`
	Side        string           `json:"side"`
	Qty         exchange.Decimal `json:"qty"`
	CumExecQty  exchange.Decimal `json:"cumExecQty"`
	AvgPrice    exchange.Decimal `json:"avgPrice"`
	OrderStatus string           `json:"orderStatus"`
}

func (c *Configuration) ProcessFetchOrder(raw json.RawMessage) (model.Order, error) {
	const op = "bybit.ProcessFetchOrder"
	res, err := decode[listResult[orderRow]](op, raw)
	if err != nil {
		return model.Order{}, err
	}
	if len(res.List) == 0 {
		return model.Order{}, exchange.ResponseError(op, "order not found")
	}
	r := res.List[0]
	if r.OrderID == "" {
		return model.Order{}, exchange.ResponseError(op, "missing orderId")
	}
	var status model.OrderStatus
	switch r.OrderStatus {
	case "Filled":
		status = model.OrderStatusClosed
	case "Cancelled", "Rejected", "Deactivated", "PartiallyFilledCanceled":
		status = model.OrderStatusCanceled
	case "New", "Created", "PartiallyFilled", "Untriggered", "Triggered":
		status = model.OrderStatusOpen
	default:
		return model.Order{}, exchange.ResponseError(op, "unknown orderStatus %q", r.OrderStatus)
	}
	return model.Order{
		ID:              r.OrderID,
		InstrumentID:    r.Symbol,
		Side:            model.TradeSide(strings.ToLower(r.Side)),
		Contracts:       r.Qty.Decimal,
		FilledContracts: r.CumExecQty.Decimal,
		AvgPrice:        r.AvgPrice.Decimal,
		Status:          status,
	}, nil
}

func (c *Configuration) ValidateWithdraw(args exchange.WithdrawArgs) error {
	const op = "bybit.ValidateWithdraw"
	if err := exchange.ValidateCurrency(op, args.Currency); err != nil {
		return err
	}
	if err := exchange.ValidateSats(op, args.QuantityInSats); err != nil {
		return err
	}
	return exchange.ValidateAddress(op, args.Address)
}

type withdrawAck struct {
	ID string `json:"id"`
}

func (c *Configuration) ProcessWithdraw(raw json.RawMessage) (exchange.WithdrawResult, error) {
	const op = "bybit.ProcessWithdraw"
	ack, err := decode[withdrawAck](op, raw)
	if err != nil {
		return exchange.WithdrawResult{}, err
	}
	if ack.ID == "" {
		return exchange.WithdrawResult{}, exchange.ResponseError(op, "missing id")
	}
	return exchange.WithdrawResult{ID: ack.ID, Status: "requested"}, nil
}

// ProcessFetchFundingRate reads the funding fields of the ticker response.
func (c *Configuration) ProcessFetchFundingRate(raw json.RawMessage) (model.FundingRate, error) {
	r, err := c.ticker("bybit.ProcessFetchFundingRate", raw)
	if err != nil {
		return model.FundingRate{}, err
	}
	return model.FundingRate{InstrumentID: r.Symbol, Rate: r.FundingRate.Decimal, FundingTime: r.NextFundingTime.Time}, nil
}

func (c *Configuration) ValidateSetLeverage(args exchange.LeverageArgs) error {
	const op = "bybit.ValidateSetLeverage"
	if err := exchange.ValidateInstrumentID(op, c.inst.ID, args.InstrumentID); err != nil {
		return err
	}
	return exchange.ValidateQuantity(op, args.Leverage)
}

func (c *Configuration) ProcessSetLeverage(raw json.RawMessage) error {
	_, err := decode[json.RawMessage]("bybit.ProcessSetLeverage", raw, retCodeLeverageNotModified)
	return err
}

// ValidateSetPositionMode always fails: inverse perpetuals on Bybit are
// one-way only.
func (c *Configuration) ValidateSetPositionMode(exchange.PositionModeArgs) error {
	return exchange.NotSupported("bybit.SetPositionMode", "inverse contracts have no position mode")
}

func (c *Configuration) ProcessSetPositionMode(json.RawMessage) error {
	return exchange.NotSupported("bybit.SetPositionMode", "inverse contracts have no position mode")
}
