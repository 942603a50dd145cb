// Package exchangetest provides an in-memory OKX-shaped venue for tests.
package exchangetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

// Method names a raw client call.
type Method string

const (
	MethodFetchTicker         Method = "FetchTicker"
	MethodFetchPosition       Method = "FetchPosition"
	MethodFetchBalance        Method = "FetchBalance"
	MethodFetchDepositAddress Method = "FetchDepositAddress"
	MethodFetchDeposits       Method = "FetchDeposits"
	MethodFetchWithdrawals    Method = "FetchWithdrawals"
	MethodCreateMarketOrder   Method = "CreateMarketOrder"
	MethodFetchOrder          Method = "FetchOrder"
	MethodWithdraw            Method = "Withdraw"
	MethodFetchFundingRate    Method = "FetchFundingRate"
	MethodSetLeverage         Method = "SetLeverage"
	MethodSetPositionMode     Method = "SetPositionMode"
)

// OKX order and transfer states used by the venue.
const (
	OrderFilled   = "filled"
	OrderLive     = "live"
	OrderCanceled = "canceled"

	TransferSettled = "2"
	TransferPending = "0"
)

type transfer struct {
	id    string
	addr  string
	sats  int64
	state string
	ts    time.Time
}

type order struct {
	args  exchange.OrderArgs
	state string
}

// Venue simulates one OKX inverse-swap account. Market orders move the
// position as soon as they are created; withdrawals leave the account
// immediately and settle with WithdrawalState.
type Venue struct {
	mu sync.Mutex

	bid, ask, last decimal.Decimal
	contracts      decimal.Decimal
	btcEquity      decimal.Decimal
	depositAddress string
	fundingRate    decimal.Decimal

	// OrderState is reported by FetchOrder for new orders.
	OrderState string
	// WithdrawalState is the feed state of new withdrawals.
	WithdrawalState string

	orders      map[string]*order
	deposits    []transfer
	withdrawals []transfer
	seq         int

	failures  map[Method][]error
	overrides map[Method][]json.RawMessage
	calls     map[Method]int

	Orders    []exchange.OrderArgs
	Withdraws []exchange.WithdrawArgs

	// OnWithdraw, if set, runs at the start of every Withdraw call.
	OnWithdraw func(exchange.WithdrawArgs)

	Now func() time.Time
}

var _ exchange.Client = (*Venue)(nil)

// NewVenue returns a flat, empty account quoting price.
func NewVenue(price decimal.Decimal) *Venue {
	return &Venue{
		bid:             price,
		ask:             price,
		last:            price,
		depositAddress:  "bc1qexchangedeposit",
		OrderState:      OrderFilled,
		WithdrawalState: TransferSettled,
		orders:          make(map[string]*order),
		failures:        make(map[Method][]error),
		overrides:       make(map[Method][]json.RawMessage),
		calls:           make(map[Method]int),
		Now:             time.Now,
	}
}

// SetPrice moves bid, ask and last to price.
func (v *Venue) SetPrice(price decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bid, v.ask, v.last = price, price, price
}

// SetBook sets a two-sided book with last at the midpoint.
func (v *Venue) SetBook(bid, ask decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bid, v.ask = bid, ask
	v.last = bid.Add(ask).Div(decimal.NewFromInt(2))
}

// SetContracts sets the signed position.
func (v *Venue) SetContracts(c decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.contracts = c
}

// Contracts returns the signed position.
func (v *Venue) Contracts() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.contracts
}

// SetBtcEquity sets the BTC margin balance.
func (v *Venue) SetBtcEquity(btc decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.btcEquity = btc
}

// BtcEquity returns the BTC margin balance.
func (v *Venue) BtcEquity() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.btcEquity
}

// DepositAddress returns the address FetchDepositAddress reports.
func (v *Venue) DepositAddress() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.depositAddress
}

// SetFundingRate sets the rate FetchFundingRate reports.
func (v *Venue) SetFundingRate(r decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fundingRate = r
}

// Credit records an incoming deposit. A settled deposit adds to equity.
func (v *Venue) Credit(address string, sats int64, state string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	v.deposits = append(v.deposits, transfer{
		id:    fmt.Sprintf("dep-%d", v.seq),
		addr:  address,
		sats:  sats,
		state: state,
		ts:    v.Now(),
	})
	if state == TransferSettled {
		v.btcEquity = v.btcEquity.Add(model.SatsToBtc(sats))
	}
}

// SetOrderState changes the state FetchOrder reports for id.
func (v *Venue) SetOrderState(id, state string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if o, ok := v.orders[id]; ok {
		o.state = state
	}
}

// Fail makes the next call to m return err. Calls queue in order.
func (v *Venue) Fail(m Method, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failures[m] = append(v.failures[m], err)
}

// Respond makes the next call to m return body verbatim.
func (v *Venue) Respond(m Method, body string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.overrides[m] = append(v.overrides[m], json.RawMessage(body))
}

// Calls returns how many times m was called.
func (v *Venue) Calls(m Method) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[m]
}

// begin records the call and pops any scripted failure or override. It
// must be called with v.mu held.
func (v *Venue) begin(m Method) (json.RawMessage, bool, error) {
	v.calls[m]++
	if q := v.failures[m]; len(q) > 0 {
		v.failures[m] = q[1:]
		return nil, true, q[0]
	}
	if q := v.overrides[m]; len(q) > 0 {
		v.overrides[m] = q[1:]
		return q[0], true, nil
	}
	return nil, false, nil
}

func ok(rows ...any) (json.RawMessage, error) {
	if rows == nil {
		rows = []any{}
	}
	return json.Marshal(map[string]any{"code": "0", "msg": "", "data": rows})
}

func millis(t time.Time) string {
	return fmt.Sprintf("%d", t.UnixMilli())
}

func (v *Venue) FetchTicker(_ context.Context, instrumentID string) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodFetchTicker); done {
		return raw, err
	}
	return ok(map[string]string{
		"instId": instrumentID,
		"last":   v.last.String(),
		"bidPx":  v.bid.String(),
		"askPx":  v.ask.String(),
		"ts":     millis(v.Now()),
	})
}

func (v *Venue) FetchPosition(_ context.Context, instrumentID string) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodFetchPosition); done {
		return raw, err
	}
	if v.contracts.IsZero() {
		return ok()
	}
	return ok(map[string]string{"instId": instrumentID, "pos": v.contracts.String(), "posSide": "net"})
}

func (v *Venue) FetchBalance(context.Context) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodFetchBalance); done {
		return raw, err
	}
	return ok(map[string]any{
		"totalEq": v.btcEquity.Mul(v.last).String(),
		"details": []map[string]string{{
			"ccy":       exchange.Currency,
			"eq":        v.btcEquity.String(),
			"availEq":   v.btcEquity.String(),
			"frozenBal": "0",
		}},
	})
}

func (v *Venue) FetchDepositAddress(_ context.Context, args exchange.DepositAddressArgs) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodFetchDepositAddress); done {
		return raw, err
	}
	return ok(map[string]string{"chain": "BTC-Bitcoin", "ccy": args.Currency, "addr": v.depositAddress})
}

func feed(items []transfer, since time.Time, idKey string) []any {
	rows := make([]any, 0, len(items))
	for _, t := range items {
		if !since.IsZero() && t.ts.Before(since) {
			continue
		}
		rows = append(rows, map[string]string{
			"ccy":   exchange.Currency,
			"chain": "BTC-Bitcoin",
			"amt":   model.SatsToBtc(t.sats).String(),
			"to":    t.addr,
			"state": t.state,
			"ts":    millis(t.ts),
			idKey:   t.id,
		})
	}
	return rows
}

func (v *Venue) FetchDeposits(_ context.Context, args exchange.TransfersArgs) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodFetchDeposits); done {
		return raw, err
	}
	return ok(feed(v.deposits, args.Since, "depId")...)
}

func (v *Venue) FetchWithdrawals(_ context.Context, args exchange.TransfersArgs) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodFetchWithdrawals); done {
		return raw, err
	}
	return ok(feed(v.withdrawals, args.Since, "wdId")...)
}

func (v *Venue) CreateMarketOrder(_ context.Context, args exchange.OrderArgs) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Orders = append(v.Orders, args)
	if raw, done, err := v.begin(MethodCreateMarketOrder); done {
		return raw, err
	}
	v.seq++
	id := fmt.Sprintf("ord-%d", v.seq)
	v.orders[id] = &order{args: args, state: v.OrderState}
	if v.OrderState == OrderFilled {
		if args.Side == model.SideSell {
			v.contracts = v.contracts.Sub(args.Contracts)
		} else {
			v.contracts = v.contracts.Add(args.Contracts)
		}
	}
	return ok(map[string]string{"ordId": id, "clOrdId": args.ClientOrderID, "sCode": "0", "sMsg": ""})
}

func (v *Venue) FetchOrder(_ context.Context, args exchange.FetchOrderArgs) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodFetchOrder); done {
		return raw, err
	}
	o, found := v.orders[args.ID]
	if !found {
		return json.RawMessage(`{"code":"51603","msg":"Order does not exist","data":[]}`), nil
	}
	filled := decimal.Zero
	if o.state == OrderFilled {
		filled = o.args.Contracts
	}
	return ok(map[string]string{
		"ordId":     args.ID,
		"instId":    o.args.InstrumentID,
		"side":      string(o.args.Side),
		"sz":        o.args.Contracts.String(),
		"accFillSz": filled.String(),
		"avgPx":     v.last.String(),
		"state":     o.state,
	})
}

func (v *Venue) Withdraw(_ context.Context, args exchange.WithdrawArgs) (json.RawMessage, error) {
	if v.OnWithdraw != nil {
		v.OnWithdraw(args)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Withdraws = append(v.Withdraws, args)
	if raw, done, err := v.begin(MethodWithdraw); done {
		return raw, err
	}
	v.seq++
	id := fmt.Sprintf("wd-%d", v.seq)
	v.withdrawals = append(v.withdrawals, transfer{
		id:    id,
		addr:  args.Address,
		sats:  args.QuantityInSats,
		state: v.WithdrawalState,
		ts:    v.Now(),
	})
	v.btcEquity = v.btcEquity.Sub(model.SatsToBtc(args.QuantityInSats))
	return ok(map[string]string{"wdId": id, "clientId": args.ClientID})
}

func (v *Venue) FetchFundingRate(_ context.Context, instrumentID string) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodFetchFundingRate); done {
		return raw, err
	}
	return ok(map[string]string{
		"instId":      instrumentID,
		"fundingRate": v.fundingRate.String(),
		"fundingTime": millis(v.Now().Add(8 * time.Hour)),
	})
}

func (v *Venue) SetLeverage(context.Context, exchange.LeverageArgs) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodSetLeverage); done {
		return raw, err
	}
	return ok()
}

func (v *Venue) SetPositionMode(context.Context, exchange.PositionModeArgs) (json.RawMessage, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if raw, done, err := v.begin(MethodSetPositionMode); done {
		return raw, err
	}
	return ok()
}
