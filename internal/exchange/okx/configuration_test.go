package okx_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/okx"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

func newConfig(t *testing.T) *okx.Configuration {
	t.Helper()
	cfg, err := okx.NewConfiguration("BTC-USD-SWAP")
	require.NoError(t, err)
	return cfg
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestNewConfiguration_UnsupportedInstrument(t *testing.T) {
	_, err := okx.NewConfiguration("ETH-USD-SWAP")
	require.Error(t, err)
}

// --- Validation ---

func TestValidateCreateMarketOrder(t *testing.T) {
	cfg := newConfig(t)
	valid := exchange.OrderArgs{InstrumentID: "BTC-USD-SWAP", Side: model.SideSell, Contracts: decimal.NewFromInt(1)}
	require.NoError(t, cfg.ValidateCreateMarketOrder(valid))

	cases := []struct {
		name string
		mut  func(*exchange.OrderArgs)
		kind result.Kind
	}{
		{"instrument", func(a *exchange.OrderArgs) { a.InstrumentID = "BTC-USDT-SWAP" }, result.KindUnsupportedInstrument},
		{"side", func(a *exchange.OrderArgs) { a.Side = "hold" }, result.KindInvalidTradeSide},
		{"zero", func(a *exchange.OrderArgs) { a.Contracts = decimal.Zero }, result.KindNonPositiveQuantity},
		{"negative", func(a *exchange.OrderArgs) { a.Contracts = decimal.NewFromInt(-2) }, result.KindNonPositiveQuantity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := valid
			tc.mut(&args)
			assert.Equal(t, tc.kind, result.KindOf(cfg.ValidateCreateMarketOrder(args)))
		})
	}
}

func TestValidateWithdraw(t *testing.T) {
	cfg := newConfig(t)
	valid := exchange.WithdrawArgs{Currency: "BTC", QuantityInSats: 50_000, Address: "bc1qdealer"}
	require.NoError(t, cfg.ValidateWithdraw(valid))

	args := valid
	args.Currency = "ETH"
	assert.Equal(t, result.KindUnsupportedCurrency, result.KindOf(cfg.ValidateWithdraw(args)))

	args = valid
	args.QuantityInSats = 0
	assert.Equal(t, result.KindNonPositiveQuantity, result.KindOf(cfg.ValidateWithdraw(args)))

	args = valid
	args.Address = ""
	assert.Equal(t, result.KindUnsupportedAddress, result.KindOf(cfg.ValidateWithdraw(args)))
}

func TestValidateFetchOrder(t *testing.T) {
	cfg := newConfig(t)
	err := cfg.ValidateFetchOrder(exchange.FetchOrderArgs{InstrumentID: "BTC-USD-SWAP"})
	assert.Equal(t, result.KindMissingOrderID, result.KindOf(err))
}

func TestValidateSetPositionMode(t *testing.T) {
	cfg := newConfig(t)
	require.NoError(t, cfg.ValidateSetPositionMode(exchange.PositionModeArgs{Mode: exchange.PositionModeOneWay}))
	err := cfg.ValidateSetPositionMode(exchange.PositionModeArgs{Mode: "both"})
	assert.Equal(t, result.KindMissingParameters, result.KindOf(err))
}

// --- Processing ---

func TestProcessFetchTicker(t *testing.T) {
	cfg := newConfig(t)
	tk, err := cfg.ProcessFetchTicker(raw(`{"code":"0","msg":"","data":[
		{"instId":"BTC-USD-SWAP","last":"50000","askPx":"50010.5","bidPx":"49990","ts":"1700000000000"}]}`))
	require.NoError(t, err)
	assert.True(t, tk.Bid.Equal(decimal.NewFromInt(49990)))
	assert.True(t, tk.Ask.Equal(decimal.RequireFromString("50010.5")))
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), tk.Timestamp)
}

func TestProcessFetchTicker_Malformed(t *testing.T) {
	cfg := newConfig(t)
	cases := map[string]string{
		"not json":     `<html>`,
		"error code":   `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`,
		"empty data":   `{"code":"0","msg":"","data":[]}`,
		"wrong inst":   `{"code":"0","data":[{"instId":"ETH-USD-SWAP","last":"1","askPx":"1","bidPx":"1"}]}`,
		"non-numeric":  `{"code":"0","data":[{"instId":"BTC-USD-SWAP","last":"x","askPx":"1","bidPx":"1"}]}`,
		"crossed book": `{"code":"0","data":[{"instId":"BTC-USD-SWAP","last":"1","askPx":"1","bidPx":"2"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := cfg.ProcessFetchTicker(raw(body))
			assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))
		})
	}
}

func TestProcessFetchPosition(t *testing.T) {
	cfg := newConfig(t)
	p, err := cfg.ProcessFetchPosition(raw(`{"code":"0","data":[{"instId":"BTC-USD-SWAP","pos":"-3","posSide":"net"}]}`))
	require.NoError(t, err)
	assert.True(t, p.Contracts.Equal(decimal.NewFromInt(-3)))
	assert.True(t, p.NotionalInUsd.Equal(decimal.NewFromInt(300)))

	empty, err := cfg.ProcessFetchPosition(raw(`{"code":"0","data":[]}`))
	require.NoError(t, err)
	assert.True(t, empty.Contracts.IsZero())
}

func TestProcessFetchBalance(t *testing.T) {
	cfg := newConfig(t)
	b, err := cfg.ProcessFetchBalance(raw(`{"code":"0","data":[{"totalEq":"100.5","details":[
		{"ccy":"USDT","eq":"5"},
		{"ccy":"BTC","eq":"0.002","availEq":"0.0015","frozenBal":"0.0005"}]}]}`))
	require.NoError(t, err)
	assert.True(t, b.TotalAccountValueInUsd.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, b.BtcEquity.Equal(decimal.RequireFromString("0.002")))
	assert.True(t, b.BtcUsed.Equal(decimal.RequireFromString("0.0005")))

	_, err = cfg.ProcessFetchBalance(raw(`{"code":"0","data":[{"totalEq":"","details":[]}]}`))
	assert.Equal(t, result.KindMissingAccountValue, result.KindOf(err))
}

func TestProcessFetchDepositAddress_FiltersChain(t *testing.T) {
	cfg := newConfig(t)
	a, err := cfg.ProcessFetchDepositAddress(raw(`{"code":"0","data":[
		{"chain":"BTC-Lightning","ccy":"BTC","addr":"lnbc1"},
		{"chain":"BTC-Bitcoin","ccy":"BTC","addr":"bc1qexchange"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "bc1qexchange", a.Address)

	_, err = cfg.ProcessFetchDepositAddress(raw(`{"code":"0","data":[{"chain":"BTC-Lightning","ccy":"BTC","addr":"lnbc1"}]}`))
	assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))
}

func TestProcessFetchDeposits(t *testing.T) {
	cfg := newConfig(t)
	ts, err := cfg.ProcessFetchDeposits(raw(`{"code":"0","data":[
		{"ccy":"BTC","chain":"BTC-Bitcoin","amt":"0.001","to":"bc1qexchange","state":"2","ts":"1700000000000","depId":"d1"},
		{"ccy":"BTC","chain":"BTC-Bitcoin","amt":"0.5","to":"bc1qexchange","state":"0","ts":"1700000000000","depId":"d2"},
		{"ccy":"USDT","chain":"USDT-TRC20","amt":"10","to":"T1","state":"2","ts":"1700000000000","depId":"d3"}]}`))
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, int64(100_000), ts[0].AmountInSats)
	assert.Equal(t, model.TransferStatusSettled, ts[0].Status)
	assert.Equal(t, model.TransferStatusPending, ts[1].Status)
}

func TestProcessFetchWithdrawals(t *testing.T) {
	cfg := newConfig(t)
	ts, err := cfg.ProcessFetchWithdrawals(raw(`{"code":"0","data":[
		{"ccy":"BTC","chain":"BTC-Bitcoin","amt":"0.0008","to":"bc1qwallet","state":"2","ts":"1700000000000","wdId":"w1"},
		{"ccy":"BTC","chain":"BTC-Bitcoin","amt":"0.0008","to":"bc1qwallet","state":"-1","ts":"1700000000000","wdId":"w2"}]}`))
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, model.TransferStatusSettled, ts[0].Status)
	assert.Equal(t, model.TransferStatusFailed, ts[1].Status)

	_, err = cfg.ProcessFetchWithdrawals(raw(`{"code":"0","data":[{"ccy":"BTC","chain":"BTC-Bitcoin","amt":"abc","to":"x","wdId":"w"}]}`))
	assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))
}

func TestProcessCreateMarketOrder(t *testing.T) {
	cfg := newConfig(t)
	id, err := cfg.ProcessCreateMarketOrder(raw(`{"code":"0","data":[{"ordId":"123","clOrdId":"c","sCode":"0","sMsg":""}]}`))
	require.NoError(t, err)
	assert.Equal(t, "123", id)

	_, err = cfg.ProcessCreateMarketOrder(raw(`{"code":"1","msg":"failed","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient margin"}]}`))
	assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))
}

func TestProcessFetchOrder_States(t *testing.T) {
	cfg := newConfig(t)
	cases := map[string]model.OrderStatus{
		"filled":           model.OrderStatusClosed,
		"canceled":         model.OrderStatusCanceled,
		"live":             model.OrderStatusOpen,
		"partially_filled": model.OrderStatusOpen,
	}
	for state, want := range cases {
		o, err := cfg.ProcessFetchOrder(raw(`{"code":"0","data":[{"ordId":"1","instId":"BTC-USD-SWAP","side":"sell","sz":"1","accFillSz":"1","avgPx":"50000","state":"` + state + `"}]}`))
		require.NoError(t, err, state)
		assert.Equal(t, want, o.Status, state)
	}
	_, err := cfg.ProcessFetchOrder(raw(`{"code":"0","data":[{"ordId":"1","state":"weird"}]}`))
	assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))
}

func TestProcessWithdraw(t *testing.T) {
	cfg := newConfig(t)
	w, err := cfg.ProcessWithdraw(raw(`{"code":"0","data":[{"wdId":"67485","clientId":"x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "67485", w.ID)

	_, err = cfg.ProcessWithdraw(raw(`{"code":"0","data":[{"clientId":"x"}]}`))
	assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))
}

func TestProcessFetchFundingRate(t *testing.T) {
	cfg := newConfig(t)
	f, err := cfg.ProcessFetchFundingRate(raw(`{"code":"0","data":[{"instId":"BTC-USD-SWAP","fundingRate":"0.0001","fundingTime":"1700003600000"}]}`))
	require.NoError(t, err)
	assert.True(t, f.Rate.Equal(decimal.RequireFromString("0.0001")))
}
