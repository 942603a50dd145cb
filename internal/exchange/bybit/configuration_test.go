package bybit_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/bybit"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

func newConfig(t *testing.T) *bybit.Configuration {
	t.Helper()
	cfg, err := bybit.NewConfiguration("BTCUSD")
	require.NoError(t, err)
	return cfg
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestProcessFetchTicker(t *testing.T) {
	cfg := newConfig(t)
	tk, err := cfg.ProcessFetchTicker(raw(`{"retCode":0,"retMsg":"OK","result":{"category":"inverse","list":[
		{"symbol":"BTCUSD","lastPrice":"50000","bid1Price":"49999.5","ask1Price":"50000.5","fundingRate":"0.0001","nextFundingTime":"1700003600000"}]}}`))
	require.NoError(t, err)
	assert.True(t, tk.Last.Equal(decimal.NewFromInt(50000)))

	_, err = cfg.ProcessFetchTicker(raw(`{"retCode":10001,"retMsg":"params error","result":{}}`))
	assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))

	_, err = cfg.ProcessFetchTicker(raw(`{"retCode":0,"result":{"list":[{"symbol":"ETHUSD","bid1Price":"1","ask1Price":"1"}]}}`))
	assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))
}

func TestProcessFetchFundingRate(t *testing.T) {
	cfg := newConfig(t)
	f, err := cfg.ProcessFetchFundingRate(raw(`{"retCode":0,"result":{"list":[
		{"symbol":"BTCUSD","bid1Price":"1","ask1Price":"2","fundingRate":"-0.0002","nextFundingTime":"1700003600000"}]}}`))
	require.NoError(t, err)
	assert.True(t, f.Rate.Equal(decimal.RequireFromString("-0.0002")))
}

func TestProcessFetchPosition_Sides(t *testing.T) {
	cfg := newConfig(t)
	p, err := cfg.ProcessFetchPosition(raw(`{"retCode":0,"result":{"list":[{"symbol":"BTCUSD","side":"Sell","size":"120"}]}}`))
	require.NoError(t, err)
	assert.True(t, p.Contracts.Equal(decimal.NewFromInt(-120)))
	assert.True(t, p.NotionalInUsd.Equal(decimal.NewFromInt(120)))

	flat, err := cfg.ProcessFetchPosition(raw(`{"retCode":0,"result":{"list":[{"symbol":"BTCUSD","side":"","size":"0"}]}}`))
	require.NoError(t, err)
	assert.True(t, flat.Contracts.IsZero())
}

func TestProcessFetchBalance(t *testing.T) {
	cfg := newConfig(t)
	b, err := cfg.ProcessFetchBalance(raw(`{"retCode":0,"result":{"list":[{"totalEquity":"","coin":[
		{"coin":"BTC","equity":"0.002","usdValue":"100","availableToWithdraw":"0.001","totalPositionIM":"0.001"}]}]}}`))
	require.NoError(t, err)
	assert.True(t, b.TotalAccountValueInUsd.Equal(decimal.NewFromInt(100)))
	assert.True(t, b.BtcEquity.Equal(decimal.RequireFromString("0.002")))

	_, err = cfg.ProcessFetchBalance(raw(`{"retCode":0,"result":{"list":[{"totalEquity":"","coin":[]}]}}`))
	assert.Equal(t, result.KindMissingAccountValue, result.KindOf(err))
}

func TestProcessFetchDepositAddress(t *testing.T) {
	cfg := newConfig(t)
	a, err := cfg.ProcessFetchDepositAddress(raw(`{"retCode":0,"result":{"coin":"BTC","chains":[
		{"chainType":"BTC","addressDeposit":"bc1qbybit","chain":"BTC"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "bc1qbybit", a.Address)
}

func TestProcessFetchTransfers(t *testing.T) {
	cfg := newConfig(t)
	deps, err := cfg.ProcessFetchDeposits(raw(`{"retCode":0,"result":{"rows":[
		{"coin":"BTC","chain":"BTC","amount":"0.002","toAddress":"bc1qbybit","status":3,"txID":"tx1","successAt":"1700000000000"},
		{"coin":"BTC","chain":"BTC","amount":"0.002","toAddress":"bc1qbybit","status":1,"txID":"tx2","successAt":""}]}}`))
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, int64(200_000), deps[0].AmountInSats)
	assert.Equal(t, model.TransferStatusSettled, deps[0].Status)
	assert.Equal(t, model.TransferStatusPending, deps[1].Status)

	wds, err := cfg.ProcessFetchWithdrawals(raw(`{"retCode":0,"result":{"rows":[
		{"coin":"BTC","chain":"BTC","amount":"0.001","toAddress":"bc1qwallet","status":"success","withdrawId":"w1","updateTime":"1700000000000"}]}}`))
	require.NoError(t, err)
	require.Len(t, wds, 1)
	assert.Equal(t, model.TransferStatusSettled, wds[0].Status)
}

func TestValidateCreateMarketOrder_Fractional(t *testing.T) {
	cfg := newConfig(t)
	err := cfg.ValidateCreateMarketOrder(exchange.OrderArgs{
		InstrumentID: "BTCUSD", Side: model.SideSell, Contracts: decimal.RequireFromString("1.5"),
	})
	assert.Equal(t, result.KindMissingParameters, result.KindOf(err))
}

func TestProcessFetchOrder(t *testing.T) {
	cfg := newConfig(t)
	o, err := cfg.ProcessFetchOrder(raw(`{"retCode":0,"result":{"list":[
		{"orderId":"abc","symbol":"BTCUSD","side":"Sell","qty":"100","cumExecQty":"100","avgPrice":"50000","orderStatus":"Filled"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusClosed, o.Status)
	assert.Equal(t, model.SideSell, o.Side)

	_, err = cfg.ProcessFetchOrder(raw(`{"retCode":0,"result":{"list":[]}}`))
	assert.Equal(t, result.KindUnsupportedAPIResponse, result.KindOf(err))
}

func TestProcessSetLeverage_NotModifiedIsOk(t *testing.T) {
	cfg := newConfig(t)
	require.NoError(t, cfg.ProcessSetLeverage(raw(`{"retCode":110043,"retMsg":"leverage not modified","result":{}}`)))
	assert.Error(t, cfg.ProcessSetLeverage(raw(`{"retCode":10001,"retMsg":"bad","result":{}}`)))
}

func TestSetPositionMode_NotSupported(t *testing.T) {
	cfg := newConfig(t)
	err := cfg.ValidateSetPositionMode(exchange.PositionModeArgs{Mode: exchange.PositionModeOneWay})
	assert.Equal(t, result.KindNotSupported, result.KindOf(err))
}
