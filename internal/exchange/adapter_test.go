package exchange_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/exchangetest"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/okx"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

const instID = "BTC-USD-SWAP"

func newAdapter(t *testing.T) (*exchange.Adapter, *exchangetest.Venue) {
	t.Helper()
	cfg, err := okx.NewConfiguration(instID)
	require.NoError(t, err)
	v := exchangetest.NewVenue(decimal.NewFromInt(50000))
	return exchange.NewAdapter(v, cfg), v
}

func TestAdapter_FetchTicker(t *testing.T) {
	a, _ := newAdapter(t)
	r := a.FetchTicker(context.Background())
	require.True(t, r.OK(), "%v", r.Error())
	assert.True(t, r.Value().Price().Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, "okx", a.Name())
}

func TestAdapter_TransportErrorIsNetwork(t *testing.T) {
	a, v := newAdapter(t)
	v.Fail(exchangetest.MethodFetchPosition, errors.New("connection reset"))
	r := a.FetchPosition(context.Background())
	require.False(t, r.OK())
	assert.Equal(t, result.KindNetwork, r.Kind())

	// The failure is consumed; the next call succeeds.
	assert.True(t, a.FetchPosition(context.Background()).OK())
	assert.Equal(t, 2, v.Calls(exchangetest.MethodFetchPosition))
}

func TestAdapter_BadResponseIsUnsupported(t *testing.T) {
	a, v := newAdapter(t)
	v.Respond(exchangetest.MethodFetchTicker, `{"code":"50011","msg":"rate limited","data":[]}`)
	r := a.FetchTicker(context.Background())
	assert.Equal(t, result.KindUnsupportedAPIResponse, r.Kind())
}

func TestAdapter_MissingAccountValueKeepsKind(t *testing.T) {
	a, v := newAdapter(t)
	v.Respond(exchangetest.MethodFetchBalance, `{"code":"0","msg":"","data":[{"totalEq":"","details":[]}]}`)
	r := a.FetchBalance(context.Background())
	assert.Equal(t, result.KindMissingAccountValue, r.Kind())
}

func TestAdapter_ValidationSkipsCall(t *testing.T) {
	a, v := newAdapter(t)
	tests := []struct {
		name string
		args exchange.OrderArgs
		kind result.Kind
	}{
		{"zero quantity", exchange.OrderArgs{InstrumentID: instID, Side: model.SideSell}, result.KindNonPositiveQuantity},
		{"bad side", exchange.OrderArgs{InstrumentID: instID, Side: "hold", Contracts: decimal.NewFromInt(1)}, result.KindInvalidTradeSide},
		{"wrong instrument", exchange.OrderArgs{InstrumentID: "ETH-USD-SWAP", Side: model.SideBuy, Contracts: decimal.NewFromInt(1)}, result.KindUnsupportedInstrument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := a.CreateMarketOrder(context.Background(), tt.args)
			assert.Equal(t, tt.kind, r.Kind())
		})
	}
	assert.Equal(t, 0, v.Calls(exchangetest.MethodCreateMarketOrder))
}

func TestAdapter_OrderRoundTrip(t *testing.T) {
	a, v := newAdapter(t)
	ctx := context.Background()
	id := a.CreateMarketOrder(ctx, exchange.OrderArgs{
		InstrumentID: instID, Side: model.SideSell, Contracts: decimal.NewFromInt(3), ClientOrderID: "c1",
	})
	require.True(t, id.OK(), "%v", id.Error())

	o := a.FetchOrder(ctx, exchange.FetchOrderArgs{ID: id.Value(), InstrumentID: instID})
	require.True(t, o.OK(), "%v", o.Error())
	assert.Equal(t, model.OrderStatusClosed, o.Value().Status)
	assert.True(t, v.Contracts().Equal(decimal.NewFromInt(-3)))

	missing := a.FetchOrder(ctx, exchange.FetchOrderArgs{InstrumentID: instID})
	assert.Equal(t, result.KindMissingOrderID, missing.Kind())
}

func TestAdapter_WithdrawAndFeed(t *testing.T) {
	a, v := newAdapter(t)
	v.SetBtcEquity(decimal.RequireFromString("0.01"))
	ctx := context.Background()

	bad := a.Withdraw(ctx, exchange.WithdrawArgs{Currency: "ETH", QuantityInSats: 1, Address: "bc1q"})
	assert.Equal(t, result.KindUnsupportedCurrency, bad.Kind())

	r := a.Withdraw(ctx, exchange.WithdrawArgs{Currency: exchange.Currency, QuantityInSats: 50_000, Address: "bc1qwallet"})
	require.True(t, r.OK(), "%v", r.Error())

	feed := a.FetchWithdrawals(ctx, exchange.TransfersArgs{Currency: exchange.Currency})
	require.True(t, feed.OK(), "%v", feed.Error())
	require.Len(t, feed.Value(), 1)
	assert.Equal(t, "bc1qwallet", feed.Value()[0].Address)
	assert.Equal(t, int64(50_000), feed.Value()[0].AmountInSats)
	assert.Equal(t, model.TransferStatusSettled, feed.Value()[0].Status)
	assert.True(t, v.BtcEquity().Equal(decimal.RequireFromString("0.0095")))
}

func TestAdapter_AccountConfiguration(t *testing.T) {
	a, _ := newAdapter(t)
	ctx := context.Background()
	assert.True(t, a.SetLeverage(ctx, exchange.LeverageArgs{InstrumentID: instID, Leverage: decimal.NewFromInt(3)}).OK())
	assert.True(t, a.SetPositionMode(ctx, exchange.PositionModeArgs{Mode: exchange.PositionModeOneWay}).OK())
	assert.Equal(t, result.KindMissingParameters,
		a.SetPositionMode(ctx, exchange.PositionModeArgs{Mode: "sideways"}).Kind())
}
