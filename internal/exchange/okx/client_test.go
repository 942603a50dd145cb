package okx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(exchange.Settings{
		BaseURL:    srv.URL,
		APIKey:     "key",
		SecretKey:  "secret",
		Passphrase: "pass",
		Sandbox:    true,
	})
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestSigner_KnownVector(t *testing.T) {
	s := NewSigner("secret")
	// Same input always yields the same signature; different paths differ.
	a := s.Sign("2024-03-01T12:00:00.000Z", "GET", "/api/v5/account/balance?ccy=BTC", "")
	b := s.Sign("2024-03-01T12:00:00.000Z", "GET", "/api/v5/account/balance?ccy=BTC", "")
	c := s.Sign("2024-03-01T12:00:00.000Z", "GET", "/api/v5/account/balance", "")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", Timestamp(fixedNow))
}

func TestClient_GetSignsPathAndQuery(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte(`{"code":"0","data":[]}`))
	})

	body, err := c.FetchTicker(context.Background(), "BTC-USD-SWAP")
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"0","data":[]}`, string(body))

	require.NotNil(t, got)
	assert.Equal(t, "/api/v5/market/ticker", got.URL.Path)
	assert.Equal(t, "BTC-USD-SWAP", got.URL.Query().Get("instId"))
	assert.Equal(t, "key", got.Header.Get("OK-ACCESS-KEY"))
	assert.Equal(t, "pass", got.Header.Get("OK-ACCESS-PASSPHRASE"))
	assert.Equal(t, "2024-03-01T12:00:00.000Z", got.Header.Get("OK-ACCESS-TIMESTAMP"))
	assert.Equal(t, "1", got.Header.Get("x-simulated-trading"))

	want := NewSigner("secret").Sign("2024-03-01T12:00:00.000Z", "GET", "/api/v5/market/ticker?instId=BTC-USD-SWAP", "")
	assert.Equal(t, want, got.Header.Get("OK-ACCESS-SIGN"))
}

func TestClient_PostSignsBody(t *testing.T) {
	var gotBody []byte
	var gotSign string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSign = r.Header.Get("OK-ACCESS-SIGN")
		w.Write([]byte(`{"code":"0","data":[{"ordId":"1","sCode":"0"}]}`))
	})

	_, err := c.CreateMarketOrder(context.Background(), exchange.OrderArgs{
		InstrumentID:  "BTC-USD-SWAP",
		Side:          model.SideSell,
		Contracts:     decimal.NewFromInt(2),
		ClientOrderID: "dealer1",
	})
	require.NoError(t, err)

	var req map[string]string
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, "sell", req["side"])
	assert.Equal(t, "market", req["ordType"])
	assert.Equal(t, "cross", req["tdMode"])
	assert.Equal(t, "2", req["sz"])

	want := NewSigner("secret").Sign("2024-03-01T12:00:00.000Z", "POST", "/api/v5/trade/order", string(gotBody))
	assert.Equal(t, want, gotSign)
}

func TestClient_WithdrawPayload(t *testing.T) {
	var req map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"code":"0","data":[{"wdId":"1"}]}`))
	})
	_, err := c.Withdraw(context.Background(), exchange.WithdrawArgs{
		Currency:       "BTC",
		QuantityInSats: 150_000,
		Address:        "bc1qwallet",
		FeeInBtc:       decimal.RequireFromString("0.0002"),
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0015", req["amt"])
	assert.Equal(t, "4", req["dest"])
	assert.Equal(t, "BTC-Bitcoin", req["chain"])
	assert.Equal(t, "0.0002", req["fee"])
}

func TestClient_NonSuccessStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"50113","msg":"Invalid Sign"}`))
	})
	_, err := c.FetchBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_TransferParams(t *testing.T) {
	since := time.UnixMilli(1700000000000)
	v := transferParams(exchange.TransfersArgs{Currency: "BTC", Since: since, Limit: 50})
	assert.Equal(t, "BTC", v.Get("ccy"))
	assert.Equal(t, "1700000000000", v.Get("before"))
	assert.Equal(t, "50", v.Get("limit"))
}
