package bybit

import (
	"context"
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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(exchange.Settings{BaseURL: srv.URL, APIKey: "key", SecretKey: "secret"})
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestClient_GetSignsQuery(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte(`{"retCode":0,"result":{"list":[]}}`))
	})
	_, err := c.FetchPosition(context.Background(), "BTCUSD")
	require.NoError(t, err)

	assert.Equal(t, "/v5/position/list", got.URL.Path)
	assert.Equal(t, "1700000000000", got.Header.Get("X-BAPI-TIMESTAMP"))
	want := NewSigner("key", "secret").Sign("1700000000000", DefaultRecvWindow, "category=inverse&symbol=BTCUSD")
	assert.Equal(t, want, got.Header.Get("X-BAPI-SIGN"))
}

func TestClient_PostSignsBody(t *testing.T) {
	var body []byte
	var sign string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sign = r.Header.Get("X-BAPI-SIGN")
		w.Write([]byte(`{"retCode":0,"result":{"orderId":"1"}}`))
	})
	_, err := c.CreateMarketOrder(context.Background(), exchange.OrderArgs{
		InstrumentID: "BTCUSD", Side: model.SideBuy, Contracts: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"side":"Buy"`)
	assert.Equal(t, NewSigner("key", "secret").Sign("1700000000000", DefaultRecvWindow, string(body)), sign)
}
