package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

const (
	defaultBaseURL = "https://api.bybit.com"
	testnetBaseURL = "https://api-testnet.bybit.com"
)

// Client is the signed Bybit v5 REST client.
type Client struct {
	http   *resty.Client
	signer *Signer
	apiKey string
	now    func() time.Time
}

var _ exchange.Client = (*Client)(nil)

// NewClient creates a client from venue settings. Sandbox selects testnet.
func NewClient(s exchange.Settings) *Client {
	baseURL := strings.TrimSuffix(s.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
		if s.Sandbox {
			baseURL = testnetBaseURL
		}
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(s.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	return &Client{
		http:   rc,
		signer: NewSigner(s.APIKey, s.SecretKey),
		apiKey: s.APIKey,
		now:    time.Now,
	}
}

func (c *Client) request(ctx context.Context, payload string) *resty.Request {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	return c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("X-BAPI-API-KEY", c.apiKey).
		SetHeader("X-BAPI-TIMESTAMP", ts).
		SetHeader("X-BAPI-RECV-WINDOW", DefaultRecvWindow).
		SetHeader("X-BAPI-SIGN", c.signer.Sign(ts, DefaultRecvWindow, payload))
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	query := params.Encode()
	r := c.request(ctx, query)
	if query != "" {
		r.SetQueryString(query)
	}
	resp, err := r.Get(path)
	return body(resp, err, http.MethodGet, path)
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "bybit: marshal %s", path)
	}
	resp, err := c.request(ctx, string(data)).
		SetHeader("Content-Type", "application/json").
		SetBody(data).
		Post(path)
	return body(resp, err, http.MethodPost, path)
}

func body(resp *resty.Response, err error, method, path string) (json.RawMessage, error) {
	if err != nil {
		return nil, errors.Wrapf(err, "bybit: %s %s", method, path)
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("bybit: %s %s: http %d: %s", method, path, resp.StatusCode(), resp.String())
	}
	return json.RawMessage(resp.Body()), nil
}

func side(s model.TradeSide) string {
	if s == model.SideBuy {
		return "Buy"
	}
	return "Sell"
}

func (c *Client) FetchTicker(ctx context.Context, instrumentID string) (json.RawMessage, error) {
	return c.get(ctx, "/v5/market/tickers", url.Values{"category": {category}, "symbol": {instrumentID}})
}

func (c *Client) FetchPosition(ctx context.Context, instrumentID string) (json.RawMessage, error) {
	return c.get(ctx, "/v5/position/list", url.Values{"category": {category}, "symbol": {instrumentID}})
}

func (c *Client) FetchBalance(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/v5/account/wallet-balance", url.Values{"accountType": {"CONTRACT"}, "coin": {exchange.Currency}})
}

func (c *Client) FetchDepositAddress(ctx context.Context, args exchange.DepositAddressArgs) (json.RawMessage, error) {
	return c.get(ctx, "/v5/asset/deposit/query-address", url.Values{"coin": {args.Currency}, "chainType": {bitcoinChain}})
}

func transferParams(args exchange.TransfersArgs) url.Values {
	v := url.Values{"coin": {args.Currency}}
	if !args.Since.IsZero() {
		v.Set("startTime", strconv.FormatInt(args.Since.UnixMilli(), 10))
	}
	if args.Limit > 0 {
		v.Set("limit", strconv.Itoa(args.Limit))
	}
	return v
}

func (c *Client) FetchDeposits(ctx context.Context, args exchange.TransfersArgs) (json.RawMessage, error) {
	return c.get(ctx, "/v5/asset/deposit/query-record", transferParams(args))
}

func (c *Client) FetchWithdrawals(ctx context.Context, args exchange.TransfersArgs) (json.RawMessage, error) {
	return c.get(ctx, "/v5/asset/withdraw/query-record", transferParams(args))
}

func (c *Client) CreateMarketOrder(ctx context.Context, args exchange.OrderArgs) (json.RawMessage, error) {
	return c.post(ctx, "/v5/order/create", map[string]string{
		"category":    category,
		"symbol":      args.InstrumentID,
		"side":        side(args.Side),
		"orderType":   "Market",
		"qty":         args.Contracts.String(),
		"orderLinkId": args.ClientOrderID,
	})
}

func (c *Client) FetchOrder(ctx context.Context, args exchange.FetchOrderArgs) (json.RawMessage, error) {
	return c.get(ctx, "/v5/order/realtime", url.Values{
		"category": {category},
		"symbol":   {args.InstrumentID},
		"orderId":  {args.ID},
	})
}

func (c *Client) Withdraw(ctx context.Context, args exchange.WithdrawArgs) (json.RawMessage, error) {
	return c.post(ctx, "/v5/asset/withdraw/create", map[string]any{
		"coin":       args.Currency,
		"chain":      bitcoinChain,
		"address":    args.Address,
		"amount":     model.SatsToBtc(args.QuantityInSats).String(),
		"timestamp":  c.now().UnixMilli(),
		"forceChain": 1,
		"requestId":  args.ClientID,
	})
}

func (c *Client) FetchFundingRate(ctx context.Context, instrumentID string) (json.RawMessage, error) {
	return c.FetchTicker(ctx, instrumentID)
}

func (c *Client) SetLeverage(ctx context.Context, args exchange.LeverageArgs) (json.RawMessage, error) {
	return c.post(ctx, "/v5/position/set-leverage", map[string]string{
		"category":     category,
		"symbol":       args.InstrumentID,
		"buyLeverage":  args.Leverage.String(),
		"sellLeverage": args.Leverage.String(),
	})
}

// SetPositionMode is never reached through the Adapter for inverse
// contracts; the request is kept for completeness of the raw client.
func (c *Client) SetPositionMode(ctx context.Context, args exchange.PositionModeArgs) (json.RawMessage, error) {
	mode := 0
	if args.Mode == exchange.PositionModeHedge {
		mode = 3
	}
	return c.post(ctx, "/v5/position/switch-mode", map[string]any{
		"category": category,
		"symbol":   args.InstrumentID,
		"mode":     mode,
	})
}
