package okx

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

const defaultBaseURL = "https://www.okx.com"

// Client is the signed OKX v5 REST client.
type Client struct {
	http       *resty.Client
	signer     *Signer
	apiKey     string
	passphrase string
	sandbox    bool
	now        func() time.Time
}

var _ exchange.Client = (*Client)(nil)

// NewClient creates a client from venue settings. Only GET requests are
// retried; order and withdrawal submissions are sent once.
func NewClient(s exchange.Settings) *Client {
	baseURL := strings.TrimSuffix(s.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
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
		http:       rc,
		signer:     NewSigner(s.SecretKey),
		apiKey:     s.APIKey,
		passphrase: s.Passphrase,
		sandbox:    s.Sandbox,
		now:        time.Now,
	}
}

func (c *Client) request(ctx context.Context) (*resty.Request, string) {
	ts := Timestamp(c.now())
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("OK-ACCESS-KEY", c.apiKey).
		SetHeader("OK-ACCESS-PASSPHRASE", c.passphrase).
		SetHeader("OK-ACCESS-TIMESTAMP", ts)
	if c.sandbox {
		r.SetHeader("x-simulated-trading", "1")
	}
	return r, ts
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	requestPath := path
	query := params.Encode()
	if query != "" {
		requestPath += "?" + query
	}
	r, ts := c.request(ctx)
	r.SetHeader("OK-ACCESS-SIGN", c.signer.Sign(ts, http.MethodGet, requestPath, ""))
	if query != "" {
		r.SetQueryString(query)
	}
	resp, err := r.Get(path)
	return body(resp, err, http.MethodGet, path)
}

func (c *Client) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "okx: marshal %s", path)
	}
	r, ts := c.request(ctx)
	r.SetHeader("Content-Type", "application/json").
		SetHeader("OK-ACCESS-SIGN", c.signer.Sign(ts, http.MethodPost, path, string(data))).
		SetBody(data)
	resp, err := r.Post(path)
	return body(resp, err, http.MethodPost, path)
}

func body(resp *resty.Response, err error, method, path string) (json.RawMessage, error) {
	if err != nil {
		return nil, errors.Wrapf(err, "okx: %s %s", method, path)
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("okx: %s %s: http %d: %s", method, path, resp.StatusCode(), resp.String())
	}
	return json.RawMessage(resp.Body()), nil
}

func (c *Client) FetchTicker(ctx context.Context, instrumentID string) (json.RawMessage, error) {
	return c.get(ctx, "/api/v5/market/ticker", url.Values{"instId": {instrumentID}})
}

func (c *Client) FetchPosition(ctx context.Context, instrumentID string) (json.RawMessage, error) {
	return c.get(ctx, "/api/v5/account/positions", url.Values{"instId": {instrumentID}})
}

func (c *Client) FetchBalance(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/api/v5/account/balance", url.Values{"ccy": {exchange.Currency}})
}

func (c *Client) FetchDepositAddress(ctx context.Context, args exchange.DepositAddressArgs) (json.RawMessage, error) {
	return c.get(ctx, "/api/v5/asset/deposit-address", url.Values{"ccy": {args.Currency}})
}

func transferParams(args exchange.TransfersArgs) url.Values {
	v := url.Values{"ccy": {args.Currency}}
	if !args.Since.IsZero() {
		// "before" returns records newer than the timestamp.
		v.Set("before", strconv.FormatInt(args.Since.UnixMilli(), 10))
	}
	if args.Limit > 0 {
		v.Set("limit", strconv.Itoa(args.Limit))
	}
	return v
}

func (c *Client) FetchDeposits(ctx context.Context, args exchange.TransfersArgs) (json.RawMessage, error) {
	return c.get(ctx, "/api/v5/asset/deposit-history", transferParams(args))
}

func (c *Client) FetchWithdrawals(ctx context.Context, args exchange.TransfersArgs) (json.RawMessage, error) {
	return c.get(ctx, "/api/v5/asset/withdrawal-history", transferParams(args))
}

type orderRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	ClOrdID string `json:"clOrdId,omitempty"`
}

func (c *Client) CreateMarketOrder(ctx context.Context, args exchange.OrderArgs) (json.RawMessage, error) {
	return c.post(ctx, "/api/v5/trade/order", orderRequest{
		InstID:  args.InstrumentID,
		TdMode:  tradeModeCross,
		Side:    string(args.Side),
		OrdType: orderTypeMkt,
		Sz:      args.Contracts.String(),
		ClOrdID: args.ClientOrderID,
	})
}

func (c *Client) FetchOrder(ctx context.Context, args exchange.FetchOrderArgs) (json.RawMessage, error) {
	return c.get(ctx, "/api/v5/trade/order", url.Values{"instId": {args.InstrumentID}, "ordId": {args.ID}})
}

type withdrawRequest struct {
	Ccy      string `json:"ccy"`
	Amt      string `json:"amt"`
	Dest     string `json:"dest"`
	ToAddr   string `json:"toAddr"`
	Fee      string `json:"fee"`
	Chain    string `json:"chain"`
	ClientID string `json:"clientId,omitempty"`
}

func (c *Client) Withdraw(ctx context.Context, args exchange.WithdrawArgs) (json.RawMessage, error) {
	return c.post(ctx, "/api/v5/asset/withdrawal", withdrawRequest{
		Ccy:      args.Currency,
		Amt:      model.SatsToBtc(args.QuantityInSats).String(),
		Dest:     destOnChain,
		ToAddr:   args.Address,
		Fee:      args.FeeInBtc.String(),
		Chain:    BitcoinChain,
		ClientID: args.ClientID,
	})
}

func (c *Client) FetchFundingRate(ctx context.Context, instrumentID string) (json.RawMessage, error) {
	return c.get(ctx, "/api/v5/public/funding-rate", url.Values{"instId": {instrumentID}})
}

func (c *Client) SetLeverage(ctx context.Context, args exchange.LeverageArgs) (json.RawMessage, error) {
	return c.post(ctx, "/api/v5/account/set-leverage", map[string]string{
		"instId":  args.InstrumentID,
		"lever":   args.Leverage.String(),
		"mgnMode": tradeModeCross,
	})
}

func (c *Client) SetPositionMode(ctx context.Context, args exchange.PositionModeArgs) (json.RawMessage, error) {
	return c.post(ctx, "/api/v5/account/set-position-mode", map[string]string{
		"posMode": string(args.Mode),
	})
}
