package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// Settings configures the GraphQL wallet client. The token comes from the
// environment.
type Settings struct {
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Token   string        `yaml:"-" json:"-" envconfig:"TOKEN"`
}

const (
	walletCurrencyUSD = "USD"
	walletCurrencyBTC = "BTC"
)

const meQuery = `query me {
  me {
    defaultAccount {
      wallets {
        id
        walletCurrency
        balance
      }
    }
  }
}`

const onChainAddressCreate = `mutation onChainAddressCreate($input: OnChainAddressCreateInput!) {
  onChainAddressCreate(input: $input) {
    errors { message }
    address
  }
}`

const onChainPaymentSend = `mutation onChainPaymentSend($input: OnChainPaymentSendInput!) {
  onChainPaymentSend(input: $input) {
    errors { message }
    status
  }
}`

// GraphQLClient is the Galoy wallet API client. Balances are reported in
// the wallet's minor unit (cents for USD).
type GraphQLClient struct {
	http *resty.Client

	mu          sync.Mutex
	btcWalletID string
}

var _ Adapter = (*GraphQLClient)(nil)

// NewGraphQLClient creates a client authenticated with a bearer token.
func NewGraphQLClient(s Settings) *GraphQLClient {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(s.URL, "/")).
		SetTimeout(timeout).
		SetAuthToken(s.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &GraphQLClient{http: rc}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse[T any] struct {
	Data   *T         `json:"data"`
	Errors []gqlError `json:"errors"`
}

type wallets struct {
	Me *struct {
		DefaultAccount struct {
			Wallets []struct {
				ID             string          `json:"id"`
				WalletCurrency string          `json:"walletCurrency"`
				Balance        decimal.Decimal `json:"balance"`
			} `json:"wallets"`
		} `json:"defaultAccount"`
	} `json:"me"`
}

func messages(errs []gqlError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

// do posts one GraphQL operation and decodes data into T. Transport
// failures are NETWORK, GraphQL errors WALLET.
func do[T any](ctx context.Context, c *GraphQLClient, op, query string, vars map[string]any) (T, error) {
	var zero T
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(gqlRequest{Query: query, Variables: vars}).
		Post("")
	if err != nil {
		return zero, result.New(result.KindNetwork, op, errors.Wrap(err, "wallet: graphql request"))
	}
	if resp.StatusCode() != http.StatusOK {
		return zero, result.New(result.KindNetwork, op, errors.Errorf("wallet: http %d: %s", resp.StatusCode(), resp.String()))
	}
	var out gqlResponse[T]
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return zero, result.Newf(result.KindUnsupportedAPIResponse, op, "invalid json: %v", err)
	}
	if len(out.Errors) > 0 {
		return zero, result.Newf(result.KindWallet, op, "%s", messages(out.Errors))
	}
	if out.Data == nil {
		return zero, result.Newf(result.KindUnsupportedAPIResponse, op, "missing data")
	}
	return *out.Data, nil
}

func (c *GraphQLClient) wallets(ctx context.Context, op string) (wallets, error) {
	w, err := do[wallets](ctx, c, op, meQuery, nil)
	if err != nil {
		return w, err
	}
	if w.Me == nil {
		return w, result.Newf(result.KindUnsupportedAPIResponse, op, "missing me")
	}
	return w, nil
}

// GetWalletUsdBalance returns the USD wallet balance in dollars.
func (c *GraphQLClient) GetWalletUsdBalance(ctx context.Context) result.Result[decimal.Decimal] {
	const op = "wallet.GetWalletUsdBalance"
	w, err := c.wallets(ctx, op)
	if err != nil {
		return result.Err[decimal.Decimal](err)
	}
	for _, wl := range w.Me.DefaultAccount.Wallets {
		if wl.WalletCurrency == walletCurrencyUSD {
			return result.Ok(model.CentsToUsd(wl.Balance))
		}
	}
	return result.ErrKind[decimal.Decimal](result.KindUnsupportedAPIResponse, op, errors.New("no USD wallet"))
}

func (c *GraphQLClient) btcWallet(ctx context.Context, op string) (string, error) {
	c.mu.Lock()
	id := c.btcWalletID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}
	w, err := c.wallets(ctx, op)
	if err != nil {
		return "", err
	}
	for _, wl := range w.Me.DefaultAccount.Wallets {
		if wl.WalletCurrency == walletCurrencyBTC && wl.ID != "" {
			c.mu.Lock()
			c.btcWalletID = wl.ID
			c.mu.Unlock()
			return wl.ID, nil
		}
	}
	return "", result.Newf(result.KindUnsupportedAPIResponse, op, "no BTC wallet")
}

type addressPayload struct {
	OnChainAddressCreate struct {
		Errors  []gqlError `json:"errors"`
		Address string     `json:"address"`
	} `json:"onChainAddressCreate"`
}

// GetWalletOnChainDepositAddress creates a fresh address on the BTC wallet.
func (c *GraphQLClient) GetWalletOnChainDepositAddress(ctx context.Context) result.Result[string] {
	const op = "wallet.GetWalletOnChainDepositAddress"
	id, err := c.btcWallet(ctx, op)
	if err != nil {
		return result.Err[string](err)
	}
	out, err := do[addressPayload](ctx, c, op, onChainAddressCreate, map[string]any{
		"input": map[string]any{"walletId": id},
	})
	if err != nil {
		return result.Err[string](err)
	}
	p := out.OnChainAddressCreate
	if len(p.Errors) > 0 {
		return result.ErrKind[string](result.KindWallet, op, errors.New(messages(p.Errors)))
	}
	if p.Address == "" {
		return result.ErrKind[string](result.KindUnsupportedAPIResponse, op, errors.New("missing address"))
	}
	return result.Ok(p.Address)
}

type paymentPayload struct {
	OnChainPaymentSend struct {
		Errors []gqlError `json:"errors"`
		Status string     `json:"status"`
	} `json:"onChainPaymentSend"`
}

// PayOnChain sends amountInSats from the BTC wallet to address.
func (c *GraphQLClient) PayOnChain(ctx context.Context, address string, amountInSats int64, memo string) result.Result[struct{}] {
	const op = "wallet.PayOnChain"
	if address == "" {
		return result.ErrKind[struct{}](result.KindUnsupportedAddress, op, nil)
	}
	if amountInSats <= 0 {
		return result.ErrKind[struct{}](result.KindNonPositiveQuantity, op, nil)
	}
	id, err := c.btcWallet(ctx, op)
	if err != nil {
		return result.Err[struct{}](err)
	}
	out, err := do[paymentPayload](ctx, c, op, onChainPaymentSend, map[string]any{
		"input": map[string]any{
			"walletId": id,
			"address":  address,
			"amount":   amountInSats,
			"memo":     memo,
		},
	})
	if err != nil {
		return result.Err[struct{}](err)
	}
	p := out.OnChainPaymentSend
	if len(p.Errors) > 0 {
		return result.ErrKind[struct{}](result.KindWallet, op, errors.New(messages(p.Errors)))
	}
	if p.Status != "SUCCESS" && p.Status != "PENDING" {
		return result.ErrKind[struct{}](result.KindWallet, op, errors.Errorf("payment status %q", p.Status))
	}
	return result.Ok(struct{}{})
}
