// Package wallet is the boundary to the custodial wallet whose USD balance
// is the liability being hedged.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// Adapter is the custodial wallet. GetWalletUsdBalance returns the signed
// dealer USD balance; the liability is its negation.
type Adapter interface {
	GetWalletUsdBalance(ctx context.Context) result.Result[decimal.Decimal]
	GetWalletOnChainDepositAddress(ctx context.Context) result.Result[string]
	PayOnChain(ctx context.Context, address string, amountInSats int64, memo string) result.Result[struct{}]
}

// Payment is one on-chain payment sent by the wallet.
type Payment struct {
	Address      string `json:"address"`
	AmountInSats int64  `json:"amount_in_sats"`
	Memo         string `json:"memo"`
}
