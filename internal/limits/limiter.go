// Package limits enforces per-cycle caps on the size of hedge orders and
// collateral transfers.
//
// The dealer sizes orders and transfers from exchange and wallet data. A
// malformed response or a bad configuration could produce a hedge far larger
// than intended, so every order and transfer is checked against a hard cap
// before it leaves the process.
package limits

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

var (
	// ErrOrderLimitExceeded is returned when an order is larger than
	// MaxOrderContracts.
	ErrOrderLimitExceeded = result.New(result.KindLimitExceeded, "limits.CheckOrder", nil)

	// ErrTransferLimitExceeded is returned when a transfer is larger than
	// MaxTransferSats.
	ErrTransferLimitExceeded = result.New(result.KindLimitExceeded, "limits.CheckTransfer", nil)
)

// TransferLimiter caps single orders and transfers. A zero cap disables the
// check.
type TransferLimiter struct {
	// MaxOrderContracts is the largest order the dealer will place.
	MaxOrderContracts decimal.Decimal

	// MaxTransferSats is the largest deposit or withdrawal the dealer will
	// initiate.
	MaxTransferSats int64
}

// NewTransferLimiter creates a limiter. Negative caps are treated as zero.
func NewTransferLimiter(maxOrderContracts decimal.Decimal, maxTransferSats int64) *TransferLimiter {
	if maxOrderContracts.IsNegative() {
		maxOrderContracts = decimal.Zero
	}
	if maxTransferSats < 0 {
		maxTransferSats = 0
	}
	return &TransferLimiter{
		MaxOrderContracts: maxOrderContracts,
		MaxTransferSats:   maxTransferSats,
	}
}

// CheckOrder validates the size of an order in contracts.
func (l *TransferLimiter) CheckOrder(contracts decimal.Decimal) error {
	if l == nil || l.MaxOrderContracts.IsZero() {
		return nil
	}
	if contracts.Abs().GreaterThan(l.MaxOrderContracts) {
		return fmt.Errorf("%w: %s contracts > %s", ErrOrderLimitExceeded,
			contracts.Abs(), l.MaxOrderContracts)
	}
	return nil
}

// CheckTransfer validates the size of a transfer in satoshis.
func (l *TransferLimiter) CheckTransfer(sats int64) error {
	if l == nil || l.MaxTransferSats == 0 {
		return nil
	}
	if sats < 0 {
		sats = -sats
	}
	if sats > l.MaxTransferSats {
		return fmt.Errorf("%w: %d sats > %d", ErrTransferLimitExceeded, sats, l.MaxTransferSats)
	}
	return nil
}
