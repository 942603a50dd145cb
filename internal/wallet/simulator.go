package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// Simulator is a deterministic in-memory wallet. Addresses are generated
// from a counter and every payment is recorded in order.
type Simulator struct {
	mu          sync.Mutex
	usdBalance  decimal.Decimal
	btcSats     int64
	addressSeq  int
	payments    []Payment
	failBalance error
	failAddress error
	failPay     error

	// OnPay, when set, is called after each successful payment.
	OnPay func(Payment)
}

var _ Adapter = (*Simulator)(nil)

// NewSimulator returns a wallet holding usdBalance and btcSats.
func NewSimulator(usdBalance decimal.Decimal, btcSats int64) *Simulator {
	return &Simulator{usdBalance: usdBalance, btcSats: btcSats}
}

// SetUsdBalance replaces the USD balance.
func (s *Simulator) SetUsdBalance(v decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usdBalance = v
}

// SetLiability sets the balance to -liabilityInUsd.
func (s *Simulator) SetLiability(liabilityInUsd decimal.Decimal) {
	s.SetUsdBalance(liabilityInUsd.Neg())
}

// BtcSats returns the on-chain BTC balance.
func (s *Simulator) BtcSats() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.btcSats
}

// Receive credits an incoming on-chain payment.
func (s *Simulator) Receive(sats int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.btcSats += sats
}

// Payments returns a copy of the payments made so far.
func (s *Simulator) Payments() []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Payment(nil), s.payments...)
}

// FailNextBalance makes the next balance query fail with err.
func (s *Simulator) FailNextBalance(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failBalance = err
}

// FailNextAddress makes the next address request fail with err.
func (s *Simulator) FailNextAddress(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAddress = err
}

// FailNextPayment makes the next payment fail with err.
func (s *Simulator) FailNextPayment(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPay = err
}

func (s *Simulator) GetWalletUsdBalance(context.Context) result.Result[decimal.Decimal] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failBalance; err != nil {
		s.failBalance = nil
		return result.Err[decimal.Decimal](result.Wrap(result.KindWallet, "wallet.GetWalletUsdBalance", err))
	}
	return result.Ok(s.usdBalance)
}

func (s *Simulator) GetWalletOnChainDepositAddress(context.Context) result.Result[string] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failAddress; err != nil {
		s.failAddress = nil
		return result.Err[string](result.Wrap(result.KindWallet, "wallet.GetWalletOnChainDepositAddress", err))
	}
	s.addressSeq++
	return result.Ok(fmt.Sprintf("bc1qsimulatedwallet%04d", s.addressSeq))
}

func (s *Simulator) PayOnChain(_ context.Context, address string, amountInSats int64, memo string) result.Result[struct{}] {
	const op = "wallet.PayOnChain"
	if err := exchange.ValidateAddress(op, address); err != nil {
		return result.Err[struct{}](err)
	}
	if err := exchange.ValidateSats(op, amountInSats); err != nil {
		return result.Err[struct{}](err)
	}

	s.mu.Lock()
	if err := s.failPay; err != nil {
		s.failPay = nil
		s.mu.Unlock()
		return result.Err[struct{}](result.Wrap(result.KindWallet, op, err))
	}
	if amountInSats > s.btcSats {
		s.mu.Unlock()
		return result.Err[struct{}](result.Newf(result.KindWallet, op, "insufficient balance: %d < %d sats", s.btcSats, amountInSats))
	}
	p := Payment{Address: address, AmountInSats: amountInSats, Memo: memo}
	s.btcSats -= amountInSats
	s.payments = append(s.payments, p)
	onPay := s.OnPay
	s.mu.Unlock()

	if onPay != nil {
		onPay(p)
	}
	return result.Ok(struct{}{})
}
