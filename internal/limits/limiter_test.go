package limits

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCheckOrder_WithinLimit(t *testing.T) {
	l := NewTransferLimiter(d(50), 0)
	if err := l.CheckOrder(d(50)); err != nil {
		t.Errorf("expected no error at the cap, got %v", err)
	}
	if err := l.CheckOrder(d(-50)); err != nil {
		t.Errorf("expected no error for a buy at the cap, got %v", err)
	}
}

func TestCheckOrder_Exceeded(t *testing.T) {
	l := NewTransferLimiter(d(50), 0)
	err := l.CheckOrder(d(51))
	if !errors.Is(err, ErrOrderLimitExceeded) {
		t.Fatalf("expected ErrOrderLimitExceeded, got %v", err)
	}
	if result.KindOf(err) != result.KindLimitExceeded {
		t.Errorf("expected LIMIT_EXCEEDED, got %s", result.KindOf(err))
	}
}

func TestCheckTransfer(t *testing.T) {
	l := NewTransferLimiter(decimal.Zero, 1_000_000)
	if err := l.CheckTransfer(1_000_000); err != nil {
		t.Errorf("expected no error at the cap, got %v", err)
	}
	if err := l.CheckTransfer(1_000_001); !errors.Is(err, ErrTransferLimitExceeded) {
		t.Errorf("expected ErrTransferLimitExceeded, got %v", err)
	}
}

func TestZeroDisablesCaps(t *testing.T) {
	l := NewTransferLimiter(decimal.Zero, 0)
	if err := l.CheckOrder(d(1e9)); err != nil {
		t.Errorf("zero order cap should disable check, got %v", err)
	}
	if err := l.CheckTransfer(1 << 60); err != nil {
		t.Errorf("zero transfer cap should disable check, got %v", err)
	}

	var nilLimiter *TransferLimiter
	if err := nilLimiter.CheckOrder(d(1)); err != nil {
		t.Errorf("nil limiter should allow everything, got %v", err)
	}
}

func TestNegativeCapsClamp(t *testing.T) {
	l := NewTransferLimiter(d(-1), -5)
	if !l.MaxOrderContracts.IsZero() || l.MaxTransferSats != 0 {
		t.Errorf("negative caps should clamp to zero, got %s/%d", l.MaxOrderContracts, l.MaxTransferSats)
	}
}
