package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestNewPosition_Leverage(t *testing.T) {
	p := NewPosition(d(50), d(100), d(50))
	if !p.Leverage.Equal(d(2)) {
		t.Errorf("expected leverage 2, got %s", p.Leverage)
	}

	flat := NewPosition(decimal.Zero, d(100), decimal.Zero)
	if !flat.Leverage.IsZero() {
		t.Errorf("leverage without collateral should be 0, got %s", flat.Leverage)
	}
}

func TestSatsConversions(t *testing.T) {
	tests := []struct {
		btc  float64
		sats int64
	}{
		{0, 0},
		{1, 100_000_000},
		{0.002, 200_000},
		{0.00000001, 1},
	}
	for _, tt := range tests {
		if got := BtcToSats(d(tt.btc)); got != tt.sats {
			t.Errorf("BtcToSats(%v) = %d, want %d", tt.btc, got, tt.sats)
		}
		if got := SatsToBtc(tt.sats); !got.Equal(d(tt.btc)) {
			t.Errorf("SatsToBtc(%d) = %s, want %v", tt.sats, got, tt.btc)
		}
	}

	// Half a sat rounds away from zero.
	if got := BtcToSats(d(0.000000015)); got != 2 {
		t.Errorf("expected 2 sats, got %d", got)
	}
}

func TestUsdConversions(t *testing.T) {
	price := d(50000)
	if got := UsdToSats(d(100), price); got != 200_000 {
		t.Errorf("UsdToSats = %d, want 200000", got)
	}
	if got := UsdToSats(d(100), decimal.Zero); got != 0 {
		t.Errorf("UsdToSats at zero price = %d, want 0", got)
	}
	if got := SatsToUsd(200_000, price); !got.Equal(d(100)) {
		t.Errorf("SatsToUsd = %s, want 100", got)
	}
	if got := UsdToCents(d(1.25)); !got.Equal(d(125)) {
		t.Errorf("UsdToCents = %s", got)
	}
	if got := CentsToUsd(d(125)); !got.Equal(d(1.25)) {
		t.Errorf("CentsToUsd = %s", got)
	}
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"DEPOSIT_ON_EXCHANGE", "WITHDRAW_TO_WALLET"} {
		if _, err := ParseDirection(s); err != nil {
			t.Errorf("ParseDirection(%q): %v", s, err)
		}
	}
	if _, err := ParseDirection("deposit"); err == nil {
		t.Error("expected error for unknown direction")
	}
}

func TestTickerPrice(t *testing.T) {
	tk := Ticker{Bid: d(99), Ask: d(101)}
	if !tk.Price().Equal(d(100)) {
		t.Errorf("price without last should be mid, got %s", tk.Price())
	}
	tk.Last = d(100.5)
	if !tk.Price().Equal(d(100.5)) {
		t.Errorf("price should prefer last, got %s", tk.Price())
	}
	if !OrderStatusClosed.Terminal() || OrderStatusOpen.Terminal() {
		t.Error("unexpected terminal states")
	}
}
