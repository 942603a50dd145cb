package instrument

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestParse_OKX(t *testing.T) {
	i, err := Parse(ExchangeOKX, "BTC-USD-SWAP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i.Base != "BTC" || i.Quote != "USD" {
		t.Errorf("expected BTC/USD, got %s/%s", i.Base, i.Quote)
	}
	if !i.ContractValueInUsd.Equal(d(100)) {
		t.Errorf("expected contract value 100, got %s", i.ContractValueInUsd)
	}
	if !i.Inverse {
		t.Error("expected inverse instrument")
	}
}

func TestParse_Bybit(t *testing.T) {
	i, err := Parse(ExchangeBybit, "BTCUSD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !i.ContractValueInUsd.Equal(d(1)) {
		t.Errorf("expected contract value 1, got %s", i.ContractValueInUsd)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		exchange string
		id       string
		want     error
	}{
		{ExchangeOKX, "ETH-USD-SWAP", ErrUnsupportedInstrument},
		{ExchangeOKX, "BTC-USDT-SWAP", ErrUnsupportedInstrument},
		{ExchangeOKX, "BTC-USD-250328", ErrUnsupportedInstrument},
		{ExchangeOKX, "", ErrUnsupportedInstrument},
		{ExchangeBybit, "BTCUSDT", ErrUnsupportedInstrument},
		{ExchangeBybit, "BTC-USD-SWAP", ErrUnsupportedInstrument},
		{"kraken", "BTCUSD", ErrUnsupportedExchange},
	}
	for _, tc := range cases {
		_, err := Parse(tc.exchange, tc.id)
		if !errors.Is(err, tc.want) {
			t.Errorf("Parse(%q, %q): expected %v, got %v", tc.exchange, tc.id, tc.want, err)
		}
	}
}

func TestContractsForUsd(t *testing.T) {
	i, _ := Parse(ExchangeOKX, "BTC-USD-SWAP")
	cases := []struct {
		usd  float64
		want float64
	}{
		{0, 0},
		{49, 0},
		{50, 1},
		{98, 1},
		{149, 1},
		{151, 2},
		{-250, 3}, // sign is dropped; the side carries direction
	}
	for _, tc := range cases {
		got := i.ContractsForUsd(d(tc.usd))
		if !got.Equal(d(tc.want)) {
			t.Errorf("ContractsForUsd(%v): expected %v, got %s", tc.usd, tc.want, got)
		}
	}
	if !i.UsdForContracts(d(-3)).Equal(d(300)) {
		t.Errorf("UsdForContracts(-3): expected 300")
	}
}

func TestShortExposureUsd(t *testing.T) {
	i, _ := Parse(ExchangeOKX, "BTC-USD-SWAP")
	if got := i.ShortExposureUsd(d(-3)); !got.Equal(d(300)) {
		t.Errorf("short 3: expected 300, got %s", got)
	}
	if got := i.ShortExposureUsd(d(2)); !got.Equal(d(-200)) {
		t.Errorf("long 2: expected -200, got %s", got)
	}
}

func TestMeetsMinimum(t *testing.T) {
	i, _ := Parse(ExchangeOKX, "BTC-USD-SWAP")
	if i.MeetsMinimum(decimal.Zero) {
		t.Error("zero contracts should not meet minimum")
	}
	if !i.MeetsMinimum(d(1)) {
		t.Error("one contract should meet minimum")
	}
}
