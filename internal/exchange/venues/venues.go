// Package venues builds exchange adapters from venue settings.
package venues

import (
	"fmt"
	"sort"
	"strings"

	"github.com/GaloyMoney/dealer-sub001/internal/exchange"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/bybit"
	"github.com/GaloyMoney/dealer-sub001/internal/exchange/okx"
	"github.com/GaloyMoney/dealer-sub001/internal/instrument"
)

type factory func(exchange.Settings) (*exchange.Adapter, error)

var registry = map[string]factory{
	instrument.ExchangeOKX: func(s exchange.Settings) (*exchange.Adapter, error) {
		cfg, err := okx.NewConfiguration(s.InstrumentID)
		if err != nil {
			return nil, err
		}
		return exchange.NewAdapter(okx.NewClient(s), cfg), nil
	},
	instrument.ExchangeBybit: func(s exchange.Settings) (*exchange.Adapter, error) {
		cfg, err := bybit.NewConfiguration(s.InstrumentID)
		if err != nil {
			return nil, err
		}
		return exchange.NewAdapter(bybit.NewClient(s), cfg), nil
	},
}

// New returns the adapter for s.Name, validating the instrument.
func New(s exchange.Settings) (*exchange.Adapter, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(s.Name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", instrument.ErrUnsupportedExchange, s.Name)
	}
	return f(s)
}

// Names lists the registered venues.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
