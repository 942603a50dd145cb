package exchange

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// Shared input checks used by every Configuration.

func ValidateCurrency(op, currency string) error {
	if currency != Currency {
		return result.Newf(result.KindUnsupportedCurrency, op, "currency %q", currency)
	}
	return nil
}

func ValidateSide(op string, side model.TradeSide) error {
	if !side.Valid() {
		return result.Newf(result.KindInvalidTradeSide, op, "side %q", side)
	}
	return nil
}

func ValidateQuantity(op string, q decimal.Decimal) error {
	if !q.IsPositive() {
		return result.Newf(result.KindNonPositiveQuantity, op, "quantity %s", q)
	}
	return nil
}

func ValidateSats(op string, sats int64) error {
	if sats <= 0 {
		return result.Newf(result.KindNonPositiveQuantity, op, "quantity %d sats", sats)
	}
	return nil
}

// ValidateAddress rejects empty or whitespace-padded addresses.
func ValidateAddress(op, address string) error {
	if address == "" || strings.TrimSpace(address) != address {
		return result.Newf(result.KindUnsupportedAddress, op, "address %q", address)
	}
	return nil
}

func ValidateOrderID(op, id string) error {
	if id == "" {
		return result.New(result.KindMissingOrderID, op, nil)
	}
	return nil
}

// ValidateInstrumentID rejects anything but the configured instrument.
func ValidateInstrumentID(op, want, got string) error {
	if got != want {
		return result.Newf(result.KindUnsupportedInstrument, op, "instrument %q", got)
	}
	return nil
}

// NotSupported is returned by operations a venue does not implement.
func NotSupported(op, venue string) error {
	return result.Newf(result.KindNotSupported, op, "%s", venue)
}

// ResponseError reports a structurally invalid response.
func ResponseError(op, format string, args ...any) error {
	return result.Newf(result.KindUnsupportedAPIResponse, op, format, args...)
}

// Decimal decodes numeric strings, treating "" and null as zero.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	if s == "" || s == "null" {
		d.Decimal = decimal.Zero
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	d.Decimal = v
	return nil
}

// Millis decodes a unix-millisecond timestamp sent as a string or number.
type Millis struct {
	time.Time
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(strings.Trim(string(data), `"`))
	if s == "" || s == "null" {
		m.Time = time.Time{}
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	m.Time = time.UnixMilli(v.IntPart()).UTC()
	return nil
}

// MissingAccountValue reports a balance without total account equity.
func MissingAccountValue(op string) error {
	return result.New(result.KindMissingAccountValue, op, nil)
}

// MissingParameters reports an incomplete request.
func MissingParameters(op, format string, args ...any) error {
	return result.Newf(result.KindMissingParameters, op, format, args...)
}
