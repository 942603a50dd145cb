package result

import (
	"errors"
	"fmt"
)

// Kind classifies an expected failure.
type Kind string

// Exchange input and response errors.
const (
	KindUnsupportedCurrency    Kind = "UNSUPPORTED_CURRENCY"
	KindUnsupportedAddress     Kind = "UNSUPPORTED_ADDRESS"
	KindUnsupportedInstrument  Kind = "UNSUPPORTED_INSTRUMENT"
	KindNonPositiveQuantity    Kind = "NON_POSITIVE_QUANTITY"
	KindInvalidTradeSide       Kind = "INVALID_TRADE_SIDE"
	KindMissingOrderID         Kind = "MISSING_ORDER_ID"
	KindMissingAccountValue    Kind = "MISSING_ACCOUNT_VALUE"
	KindMissingParameters      Kind = "MISSING_PARAMETERS"
	KindUnsupportedAPIResponse Kind = "UNSUPPORTED_API_RESPONSE"
	KindNotSupported           Kind = "NOT_SUPPORTED"
)

// Ledger errors.
const (
	KindAlreadyExists  Kind = "ALREADY_EXISTS"
	KindDoesNotExist   Kind = "DOES_NOT_EXIST"
	KindAmbiguousState Kind = "AMBIGUOUS_STATE"
	KindStorage        Kind = "STORAGE"
)

// Orchestration errors.
const (
	KindNetwork         Kind = "NETWORK"
	KindWallet          Kind = "WALLET"
	KindOrderUnresolved Kind = "ORDER_UNRESOLVED"
	KindOrderCanceled   Kind = "ORDER_CANCELED"
	KindLimitExceeded   Kind = "LIMIT_EXCEEDED"
	KindUnknown         Kind = "UNKNOWN"
)

// Error is the concrete error carried by Err results.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New builds an *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an *Error with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error target with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind of err, UNKNOWN when err is not an *Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Wrap attaches kind to err unless err already carries a Kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(kind, op, err)
}
