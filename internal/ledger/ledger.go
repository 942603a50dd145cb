// Package ledger is the durable record of in-flight fund transfers between
// the wallet and the exchange. A record is inserted before the transfer is
// submitted and marked completed once the transfer settles; records are
// never deleted by the dealer.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

var ErrUnknownBackend = errors.New("ledger: unknown backend")

// Ledger stores InFlightTransfers. At most one pending record exists per
// address.
type Ledger interface {
	// Insert stores a new pending transfer and returns it with ID and
	// timestamps assigned. ALREADY_EXISTS if the address has a pending record.
	Insert(ctx context.Context, t model.InFlightTransfer) result.Result[model.InFlightTransfer]

	// MarkCompleted completes the pending record for address.
	// DOES_NOT_EXIST if there is none.
	MarkCompleted(ctx context.Context, address string) result.Result[model.InFlightTransfer]

	// Settle completes the pending record for address and binds it to the
	// exchange feed entry settlementID. ALREADY_EXISTS if settlementID
	// already completed another record.
	Settle(ctx context.Context, address, settlementID string) result.Result[model.InFlightTransfer]

	// IsSettlementUsed reports whether settlementID completed a record.
	IsSettlementUsed(ctx context.Context, settlementID string) result.Result[bool]

	// GetPending returns pending records, optionally filtered by direction,
	// in insertion order.
	GetPending(ctx context.Context, direction *model.Direction) result.Result[[]model.InFlightTransfer]

	GetAll(ctx context.Context) result.Result[[]model.InFlightTransfer]

	// Clear removes every record.
	Clear(ctx context.Context) result.Result[struct{}]

	Close() error
}

// Settings selects and locates the backing store.
type Settings struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path" json:"path"`
}

// Option configures a ledger.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Open opens the configured backend.
func Open(s Settings, opts ...Option) (Ledger, error) {
	switch strings.ToLower(s.Backend) {
	case "", BackendSQLite:
		return OpenSQLite(s.Path, opts...)
	case BackendBadger:
		return OpenBadger(s.Path, opts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend)
}

// stamp drops the monotonic reading and location so timestamps survive a
// round trip through storage unchanged.
func stamp(t time.Time) time.Time {
	return time.Unix(0, t.UnixNano()).UTC()
}

// completedAt returns a completion time strictly after created.
func completedAt(created, now time.Time) time.Time {
	now = stamp(now)
	if !now.After(created) {
		return created.Add(time.Microsecond)
	}
	return now
}

func validate(op string, t model.InFlightTransfer) error {
	if _, err := model.ParseDirection(string(t.Direction)); err != nil {
		return result.New(result.KindMissingParameters, op, err)
	}
	if t.Address == "" {
		return result.Newf(result.KindUnsupportedAddress, op, "empty address")
	}
	if t.TransferSizeInSats < 0 {
		return result.Newf(result.KindNonPositiveQuantity, op, "transfer size %d", t.TransferSizeInSats)
	}
	return nil
}

func alreadyExists(op, address string) error {
	return result.Newf(result.KindAlreadyExists, op, "pending transfer for %s", address)
}

func settlementUsed(op, settlementID string) error {
	return result.Newf(result.KindAlreadyExists, op, "settlement %s already used", settlementID)
}

func doesNotExist(op, address string) error {
	return result.Newf(result.KindDoesNotExist, op, "no pending transfer for %s", address)
}

func storage(op string, err error) error {
	return result.Wrap(result.KindStorage, op, err)
}
