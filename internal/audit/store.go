// Package audit keeps an append-only history of what the dealer did:
// orders placed, transfers initiated or completed, and observed funding
// rates. Implementations include PostgreSQL and in-memory (for testing and
// single-node development).
package audit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GaloyMoney/dealer-sub001/internal/model"
)

// DefaultListLimit caps List queries when no limit is given.
const DefaultListLimit = 100

// TransferEvent is the lifecycle step a TransferRecord describes.
type TransferEvent string

const (
	TransferInitiated TransferEvent = "initiated"
	TransferCompleted TransferEvent = "completed"
	TransferFailed    TransferEvent = "failed"
)

// OrderRecord is one market order placed during a cycle.
type OrderRecord struct {
	ID              string            `json:"id"`
	CycleID         string            `json:"cycle_id"`
	Exchange        string            `json:"exchange"`
	InstrumentID    string            `json:"instrument_id"`
	ExchangeOrderID string            `json:"exchange_order_id"`
	ClientOrderID   string            `json:"client_order_id"`
	Side            model.TradeSide   `json:"side"`
	Contracts       decimal.Decimal   `json:"contracts"`
	FilledContracts decimal.Decimal   `json:"filled_contracts"`
	AvgPrice        decimal.Decimal   `json:"avg_price"`
	Status          model.OrderStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

// TransferRecord is one step in the life of an InFlightTransfer.
type TransferRecord struct {
	ID           string          `json:"id"`
	CycleID      string          `json:"cycle_id"`
	TransferID   int64           `json:"transfer_id"`
	Direction    model.Direction `json:"direction"`
	Address      string          `json:"address"`
	AmountInSats int64           `json:"amount_in_sats"`
	Memo         string          `json:"memo"`
	Event        TransferEvent   `json:"event"`
	Detail       string          `json:"detail,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// FundingRateRecord is a funding rate observed at the start of a cycle.
type FundingRateRecord struct {
	ID           string          `json:"id"`
	Exchange     string          `json:"exchange"`
	InstrumentID string          `json:"instrument_id"`
	Rate         decimal.Decimal `json:"rate"`
	FundingTime  time.Time       `json:"funding_time"`
	RecordedAt   time.Time       `json:"recorded_at"`
}

// Store is the audit persistence interface. Records are never updated.
type Store interface {
	// RecordOrder appends an order record.
	RecordOrder(ctx context.Context, r OrderRecord) error

	// RecordTransfer appends a transfer lifecycle record.
	RecordTransfer(ctx context.Context, r TransferRecord) error

	// RecordFundingRate appends a funding rate observation.
	RecordFundingRate(ctx context.Context, r FundingRateRecord) error

	// ListOrders returns up to limit orders, newest first.
	ListOrders(ctx context.Context, limit int) ([]OrderRecord, error)

	// ListTransfers returns up to limit transfer records, newest first.
	ListTransfers(ctx context.Context, limit int) ([]TransferRecord, error)

	// ListFundingRates returns up to limit funding observations, newest first.
	ListFundingRates(ctx context.Context, limit int) ([]FundingRateRecord, error)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 10*DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
