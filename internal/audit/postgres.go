package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore implements Store on PostgreSQL. All monetary values are
// stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dealer_orders (
		id                TEXT PRIMARY KEY,
		cycle_id          TEXT NOT NULL,
		exchange          TEXT NOT NULL,
		instrument_id     TEXT NOT NULL,
		exchange_order_id TEXT NOT NULL,
		client_order_id   TEXT NOT NULL,
		side              TEXT NOT NULL,
		contracts         NUMERIC NOT NULL,
		filled_contracts  NUMERIC NOT NULL,
		avg_price         NUMERIC NOT NULL,
		status            TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dealer_transfers (
		id             TEXT PRIMARY KEY,
		cycle_id       TEXT NOT NULL,
		transfer_id    BIGINT NOT NULL,
		direction      TEXT NOT NULL,
		address        TEXT NOT NULL,
		amount_in_sats BIGINT NOT NULL,
		memo           TEXT NOT NULL,
		event          TEXT NOT NULL,
		detail         TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dealer_funding_rates (
		id            TEXT PRIMARY KEY,
		exchange      TEXT NOT NULL,
		instrument_id TEXT NOT NULL,
		rate          NUMERIC NOT NULL,
		funding_time  TIMESTAMPTZ NOT NULL,
		recorded_at   TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the audit tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("audit: migrate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) RecordOrder(ctx context.Context, r OrderRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dealer_orders (id, cycle_id, exchange, instrument_id, exchange_order_id, client_order_id,
		                            side, contracts, filled_contracts, avg_price, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11, $12)`,
		r.ID, r.CycleID, r.Exchange, r.InstrumentID, r.ExchangeOrderID, r.ClientOrderID,
		string(r.Side), r.Contracts.String(), r.FilledContracts.String(), r.AvgPrice.String(),
		string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record order %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecordTransfer(ctx context.Context, r TransferRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dealer_transfers (id, cycle_id, transfer_id, direction, address, amount_in_sats, memo, event, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.CycleID, r.TransferID, string(r.Direction), r.Address, r.AmountInSats,
		r.Memo, string(r.Event), r.Detail, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record transfer %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecordFundingRate(ctx context.Context, r FundingRateRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dealer_funding_rates (id, exchange, instrument_id, rate, funding_time, recorded_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`,
		r.ID, r.Exchange, r.InstrumentID, r.Rate.String(), r.FundingTime, r.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("record funding rate %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, cycle_id, exchange, instrument_id, exchange_order_id, client_order_id,
		        side, contracts::TEXT, filled_contracts::TEXT, avg_price::TEXT, status, created_at
		 FROM dealer_orders ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []OrderRecord
	for rows.Next() {
		var r OrderRecord
		var contracts, filled, avgPrice string
		if err := rows.Scan(&r.ID, &r.CycleID, &r.Exchange, &r.InstrumentID, &r.ExchangeOrderID, &r.ClientOrderID,
			&r.Side, &contracts, &filled, &avgPrice, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Contracts, _ = decimal.NewFromString(contracts)
		r.FilledContracts, _ = decimal.NewFromString(filled)
		r.AvgPrice, _ = decimal.NewFromString(avgPrice)
		orders = append(orders, r)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) ListTransfers(ctx context.Context, limit int) ([]TransferRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, cycle_id, transfer_id, direction, address, amount_in_sats, memo, event, detail, created_at
		 FROM dealer_transfers ORDER BY created_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []TransferRecord
	for rows.Next() {
		var r TransferRecord
		if err := rows.Scan(&r.ID, &r.CycleID, &r.TransferID, &r.Direction, &r.Address, &r.AmountInSats,
			&r.Memo, &r.Event, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, r)
	}
	return transfers, rows.Err()
}

func (s *PostgresStore) ListFundingRates(ctx context.Context, limit int) ([]FundingRateRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, exchange, instrument_id, rate::TEXT, funding_time, recorded_at
		 FROM dealer_funding_rates ORDER BY recorded_at DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []FundingRateRecord
	for rows.Next() {
		var r FundingRateRecord
		var rate string
		if err := rows.Scan(&r.ID, &r.Exchange, &r.InstrumentID, &rate, &r.FundingTime, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Rate, _ = decimal.NewFromString(rate)
		rates = append(rates, r)
	}
	return rates, rows.Err()
}
