package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

var sqliteSchema = []string{
	`PRAGMA journal_mode=WAL;`,
	`PRAGMA synchronous=FULL;`,
	`
CREATE TABLE IF NOT EXISTS in_flight_transfers (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  direction TEXT NOT NULL,
  address TEXT NOT NULL,
  transfer_size_in_sats INTEGER NOT NULL CHECK (transfer_size_in_sats >= 0),
  memo TEXT NOT NULL DEFAULT '',
  is_completed INTEGER NOT NULL DEFAULT 0,
  settlement_id TEXT NOT NULL DEFAULT '',
  created_timestamp INTEGER NOT NULL,
  updated_timestamp INTEGER NOT NULL
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS in_flight_transfers_pending_address
  ON in_flight_transfers(address) WHERE is_completed = 0;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS in_flight_transfers_settlement
  ON in_flight_transfers(settlement_id) WHERE settlement_id <> '';`,
}

const sqliteColumns = `id, direction, address, transfer_size_in_sats, memo, is_completed, settlement_id, created_timestamp, updated_timestamp`

// SQLite is the default ledger backend.
type SQLite struct {
	db   *sql.DB
	opts options
}

var _ Ledger = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger: sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ledger: migrate: %w", err)
		}
	}
	return &SQLite{db: db, opts: buildOptions(opts)}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row scanner) (model.InFlightTransfer, error) {
	var (
		t                model.InFlightTransfer
		direction        string
		completed        int
		created, updated int64
	)
	if err := row.Scan(&t.ID, &direction, &t.Address, &t.TransferSizeInSats, &t.Memo, &completed, &t.SettlementID, &created, &updated); err != nil {
		return t, err
	}
	t.Direction = model.Direction(direction)
	t.IsCompleted = completed != 0
	t.CreatedTimestamp = time.Unix(0, created).UTC()
	t.UpdatedTimestamp = time.Unix(0, updated).UTC()
	return t, nil
}

func (s *SQLite) Insert(ctx context.Context, t model.InFlightTransfer) result.Result[model.InFlightTransfer] {
	const op = "ledger.Insert"
	if err := validate(op, t); err != nil {
		return result.Err[model.InFlightTransfer](err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	defer tx.Rollback()

	var pending int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM in_flight_transfers WHERE address = ? AND is_completed = 0`, t.Address,
	).Scan(&pending); err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	if pending > 0 {
		return result.Err[model.InFlightTransfer](alreadyExists(op, t.Address))
	}

	now := stamp(s.opts.now())
	t.IsCompleted = false
	t.CreatedTimestamp = now
	t.UpdatedTimestamp = now
	res, err := tx.ExecContext(ctx, `
INSERT INTO in_flight_transfers (direction, address, transfer_size_in_sats, memo, is_completed, created_timestamp, updated_timestamp)
VALUES (?, ?, ?, ?, 0, ?, ?)`,
		string(t.Direction), t.Address, t.TransferSizeInSats, t.Memo, now.UnixNano(), now.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return result.Err[model.InFlightTransfer](alreadyExists(op, t.Address))
		}
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	if err := tx.Commit(); err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	return result.Ok(t)
}

func (s *SQLite) MarkCompleted(ctx context.Context, address string) result.Result[model.InFlightTransfer] {
	return s.complete(ctx, "ledger.MarkCompleted", address, "")
}

func (s *SQLite) Settle(ctx context.Context, address, settlementID string) result.Result[model.InFlightTransfer] {
	const op = "ledger.Settle"
	if settlementID == "" {
		return result.Err[model.InFlightTransfer](result.Newf(result.KindMissingParameters, op, "empty settlement id"))
	}
	return s.complete(ctx, op, address, settlementID)
}

func (s *SQLite) IsSettlementUsed(ctx context.Context, settlementID string) result.Result[bool] {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM in_flight_transfers WHERE settlement_id = ? AND settlement_id <> ''`, settlementID,
	).Scan(&n); err != nil {
		return result.Err[bool](storage("ledger.IsSettlementUsed", err))
	}
	return result.Ok(n > 0)
}

func (s *SQLite) complete(ctx context.Context, op, address, settlementID string) result.Result[model.InFlightTransfer] {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	defer tx.Rollback()

	if settlementID != "" {
		var used int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM in_flight_transfers WHERE settlement_id = ?`, settlementID,
		).Scan(&used); err != nil {
			return result.Err[model.InFlightTransfer](storage(op, err))
		}
		if used > 0 {
			return result.Err[model.InFlightTransfer](settlementUsed(op, settlementID))
		}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM in_flight_transfers WHERE address = ? AND is_completed = 0`, address)
	if err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	var found []model.InFlightTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			rows.Close()
			return result.Err[model.InFlightTransfer](storage(op, err))
		}
		found = append(found, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	rows.Close()

	switch len(found) {
	case 0:
		return result.Err[model.InFlightTransfer](doesNotExist(op, address))
	case 1:
	default:
		return result.ErrKind[model.InFlightTransfer](result.KindAmbiguousState, op,
			fmt.Errorf("%d pending transfers for %s", len(found), address))
	}

	t := found[0]
	t.IsCompleted = true
	t.SettlementID = settlementID
	t.UpdatedTimestamp = completedAt(t.CreatedTimestamp, s.opts.now())
	if _, err := tx.ExecContext(ctx,
		`UPDATE in_flight_transfers SET is_completed = 1, settlement_id = ?, updated_timestamp = ? WHERE id = ?`,
		t.SettlementID, t.UpdatedTimestamp.UnixNano(), t.ID); err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	if err := tx.Commit(); err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	return result.Ok(t)
}

func (s *SQLite) query(ctx context.Context, op, where string, args ...any) result.Result[[]model.InFlightTransfer] {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM in_flight_transfers `+where+` ORDER BY id`, args...)
	if err != nil {
		return result.Err[[]model.InFlightTransfer](storage(op, err))
	}
	defer rows.Close()
	out := []model.InFlightTransfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return result.Err[[]model.InFlightTransfer](storage(op, err))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return result.Err[[]model.InFlightTransfer](storage(op, err))
	}
	return result.Ok(out)
}

func (s *SQLite) GetPending(ctx context.Context, direction *model.Direction) result.Result[[]model.InFlightTransfer] {
	if direction != nil {
		return s.query(ctx, "ledger.GetPending", `WHERE is_completed = 0 AND direction = ?`, string(*direction))
	}
	return s.query(ctx, "ledger.GetPending", `WHERE is_completed = 0`)
}

func (s *SQLite) GetAll(ctx context.Context) result.Result[[]model.InFlightTransfer] {
	return s.query(ctx, "ledger.GetAll", "")
}

func (s *SQLite) Clear(ctx context.Context) result.Result[struct{}] {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM in_flight_transfers`); err != nil {
		return result.Err[struct{}](storage("ledger.Clear", err))
	}
	return result.Ok(struct{}{})
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
