package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/GaloyMoney/dealer-sub001/internal/model"
	"github.com/GaloyMoney/dealer-sub001/internal/result"
)

// Key layout:
//
//	transfer/<id, 20 digits>  JSON InFlightTransfer
//	pending/<address>         id of the pending transfer
//	settlement/<feed id>      id of the transfer the feed entry completed
//	meta/last_id              last assigned id
const (
	transferPrefix   = "transfer/"
	pendingPrefix    = "pending/"
	settlementPrefix = "settlement/"
	lastIDKey        = "meta/last_id"
)

// Badger is the embedded key-value ledger backend.
type Badger struct {
	db   *badger.DB
	opts options
}

var _ Ledger = (*Badger)(nil)

// OpenBadger opens the store in directory path. The path ":memory:" opens
// a non-durable in-memory store.
func OpenBadger(path string, opts ...Option) (*Badger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger: badger path is required")
	}
	// Insert must be on disk before the caller moves funds.
	bopts := badger.DefaultOptions(path).WithSyncWrites(true).WithLogger(nil)
	if path == ":memory:" {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("ledger: open badger: %w", err)
	}
	return &Badger{db: db, opts: buildOptions(opts)}, nil
}

func transferKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", transferPrefix, id))
}

func pendingKey(address string) []byte {
	return []byte(pendingPrefix + address)
}

func settlementKey(id string) []byte {
	return []byte(settlementPrefix + id)
}

func encodeID(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func readID(txn *badger.Txn, key []byte) (int64, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("ledger: corrupt id under %s", key)
		}
		id = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return id, true, err
}

func readTransfer(txn *badger.Txn, id int64) (model.InFlightTransfer, error) {
	var t model.InFlightTransfer
	item, err := txn.Get(transferKey(id))
	if err != nil {
		return t, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &t)
	})
	return t, err
}

func writeTransfer(txn *badger.Txn, t model.InFlightTransfer) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return txn.Set(transferKey(t.ID), data)
}

func (b *Badger) Insert(_ context.Context, t model.InFlightTransfer) result.Result[model.InFlightTransfer] {
	const op = "ledger.Insert"
	if err := validate(op, t); err != nil {
		return result.Err[model.InFlightTransfer](err)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, exists, err := readID(txn, pendingKey(t.Address)); err != nil {
			return err
		} else if exists {
			return alreadyExists(op, t.Address)
		}
		last, _, err := readID(txn, []byte(lastIDKey))
		if err != nil {
			return err
		}
		now := stamp(b.opts.now())
		t.ID = last + 1
		t.IsCompleted = false
		t.CreatedTimestamp = now
		t.UpdatedTimestamp = now
		if err := writeTransfer(txn, t); err != nil {
			return err
		}
		if err := txn.Set(pendingKey(t.Address), encodeID(t.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(lastIDKey), encodeID(t.ID))
	})
	if err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	return result.Ok(t)
}

func (b *Badger) MarkCompleted(_ context.Context, address string) result.Result[model.InFlightTransfer] {
	return b.complete("ledger.MarkCompleted", address, "")
}

func (b *Badger) Settle(_ context.Context, address, settlementID string) result.Result[model.InFlightTransfer] {
	const op = "ledger.Settle"
	if settlementID == "" {
		return result.Err[model.InFlightTransfer](result.Newf(result.KindMissingParameters, op, "empty settlement id"))
	}
	return b.complete(op, address, settlementID)
}

func (b *Badger) IsSettlementUsed(_ context.Context, settlementID string) result.Result[bool] {
	var used bool
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		_, used, err = readID(txn, settlementKey(settlementID))
		return err
	})
	if err != nil {
		return result.Err[bool](storage("ledger.IsSettlementUsed", err))
	}
	return result.Ok(used && settlementID != "")
}

func (b *Badger) complete(op, address, settlementID string) result.Result[model.InFlightTransfer] {
	var t model.InFlightTransfer
	err := b.db.Update(func(txn *badger.Txn) error {
		if settlementID != "" {
			if _, used, err := readID(txn, settlementKey(settlementID)); err != nil {
				return err
			} else if used {
				return settlementUsed(op, settlementID)
			}
		}
		id, exists, err := readID(txn, pendingKey(address))
		if err != nil {
			return err
		}
		if !exists {
			return doesNotExist(op, address)
		}
		if t, err = readTransfer(txn, id); err != nil {
			return err
		}
		if t.IsCompleted || t.Address != address {
			return result.Newf(result.KindAmbiguousState, op, "pending index for %s points at transfer %d", address, id)
		}
		t.IsCompleted = true
		t.SettlementID = settlementID
		t.UpdatedTimestamp = completedAt(t.CreatedTimestamp, b.opts.now())
		if err := writeTransfer(txn, t); err != nil {
			return err
		}
		if settlementID != "" {
			if err := txn.Set(settlementKey(settlementID), encodeID(t.ID)); err != nil {
				return err
			}
		}
		return txn.Delete(pendingKey(address))
	})
	if err != nil {
		return result.Err[model.InFlightTransfer](storage(op, err))
	}
	return result.Ok(t)
}

func (b *Badger) GetPending(_ context.Context, direction *model.Direction) result.Result[[]model.InFlightTransfer] {
	const op = "ledger.GetPending"
	out := []model.InFlightTransfer{}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(pendingPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, _, err := readID(txn, it.Item().KeyCopy(nil))
			if err != nil {
				return err
			}
			t, err := readTransfer(txn, id)
			if err != nil {
				return err
			}
			if direction != nil && t.Direction != *direction {
				continue
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return result.Err[[]model.InFlightTransfer](storage(op, err))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return result.Ok(out)
}

func (b *Badger) GetAll(_ context.Context) result.Result[[]model.InFlightTransfer] {
	const op = "ledger.GetAll"
	out := []model.InFlightTransfer{}
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(transferPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t model.InFlightTransfer
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return err
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return result.Err[[]model.InFlightTransfer](storage(op, err))
	}
	return result.Ok(out)
}

func (b *Badger) Clear(context.Context) result.Result[struct{}] {
	if err := b.db.DropAll(); err != nil {
		return result.Err[struct{}](storage("ledger.Clear", err))
	}
	return result.Ok(struct{}{})
}

func (b *Badger) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
