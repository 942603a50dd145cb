package audit

import (
	"context"
	"sync"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	orders    []OrderRecord
	transfers []TransferRecord
	funding   []FundingRateRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) RecordOrder(_ context.Context, r OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, r)
	return nil
}

func (s *MemoryStore) RecordTransfer(_ context.Context, r TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = append(s.transfers, r)
	return nil
}

func (s *MemoryStore) RecordFundingRate(_ context.Context, r FundingRateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funding = append(s.funding, r)
	return nil
}

// newest returns up to limit items from the end of records, newest first.
func newest[T any](records []T, limit int) []T {
	limit = clampLimit(limit)
	out := make([]T, 0, min(limit, len(records)))
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, records[i])
	}
	return out
}

func (s *MemoryStore) ListOrders(_ context.Context, limit int) ([]OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newest(s.orders, limit), nil
}

func (s *MemoryStore) ListTransfers(_ context.Context, limit int) ([]TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newest(s.transfers, limit), nil
}

func (s *MemoryStore) ListFundingRates(_ context.Context, limit int) ([]FundingRateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newest(s.funding, limit), nil
}
