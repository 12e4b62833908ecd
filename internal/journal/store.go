// Package journal persists finalized position records.
package journal

import (
	"context"
	"sort"
	"sync"

	"tradesim/internal/trading/position"
	apperrors "tradesim/pkg/errors"
)

// Store is a log of closed positions, keyed by symbol. Within one store
// instance a record is identified by (symbol, id); appending the same pair
// again replaces the earlier record in place.
type Store interface {
	Append(ctx context.Context, rec position.Record) error
	List(ctx context.Context, symbol string) ([]position.Record, error)
	Symbols(ctx context.Context) ([]string, error)
	Close() error
}

// MemoryStore implements Store in memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]position.Record
	index   map[string]map[string]int // symbol -> id -> slot in records
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]position.Record),
		index:   make(map[string]map[string]int),
	}
}

func (s *MemoryStore) Append(ctx context.Context, rec position.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.ErrStoreClosed
	}
	ids, ok := s.index[rec.Symbol]
	if !ok {
		ids = make(map[string]int)
		s.index[rec.Symbol] = ids
	}
	if i, ok := ids[rec.ID]; ok {
		s.records[rec.Symbol][i] = rec
		return nil
	}
	ids[rec.ID] = len(s.records[rec.Symbol])
	s.records[rec.Symbol] = append(s.records[rec.Symbol], rec)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, symbol string) ([]position.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}
	return append([]position.Record(nil), s.records[symbol]...), nil
}

func (s *MemoryStore) Symbols(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, apperrors.ErrStoreClosed
	}
	out := make([]string, 0, len(s.records))
	for sym := range s.records {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
