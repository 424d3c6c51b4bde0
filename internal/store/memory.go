package store

import (
	"context"
	"sync"
	"time"

	"auto_trader/internal/core"

	"github.com/shopspring/decimal"
)

// priceSample is one in-memory price observation.
type priceSample struct {
	item  string
	price decimal.Decimal
	ts    time.Time
}

// MemoryStore is an in-memory IStore used by tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	session *core.SessionSnapshot
	cycles  []*core.CycleRecord
	samples []priceSample
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveSession(ctx context.Context, snapshot *core.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snapshot
	copied.Cookies = append([]core.Cookie(nil), snapshot.Cookies...)
	s.session = &copied
	return nil
}

func (s *MemoryStore) LoadSession(ctx context.Context) (*core.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	copied := *s.session
	copied.Cookies = append([]core.Cookie(nil), s.session.Cookies...)
	return &copied, nil
}

func (s *MemoryStore) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

func (s *MemoryStore) AppendCycleRecord(ctx context.Context, record *core.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, record)
	return nil
}

func (s *MemoryStore) AppendPriceSample(ctx context.Context, itemName string, price decimal.Decimal, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, priceSample{item: itemName, price: price, ts: ts})
	return nil
}

// CycleRecords returns the appended records in order.
func (s *MemoryStore) CycleRecords() []*core.CycleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.CycleRecord(nil), s.cycles...)
}

// SampleCount returns the number of recorded price samples.
func (s *MemoryStore) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func (s *MemoryStore) Close() error { return nil }

var _ core.IStore = (*MemoryStore)(nil)
