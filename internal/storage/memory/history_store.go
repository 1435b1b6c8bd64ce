package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
)

// HistoryStore keeps booking attempts in insertion order.
type HistoryStore struct {
	mu      sync.RWMutex
	records []booking.Record
}

// NewHistoryStore constructs a HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

// Record appends an attempt.
func (s *HistoryStore) Record(_ context.Context, record booking.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// List returns up to limit records, newest first. A non-positive limit returns all.
func (s *HistoryStore) List(_ context.Context, limit int) ([]booking.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]booking.Record, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close is a no-op.
func (s *HistoryStore) Close() error {
	return nil
}
