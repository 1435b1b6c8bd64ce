// Package memory keeps booking history and snapshots in-process for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// BlobStore stores artifacts in-memory and returns pseudo URIs.
type BlobStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	order []string
	limit int
}

// NewBlobStore creates a new unbounded in-memory blob store.
func NewBlobStore() *BlobStore {
	return NewBlobStoreWithLimit(0)
}

// NewBlobStoreWithLimit keeps only the limit most recently written paths.
// Non-positive limits are unbounded.
func NewBlobStoreWithLimit(limit int) *BlobStore {
	return &BlobStore{
		data:  make(map[string][]byte),
		limit: limit,
	}
}

// PutObject persists the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[path]; exists {
		s.forget(path)
	}
	s.data[path] = byteData
	s.order = append(s.order, path)
	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.data, s.order[0])
		s.order = s.order[1:]
	}
	return fmt.Sprintf("memory://%s", path), nil
}

func (s *BlobStore) forget(path string) {
	for i, p := range s.order {
		if p == path {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// Len reports how many objects are retained.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Get returns a copy of the stored object.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Paths lists stored object paths in lexical order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
