// Package memory provides an in-memory implementation of accesslog.Store
// for testing and lightweight deployments. Records are lost when the
// process restarts. A size bound evicts the oldest records first.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/kette/pkg/accesslog"
	"github.com/rhuss/kette/pkg/storage"
)

// Store is an in-memory access log with FIFO eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // front = newest append, back = oldest
	maxSize int        // 0 = unlimited
}

// Ensure Store implements accesslog.Store at compile time.
var _ accesslog.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest record is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Append stores a record.
func (s *Store) Append(_ context.Context, rec accesslog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && s.order.Len() >= s.maxSize {
		s.evictOldest()
	}

	s.entries[rec.ID] = s.order.PushFront(rec)
	return nil
}

// Get retrieves a record by ID, scoped by tenant when one is present in
// the context.
func (s *Store) Get(ctx context.Context, id string) (accesslog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.entries[id]
	if !ok {
		return accesslog.Record{}, storage.ErrNotFound
	}
	rec := elem.Value.(accesslog.Record)

	if !storage.ScopeFrom(ctx).Admits(rec.Tenant) {
		return accesslog.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

// List returns matching records newest first.
func (s *Store) List(ctx context.Context, opts accesslog.ListOptions) ([]accesslog.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scope := storage.ScopeFrom(ctx)

	matches := make([]accesslog.Record, 0)
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		rec := elem.Value.(accesslog.Record)
		if !scope.Admits(rec.Tenant) {
			continue
		}
		if !opts.Matches(rec.Time) {
			continue
		}
		matches = append(matches, rec)
	}

	// Append order follows completion, not start time.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Time.After(matches[j].Time)
	})

	if limit := opts.EffectiveLimit(); len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Prune removes every record older than before.
func (s *Store) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.order.Back(); elem != nil; {
		prev := elem.Prev()
		rec := elem.Value.(accesslog.Record)
		if rec.Time.Before(before) {
			s.order.Remove(elem)
			delete(s.entries, rec.ID)
			removed++
		}
		elem = prev
	}
	return removed, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the oldest record.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.order.Back()
	if back == nil {
		return
	}
	s.order.Remove(back)
	delete(s.entries, back.Value.(accesslog.Record).ID)
}
