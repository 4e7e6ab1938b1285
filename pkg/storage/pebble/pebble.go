// Package pebble provides an on-disk accesslog.Store backed by
// cockroachdb/pebble.
//
// Records are kept under time-ordered keys so range scans and pruning
// follow the key order:
//
//	r/<unix-nanos, 20 digits>/<id> -> JSON record
//	i/<id>                         -> record key
package pebble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rhuss/kette/pkg/accesslog"
	"github.com/rhuss/kette/pkg/storage"
)

const (
	recordPrefix = "r/"
	indexPrefix  = "i/"
)

// Store is a pebble-backed access log.
type Store struct {
	db *pebble.DB

	// Serializes the duplicate check with the write.
	mu sync.Mutex
}

// Ensure Store implements accesslog.Store at compile time.
var _ accesslog.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func timeKey(t time.Time) string {
	return fmt.Sprintf("%s%020d/", recordPrefix, t.UnixNano())
}

func recordKey(rec accesslog.Record) []byte {
	return []byte(timeKey(rec.Time) + rec.ID)
}

func indexKey(id string) []byte {
	return []byte(indexPrefix + id)
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

// Append stores a record and its ID index entry in one batch.
func (s *Store) Append(_ context.Context, rec accesslog.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, closer, err := s.db.Get(indexKey(rec.ID))
	if err == nil {
		closer.Close()
		return storage.ErrConflict
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("checking record %s: %w", rec.ID, err)
	}

	key := recordKey(rec)
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key, data, nil); err != nil {
		return err
	}
	if err := b.Set(indexKey(rec.ID), key, nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("writing record %s: %w", rec.ID, err)
	}
	return nil
}

// Get looks a record up through the ID index.
func (s *Store) Get(ctx context.Context, id string) (accesslog.Record, error) {
	key, err := s.get(indexKey(id))
	if err != nil {
		return accesslog.Record{}, err
	}
	data, err := s.get(key)
	if err != nil {
		return accesslog.Record{}, err
	}

	var rec accesslog.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return accesslog.Record{}, fmt.Errorf("decoding record %s: %w", id, err)
	}
	if !storage.ScopeFrom(ctx).Admits(rec.Tenant) {
		return accesslog.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

// get returns a copy of the value at key.
func (s *Store) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// List scans the time range backwards so the newest records come first.
func (s *Store) List(ctx context.Context, opts accesslog.ListOptions) ([]accesslog.Record, error) {
	iterOpts := &pebble.IterOptions{
		LowerBound: []byte(recordPrefix),
		UpperBound: prefixEnd(recordPrefix),
	}
	if !opts.Since.IsZero() {
		iterOpts.LowerBound = []byte(timeKey(opts.Since))
	}
	if !opts.Until.IsZero() {
		iterOpts.UpperBound = []byte(timeKey(opts.Until))
	}

	iter, err := s.db.NewIter(iterOpts)
	if err != nil {
		return nil, fmt.Errorf("opening iterator: %w", err)
	}
	defer iter.Close()

	scope := storage.ScopeFrom(ctx)
	limit := opts.EffectiveLimit()
	recs := make([]accesslog.Record, 0)

	for valid := iter.Last(); valid && len(recs) < limit; valid = iter.Prev() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec accesslog.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding record at %s: %w", iter.Key(), err)
		}
		if !scope.Admits(rec.Tenant) {
			continue
		}
		recs = append(recs, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}
	return recs, nil
}

// Prune drops the index entries of every record older than before and
// removes the records themselves with a single range deletion.
func (s *Store) Prune(_ context.Context, before time.Time) (int, error) {
	start := []byte(recordPrefix)
	end := []byte(timeKey(before))

	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	if err != nil {
		return 0, fmt.Errorf("opening iterator: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()

	n := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		var rec accesslog.Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			iter.Close()
			return 0, fmt.Errorf("decoding record at %s: %w", iter.Key(), err)
		}
		if err := b.Delete(indexKey(rec.ID), nil); err != nil {
			iter.Close()
			return 0, err
		}
		n++
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return 0, fmt.Errorf("scanning records: %w", err)
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	if err := b.DeleteRange(start, end, nil); err != nil {
		return 0, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("pruning records: %w", err)
	}
	return n, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
