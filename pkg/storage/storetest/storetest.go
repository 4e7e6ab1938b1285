// Package storetest holds the behavior every accesslog.Store backend must
// share. Backend tests call Run with a constructor for a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/kette/pkg/accesslog"
	"github.com/rhuss/kette/pkg/storage"
)

// base is a fixed instant so ordering assertions do not depend on the clock.
var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewRecord builds a record offset minutes after a fixed base time.
func NewRecord(id, tenant string, minutes int) accesslog.Record {
	return accesslog.Record{
		ID:        id,
		RequestID: "req-" + id,
		Time:      base.Add(time.Duration(minutes) * time.Minute),
		Method:    "GET",
		Host:      "example.com",
		Path:      "/items/" + id,
		Status:    200,
		Duration:  15 * time.Millisecond,
		Tenant:    tenant,
		Subject:   "alice",
	}
}

// Run exercises a backend. newStore must return an empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) accesslog.Store) {
	t.Run("AppendAndGet", func(t *testing.T) { testAppendAndGet(t, newStore(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, newStore(t)) })
	t.Run("TenantScoping", func(t *testing.T) { testTenantScoping(t, newStore(t)) })
	t.Run("ListOrderAndLimit", func(t *testing.T) { testListOrderAndLimit(t, newStore(t)) })
	t.Run("ListTimeRange", func(t *testing.T) { testListTimeRange(t, newStore(t)) })
	t.Run("Prune", func(t *testing.T) { testPrune(t, newStore(t)) })
}

func mustAppend(t *testing.T, s accesslog.Store, recs ...accesslog.Record) {
	t.Helper()
	for _, rec := range recs {
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append(%s): %v", rec.ID, err)
		}
	}
}

func ids(recs []accesslog.Record) string {
	out := ""
	for i, r := range recs {
		if i > 0 {
			out += ","
		}
		out += r.ID
	}
	return out
}

func testAppendAndGet(t *testing.T, s accesslog.Store) {
	defer s.Close()
	want := NewRecord("a1", "", 0)
	want.Error = "upstream_error: upstream unreachable"
	want.Status = 502
	mustAppend(t, s, want)

	got, err := s.Get(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != want.ID || got.RequestID != want.RequestID || got.Method != want.Method ||
		got.Host != want.Host || got.Path != want.Path || got.Status != want.Status ||
		got.Duration != want.Duration || got.Subject != want.Subject || got.Error != want.Error {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
	if !got.Time.Equal(want.Time) {
		t.Errorf("Time = %v, want %v", got.Time, want.Time)
	}

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func testDuplicateID(t *testing.T, s accesslog.Store) {
	defer s.Close()
	mustAppend(t, s, NewRecord("d1", "", 0))
	if err := s.Append(context.Background(), NewRecord("d1", "", 1)); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate Append error = %v, want ErrConflict", err)
	}
}

func testTenantScoping(t *testing.T, s accesslog.Store) {
	defer s.Close()
	mustAppend(t, s,
		NewRecord("t1", "org-1", 0),
		NewRecord("t2", "org-2", 1),
		NewRecord("t3", "org-1", 2),
	)

	org1 := storage.WithScope(context.Background(), "org-1")
	recs, err := s.List(org1, accesslog.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := ids(recs); got != "t3,t1" {
		t.Errorf("org-1 List = %s, want t3,t1", got)
	}

	if _, err := s.Get(org1, "t2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-tenant Get error = %v, want ErrNotFound", err)
	}

	all, err := s.List(context.Background(), accesslog.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unscoped List returned %d records, want 3", len(all))
	}
}

func testListOrderAndLimit(t *testing.T, s accesslog.Store) {
	defer s.Close()
	// Appended out of time order.
	mustAppend(t, s,
		NewRecord("o2", "", 2),
		NewRecord("o1", "", 1),
		NewRecord("o4", "", 4),
		NewRecord("o3", "", 3),
	)

	recs, err := s.List(context.Background(), accesslog.ListOptions{Limit: 3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := ids(recs); got != "o4,o3,o2" {
		t.Errorf("List = %s, want o4,o3,o2", got)
	}
}

func testListTimeRange(t *testing.T, s accesslog.Store) {
	defer s.Close()
	for i := 0; i < 5; i++ {
		mustAppend(t, s, NewRecord(fmt.Sprintf("r%d", i), "", i))
	}

	recs, err := s.List(context.Background(), accesslog.ListOptions{
		Since: base.Add(1 * time.Minute),
		Until: base.Add(4 * time.Minute),
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := ids(recs); got != "r3,r2,r1" {
		t.Errorf("List = %s, want r3,r2,r1 (since inclusive, until exclusive)", got)
	}
}

func testPrune(t *testing.T, s accesslog.Store) {
	defer s.Close()
	for i := 0; i < 5; i++ {
		mustAppend(t, s, NewRecord(fmt.Sprintf("p%d", i), "", i*10))
	}

	n, err := s.Prune(context.Background(), base.Add(25*time.Minute))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 3 {
		t.Errorf("Prune removed %d, want 3", n)
	}

	recs, err := s.List(context.Background(), accesslog.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := ids(recs); got != "p4,p3" {
		t.Errorf("after prune List = %s, want p4,p3", got)
	}
	if _, err := s.Get(context.Background(), "p0"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("pruned record still visible: %v", err)
	}
}
