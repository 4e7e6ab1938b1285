package accesslog_test

import (
	"context"
	"testing"
	"time"

	"github.com/rhuss/kette/pkg/accesslog"
	"github.com/rhuss/kette/pkg/storage/memory"
)

func TestNewRetentionValidates(t *testing.T) {
	store := memory.New(0)

	if _, err := accesslog.NewRetention(store, "not a cron", time.Hour, nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if _, err := accesslog.NewRetention(store, "* * * * *", 0, nil); err == nil {
		t.Error("expected error for zero max age")
	}
	if _, err := accesslog.NewRetention(store, "", time.Hour, nil); err != nil {
		t.Errorf("empty schedule should fall back to the default: %v", err)
	}
}

func TestRetentionNext(t *testing.T) {
	r, err := accesslog.NewRetention(memory.New(0), "0 2 * * *", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}

	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next, err := r.Next(from)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestRetentionRunOnce(t *testing.T) {
	store := memory.New(0)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, rec := range []accesslog.Record{
		{ID: "old", Time: now.Add(-48 * time.Hour)},
		{ID: "older", Time: now.Add(-72 * time.Hour)},
		{ID: "fresh", Time: now.Add(-time.Minute)},
	} {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	r, err := accesslog.NewRetention(store, accesslog.DefaultSchedule, 24*time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	if store.Len() != 1 {
		t.Errorf("remaining = %d, want 1", store.Len())
	}
}

func TestRetentionRunStopsOnCancel(t *testing.T) {
	r, err := accesslog.NewRetention(memory.New(0), "0 0 1 1 *", time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
