package accesslog_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/rhuss/kette/pkg/accesslog"
	"github.com/rhuss/kette/pkg/auth"
	"github.com/rhuss/kette/pkg/message"
	"github.com/rhuss/kette/pkg/storage/memory"
	"github.com/rhuss/kette/pkg/transport"
)

func handle(t *testing.T, ctx context.Context, units ...transport.Middleware) (*message.Response, error) {
	t.Helper()
	u, _ := url.Parse("http://api.example.com/v1/items?x=1")
	return transport.NewDispatcher(units...).Handle(ctx, message.NewRequest("PATCH", u))
}

func TestMiddlewareRecordsResponse(t *testing.T) {
	store := memory.New(0)

	ctx := transport.ContextWithRequestID(context.Background(), "req-42")
	ctx = auth.WithIdentity(ctx, &auth.Identity{Subject: "alice", Metadata: map[string]string{"tenant_id": "org-1"}})

	resp, err := handle(t, ctx,
		accesslog.Middleware(store, nil),
		transport.Terminal(transport.HandlerFunc(func(context.Context, *message.Request) (*message.Response, error) {
			return message.NewResponse(http.StatusAccepted), nil
		})),
	)
	if err != nil || resp.StatusCode() != http.StatusAccepted {
		t.Fatalf("Handle = %v, %v", resp, err)
	}

	recs, err := store.List(context.Background(), accesslog.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID == "" {
		t.Error("record ID is empty")
	}
	if rec.RequestID != "req-42" || rec.Method != "PATCH" || rec.Host != "api.example.com" || rec.Path != "/v1/items" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Status != http.StatusAccepted || rec.Tenant != "org-1" || rec.Subject != "alice" {
		t.Errorf("status/tenant/subject = %d/%q/%q", rec.Status, rec.Tenant, rec.Subject)
	}
	if rec.Error != "" {
		t.Errorf("Error = %q, want empty", rec.Error)
	}
}

func TestMiddlewareRecordsErrorStatus(t *testing.T) {
	store := memory.New(0)

	_, err := handle(t, context.Background(),
		accesslog.Middleware(store, nil),
		transport.Terminal(transport.HandlerFunc(func(context.Context, *message.Request) (*message.Response, error) {
			return nil, message.NewTimeoutError("too slow")
		})),
	)
	if err == nil {
		t.Fatal("expected error to pass through")
	}

	recs, _ := store.List(context.Background(), accesslog.ListOptions{})
	if len(recs) != 1 || recs[0].Status != http.StatusGatewayTimeout || recs[0].Error == "" {
		t.Errorf("records = %+v", recs)
	}
}

type failingStore struct {
	accesslog.Store
}

func (failingStore) Append(context.Context, accesslog.Record) error {
	return errors.New("disk full")
}

func TestMiddlewareStoreFailureIsNotSurfaced(t *testing.T) {
	resp, err := handle(t, context.Background(),
		accesslog.Middleware(failingStore{}, nil),
		transport.Terminal(transport.HandlerFunc(func(context.Context, *message.Request) (*message.Response, error) {
			return message.Text(http.StatusOK, "fine"), nil
		})),
	)
	if err != nil || resp.StatusCode() != http.StatusOK {
		t.Errorf("Handle = %v, %v; store failures must not reach the client", resp, err)
	}
}

type ctxCheckingStore struct {
	accesslog.Store
	err error
}

func (s *ctxCheckingStore) Append(ctx context.Context, _ accesslog.Record) error {
	s.err = ctx.Err()
	return nil
}

func TestMiddlewareWritesAfterClientCancel(t *testing.T) {
	store := &ctxCheckingStore{}
	ctx, cancel := context.WithCancel(context.Background())

	_, _ = handle(t, ctx,
		accesslog.Middleware(store, nil),
		transport.Terminal(transport.HandlerFunc(func(context.Context, *message.Request) (*message.Response, error) {
			cancel()
			return message.NewResponse(http.StatusOK), nil
		})),
	)

	if store.err != nil {
		t.Errorf("append context error = %v, want a live context", store.err)
	}
}

func TestListOptions(t *testing.T) {
	if got := (accesslog.ListOptions{}).EffectiveLimit(); got != accesslog.DefaultListLimit {
		t.Errorf("default limit = %d", got)
	}
	if got := (accesslog.ListOptions{Limit: 5000}).EffectiveLimit(); got != accesslog.MaxListLimit {
		t.Errorf("clamped limit = %d", got)
	}

	now := time.Now()
	opts := accesslog.ListOptions{Since: now, Until: now.Add(time.Minute)}
	if !opts.Matches(now) {
		t.Error("Since is inclusive")
	}
	if opts.Matches(now.Add(time.Minute)) {
		t.Error("Until is exclusive")
	}
}
