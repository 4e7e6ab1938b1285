package transport

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"

	"github.com/rhuss/kette/pkg/message"
)

func newTestRequest(t *testing.T, rawURL string) *message.Request {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parsing %q: %v", rawURL, err)
	}
	return message.NewRequest("GET", u)
}

func readBody(t *testing.T, resp *message.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body())
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(b)
}

// tracing returns a unit that records its name around the downstream call.
func tracing(name string, order *[]string) Middleware {
	return MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		*order = append(*order, name+":before")
		resp, err := next.Handle(ctx, req)
		*order = append(*order, name+":after")
		return resp, err
	})
}

func answer(body string) Middleware {
	return Terminal(HandlerFunc(func(context.Context, *message.Request) (*message.Response, error) {
		return message.Text(200, body), nil
	}))
}

func TestDispatcherRunsUnitsInOrder(t *testing.T) {
	var order []string
	d := NewDispatcher(tracing("first", &order), tracing("second", &order))
	d.AddMiddleware(tracing("third", &order), answer("done"))

	resp, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readBody(t, resp); got != "done" {
		t.Errorf("body = %q, want %q", got, "done")
	}

	expected := []string{
		"first:before", "second:before", "third:before",
		"third:after", "second:after", "first:after",
	}
	if len(order) != len(expected) {
		t.Fatalf("execution order length = %d, want %d: %v", len(order), len(expected), order)
	}
	for i, got := range order {
		if got != expected[i] {
			t.Errorf("order[%d] = %q, want %q", i, got, expected[i])
		}
	}
}

func TestDispatcherShortCircuit(t *testing.T) {
	var order []string
	d := NewDispatcher(tracing("outer", &order), answer("early"), tracing("never", &order))

	resp, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readBody(t, resp); got != "early" {
		t.Errorf("body = %q, want %q", got, "early")
	}
	for _, step := range order {
		if step == "never:before" {
			t.Error("unit after the short-circuit should not run")
		}
	}
}

func TestDispatcherEmptyChain(t *testing.T) {
	d := NewDispatcher()

	_, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if !errors.Is(err, ErrNoMiddlewareAvailable) {
		t.Errorf("err = %v, want ErrNoMiddlewareAvailable", err)
	}
}

func TestDispatcherRunsOffTheEnd(t *testing.T) {
	var order []string
	d := NewDispatcher(tracing("only", &order))

	_, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if !errors.Is(err, ErrNoMiddlewareAvailable) {
		t.Errorf("err = %v, want ErrNoMiddlewareAvailable", err)
	}
	if len(order) != 2 {
		t.Errorf("order = %v, want the unit to run before the error", order)
	}
}

func TestDispatcherNextSeesModifiedRequest(t *testing.T) {
	rewrite := MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		return next.Handle(ctx, req.WithHeader("X-Rewritten", "yes").WithMethod("POST"))
	})

	var seenMethod, seenHeader string
	capture := Terminal(HandlerFunc(func(_ context.Context, req *message.Request) (*message.Response, error) {
		seenMethod, seenHeader = req.Method(), req.Header().Get("X-Rewritten")
		return message.NewResponse(204), nil
	}))

	orig := newTestRequest(t, "http://example.com/")
	if _, err := NewDispatcher(rewrite, capture).Handle(context.Background(), orig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenMethod != "POST" || seenHeader != "yes" {
		t.Errorf("downstream saw %s with X-Rewritten=%q", seenMethod, seenHeader)
	}
	if orig.Method() != "GET" || orig.Header().Has("X-Rewritten") {
		t.Error("original request was mutated")
	}
}

func TestDispatcherUnitCanRewriteResponse(t *testing.T) {
	tag := MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		resp, err := next.Handle(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.WithAddedHeader("X-Tag", "outer"), nil
	})

	resp, err := NewDispatcher(tag, answer("ok")).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Header().Get("X-Tag") != "outer" {
		t.Errorf("X-Tag = %q, want outer", resp.Header().Get("X-Tag"))
	}
}

func TestDispatcherPropagatesErrorsUnchanged(t *testing.T) {
	boom := errors.New("boom")
	failing := MiddlewareFunc(func(context.Context, *message.Request, Handler) (*message.Response, error) {
		return nil, boom
	})
	var order []string

	_, err := NewDispatcher(tracing("outer", &order), failing).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err != boom {
		t.Errorf("err = %v, want the original error value", err)
	}
}

func TestDispatcherSnapshotsUnits(t *testing.T) {
	d := NewDispatcher()
	var later []string

	adder := MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		d.AddMiddleware(tracing("added", &later))
		return next.Handle(ctx, req)
	})
	d.AddMiddleware(adder)

	_, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if !errors.Is(err, ErrNoMiddlewareAvailable) {
		t.Fatalf("first dispatch err = %v, want ErrNoMiddlewareAvailable", err)
	}
	if len(later) != 0 {
		t.Errorf("unit added during dispatch ran in the same request: %v", later)
	}
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}

	d.AddMiddleware(answer("ok"))
	if _, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/")); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if len(later) == 0 {
		t.Error("unit added earlier should run on the next request")
	}
}

func TestDispatcherNextCalledTwicePanics(t *testing.T) {
	twice := MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		next.Handle(ctx, req)
		return next.Handle(ctx, req)
	})

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNextCalledTwice) {
			t.Errorf("panic = %v, want ErrNextCalledTwice", r)
		}
	}()
	NewDispatcher(twice, answer("ok")).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	t.Error("expected a panic")
}

func TestDispatcherNilUnitPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("AddMiddleware(nil) should panic")
		}
	}()
	NewDispatcher().AddMiddleware(nil)
}

func TestDispatcherConcurrentUse(t *testing.T) {
	d := NewDispatcher(RequestID())
	d.AddMiddleware(answer("ok"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/"))
			if err != nil || resp.StatusCode() != 200 {
				t.Errorf("Handle = %v, %v", resp, err)
			}
		}()
		go func() {
			defer wg.Done()
			d.AddMiddleware(answer("late"))
		}()
	}
	wg.Wait()
}

func TestChainGroupsUnits(t *testing.T) {
	var order []string
	group := Chain(tracing("a", &order), tracing("b", &order))
	d := NewDispatcher(group, tracing("c", &order), answer("ok"))

	if _, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"a:before", "b:before", "c:before", "c:after", "b:after", "a:after"}
	if len(order) != len(expected) {
		t.Fatalf("order = %v, want %v", order, expected)
	}
	for i, got := range order {
		if got != expected[i] {
			t.Errorf("order[%d] = %q, want %q", i, got, expected[i])
		}
	}

	// The group is reusable across requests.
	order = nil
	if _, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/")); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if len(order) != len(expected) {
		t.Errorf("second request order = %v", order)
	}
}
