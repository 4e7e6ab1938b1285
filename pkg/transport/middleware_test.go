package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/rhuss/kette/pkg/message"
)

func handlerFunc(f func(ctx context.Context, req *message.Request) (*message.Response, error)) Middleware {
	return Terminal(HandlerFunc(f))
}

func TestRecoveryCatchesPanic(t *testing.T) {
	panicking := handlerFunc(func(context.Context, *message.Request) (*message.Response, error) {
		panic("test panic")
	})

	resp, err := NewDispatcher(Recovery(), panicking).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if resp != nil {
		t.Error("expected no response after panic")
	}

	var se *message.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if se.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", se.Status)
	}
	if strings.Contains(se.Message, "test panic") {
		t.Errorf("panic value leaked into client message %q", se.Message)
	}
	if !strings.Contains(se.Error(), "test panic") {
		t.Errorf("error %q should keep the panic value", se.Error())
	}
}

func TestRecoveryCatchesNextCalledTwice(t *testing.T) {
	twice := MiddlewareFunc(func(ctx context.Context, req *message.Request, next Handler) (*message.Response, error) {
		next.Handle(ctx, req)
		return next.Handle(ctx, req)
	})

	_, err := NewDispatcher(Recovery(), twice, answer("ok")).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if se := message.AsStatusError(err); se.Status != 500 || !strings.Contains(se.Error(), "more than once") {
		t.Errorf("err = %v, want 500 mentioning the reused cursor", err)
	}
}

func TestRecoveryPassesThrough(t *testing.T) {
	resp, err := NewDispatcher(Recovery(), answer("fine")).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readBody(t, resp); got != "fine" {
		t.Errorf("body = %q", got)
	}
}

func TestRequestIDGeneratesAndEchoes(t *testing.T) {
	var ctxID, headerID string
	capture := handlerFunc(func(ctx context.Context, req *message.Request) (*message.Response, error) {
		ctxID = RequestIDFromContext(ctx)
		headerID = req.Header().Get(RequestIDHeader)
		return message.NewResponse(204), nil
	})

	resp, err := NewDispatcher(RequestID(), capture).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ctxID) != 36 {
		t.Errorf("generated ID = %q, want a UUID", ctxID)
	}
	if headerID != ctxID {
		t.Errorf("forwarded header = %q, want %q", headerID, ctxID)
	}
	if got := resp.Header().Get(RequestIDHeader); got != ctxID {
		t.Errorf("response header = %q, want %q", got, ctxID)
	}
}

func TestRequestIDReusesIncoming(t *testing.T) {
	var ctxID string
	capture := handlerFunc(func(ctx context.Context, _ *message.Request) (*message.Response, error) {
		ctxID = RequestIDFromContext(ctx)
		return message.NewResponse(204), nil
	})
	d := NewDispatcher(RequestID(), capture)

	req := newTestRequest(t, "http://example.com/").WithHeader("x-request-id", "from-header")
	if _, err := d.Handle(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if ctxID != "from-header" {
		t.Errorf("ID = %q, want from-header", ctxID)
	}

	ctx := ContextWithRequestID(context.Background(), "from-context")
	if _, err := d.Handle(ctx, req); err != nil {
		t.Fatal(err)
	}
	if ctxID != "from-context" {
		t.Errorf("ID = %q, want from-context", ctxID)
	}
}

func TestRequestIDFromContextEmpty(t *testing.T) {
	if id := RequestIDFromContext(context.Background()); id != "" {
		t.Errorf("RequestIDFromContext = %q, want empty", id)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	d := NewDispatcher(RequestID(), Logging(logger), answer("ok"))
	if _, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/items")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"msg":"request completed"`, `"path":"/items"`, `"status":200`, `"request_id":"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
}

func TestLoggingMiddlewareLogsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	failing := handlerFunc(func(context.Context, *message.Request) (*message.Response, error) {
		return nil, message.NewTooManyRequestsError("slow down")
	})
	_, err := NewDispatcher(Logging(logger), failing).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	out := buf.String()
	if !strings.Contains(out, `"level":"ERROR"`) || !strings.Contains(out, `"status":429`) {
		t.Errorf("log output = %q", out)
	}
}

func TestTimeoutReturnsGatewayTimeout(t *testing.T) {
	cancelled := make(chan struct{})
	slow := handlerFunc(func(ctx context.Context, _ *message.Request) (*message.Response, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	_, err := NewDispatcher(Timeout(20*time.Millisecond), slow).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if se := message.AsStatusError(err); se.Status != http.StatusGatewayTimeout {
		t.Errorf("err = %v, want 504", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("downstream context was not cancelled")
	}
}

func TestTimeoutKeepsContextForBody(t *testing.T) {
	var downstream context.Context
	streaming := handlerFunc(func(ctx context.Context, _ *message.Request) (*message.Response, error) {
		downstream = ctx
		return message.Text(200, "payload"), nil
	})

	resp, err := NewDispatcher(Timeout(time.Second), streaming).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if downstream.Err() != nil {
		t.Fatal("context cancelled before the body was read")
	}
	if got := readBody(t, resp); got != "payload" {
		t.Errorf("body = %q", got)
	}
	if downstream.Err() == nil {
		t.Error("context should be released once the body is drained")
	}
}

func TestTimeoutRepanicsOnCaller(t *testing.T) {
	panicking := handlerFunc(func(context.Context, *message.Request) (*message.Response, error) {
		panic("inside timeout")
	})

	_, err := NewDispatcher(Recovery(), Timeout(time.Second), panicking).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if se := message.AsStatusError(err); se.Status != 500 || !strings.Contains(se.Error(), "inside timeout") {
		t.Errorf("err = %v, want recovered panic", err)
	}
}

func TestTimeoutDisabled(t *testing.T) {
	resp, err := NewDispatcher(Timeout(0), answer("direct")).Handle(context.Background(), newTestRequest(t, "http://example.com/"))
	if err != nil || readBody(t, resp) != "direct" {
		t.Errorf("Timeout(0) should pass through, got %v", err)
	}
}

func TestCompressionGzipsBody(t *testing.T) {
	payload := strings.Repeat("kette ", 200)
	d := NewDispatcher(Compression(gzip.BestSpeed, 100), answer(payload))

	req := newTestRequest(t, "http://example.com/").WithHeader("Accept-Encoding", "br, gzip;q=0.8")
	resp, err := d.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", resp.Header().Get("Content-Encoding"))
	}
	if resp.Header().Has("Content-Length") {
		t.Error("Content-Length should be dropped for compressed bodies")
	}

	zr, err := gzip.NewReader(resp.Body())
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(got) != payload {
		t.Errorf("decompressed body has %d bytes, want %d", len(got), len(payload))
	}
}

func TestCompressionSkips(t *testing.T) {
	tests := []struct {
		name   string
		accept string
		size   int
	}{
		{"no accept-encoding", "", 1000},
		{"gzip refused", "gzip;q=0", 1000},
		{"below min size", "gzip", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(Compression(0, 100), answer(strings.Repeat("x", tt.size)))
			req := newTestRequest(t, "http://example.com/")
			if tt.accept != "" {
				req = req.WithHeader("Accept-Encoding", tt.accept)
			}
			resp, err := d.Handle(context.Background(), req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.Header().Has("Content-Encoding") {
				t.Errorf("response should not be compressed")
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	resp, err := NewDispatcher(NotFound()).Handle(context.Background(), newTestRequest(t, "http://example.com/missing"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode())
	}
	if !strings.Contains(readBody(t, resp), "/missing") {
		t.Error("body should name the missing path")
	}
}

func TestMountServesPrefix(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Add("X-Multi", "1")
		w.Header().Add("X-Multi", "2")
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "status from "+r.Host+" with "+r.Header.Get("X-Probe"))
	})

	d := NewDispatcher(Mount("/admin", mux), answer("fallthrough"))

	req := newTestRequest(t, "http://example.com/admin/status").WithHeader("X-Probe", "p1")
	resp, err := d.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode() != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode())
	}
	if got := resp.Header().Line("X-Multi"); got != "1,2" {
		t.Errorf("X-Multi = %q, want 1,2", got)
	}
	if got := readBody(t, resp); got != "status from example.com with p1" {
		t.Errorf("body = %q", got)
	}

	other, err := d.Handle(context.Background(), newTestRequest(t, "http://example.com/administrator"))
	if err != nil {
		t.Fatal(err)
	}
	if got := readBody(t, other); got != "fallthrough" {
		t.Errorf("non-matching path body = %q, want fallthrough", got)
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"gzip", true},
		{"deflate, gzip", true},
		{"*", true},
		{"gzip; q=0", false},
		{"br", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := acceptsGzip(tt.in); got != tt.want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
