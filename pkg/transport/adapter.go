package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rhuss/kette/pkg/debug"
	"github.com/rhuss/kette/pkg/message"
)

// errNoResponse is reported when the chain returns neither a response nor
// an error.
var errNoResponse = errors.New("transport: middleware chain returned no response")

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithHost sets the interface Start binds to. The default is all
// interfaces.
func WithHost(host string) AdapterOption {
	return func(a *Adapter) {
		a.host = host
	}
}

// Adapter connects a Transport to a Handler. It converts every raw request
// into a message.Request, dispatches it, and writes the resulting response
// back through the transport.
type Adapter struct {
	transport Transport
	handler   Handler
	factory   message.RequestFactory
	logger    *slog.Logger
	scheme    string
	host      string
	inflight  *drainGroup

	addr     atomic.Value // net.Addr
	stopOnce sync.Once
}

// NewAdapter creates an adapter and subscribes it to t. A nil factory uses
// message.Factory and a nil logger uses slog.Default().
func NewAdapter(t Transport, h Handler, f message.RequestFactory, logger *slog.Logger, opts ...AdapterOption) *Adapter {
	if f == nil {
		f = message.Factory{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adapter{
		transport: t,
		handler:   h,
		factory:   f,
		logger:    logger,
		scheme:    "http",
		inflight:  newDrainGroup(),
	}
	if st, ok := t.(SecureTransport); ok && st.Secure() {
		a.scheme = "https"
	}
	for _, opt := range opts {
		opt(a)
	}

	t.Subscribe(Hooks{
		Listening: a.onListening,
		Closing:   a.onClosing,
		Request:   a.serve,
	})
	return a
}

// Scheme returns "https" for secure transports and "http" otherwise.
func (a *Adapter) Scheme() string { return a.scheme }

// Addr returns the bound address, or nil before the transport is listening.
func (a *Adapter) Addr() net.Addr {
	addr, _ := a.addr.Load().(net.Addr)
	return addr
}

// InFlight returns the number of requests currently being served.
func (a *Adapter) InFlight() int { return a.inflight.size() }

// Start binds the transport to port. Port 0 picks an ephemeral port.
func (a *Adapter) Start(port int) error {
	addr := net.JoinHostPort(a.host, strconv.Itoa(port))
	if err := a.transport.Listen(addr); err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return nil
}

// Stop closes the transport. Only the first call has an effect; requests
// already in flight are not aborted.
func (a *Adapter) Stop() error {
	var err error
	a.stopOnce.Do(func() {
		err = a.transport.Close()
	})
	return err
}

// Shutdown stops the transport and waits for in-flight requests to
// finish. When ctx expires first, the remaining requests are cancelled and
// ctx's error is returned.
func (a *Adapter) Shutdown(ctx context.Context) error {
	if err := a.Stop(); err != nil {
		return err
	}
	n, err := a.inflight.drain(ctx)
	if err != nil {
		a.logger.Warn("shutdown deadline reached, cancelling requests", "in_flight", n)
	}
	return err
}

func (a *Adapter) onListening(addr net.Addr) {
	a.addr.Store(addr)
	port := 0
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	a.logger.Info("server listening", "address", addr.String(), "port", port, "scheme", a.scheme)
}

func (a *Adapter) onClosing() {
	a.logger.Info("server closing", "in_flight", a.inflight.size())
}

// serve handles one raw request end to end.
func (a *Adapter) serve(raw RawRequest, w RawResponseWriter) {
	ctx, cancel := context.WithCancel(raw.Context())
	leave := a.inflight.enter(cancel)
	cleanup := func() {
		cancel()
		leave()
	}

	if debug.TraceEnabled("transport") {
		debug.Trace("transport", "raw request", "method", raw.Method(), "target", debug.Truncate(raw.Target(), 512), "headers", raw.RawHeaders())
	}
	req, err := a.convert(raw)
	if err != nil {
		a.fail(ctx, w, nil, message.NewInvalidRequestError(err.Error()), cleanup)
		return
	}
	if id := req.Header().Get(RequestIDHeader); id != "" {
		ctx = ContextWithRequestID(ctx, id)
	}
	debug.Log("transport", "dispatching request", "method", req.Method(), "url", req.URL().String())

	resp, err := a.dispatch(ctx, req)
	if err != nil {
		a.fail(ctx, w, req, err, cleanup)
		return
	}
	a.write(ctx, w, resp, cleanup)
}

// dispatch runs the handler, turning panics and empty results into errors.
func (a *Adapter) dispatch(ctx context.Context, req *message.Request) (resp *message.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, panicError(r)
		}
	}()
	resp, err = a.handler.Handle(ctx, req)
	if err == nil && resp == nil {
		err = errNoResponse
	}
	return resp, err
}

// convert builds the request value: URL from scheme, Host header and raw
// target, then the body, then every raw header pair in order.
func (a *Adapter) convert(raw RawRequest) (*message.Request, error) {
	pairs := raw.RawHeaders()
	host := ""
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.EqualFold(pairs[i], "Host") {
			host = pairs[i+1]
			break
		}
	}
	if host == "" {
		if addr := a.Addr(); addr != nil {
			host = addr.String()
		}
	}

	target := raw.Target()
	var (
		u   *url.URL
		err error
	)
	switch {
	case strings.HasPrefix(target, "/"):
		u, err = url.Parse(a.scheme + "://" + host + target)
	case target == "*":
		u = &url.URL{Scheme: a.scheme, Host: host, Path: "*"}
	default:
		u, err = url.Parse(target)
		if err == nil && !u.IsAbs() {
			err = fmt.Errorf("invalid request target %q", target)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parsing request target: %w", err)
	}

	return a.factory.CreateRequest(raw.Method(), u).
		WithBody(raw.Body()).
		WithAddedHeaders(pairs...), nil
}

// fail answers a request whose dispatch returned an error.
func (a *Adapter) fail(ctx context.Context, w RawResponseWriter, req *message.Request, err error, cleanup func()) {
	se := message.AsStatusError(err)
	level := slog.LevelWarn
	if se.Status >= 500 {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("request_id", RequestIDFromContext(ctx)),
		slog.Int("status", se.Status),
		slog.String("error", err.Error()),
	}
	if req != nil {
		attrs = append(attrs, slog.String("method", req.Method()), slog.String("path", req.Path()))
	}
	a.logger.LogAttrs(ctx, level, "unhandled request error", attrs...)

	resp := se.Response()
	if id := RequestIDFromContext(ctx); id != "" {
		resp = resp.WithHeader(RequestIDHeader, id)
	}
	a.write(ctx, w, resp, cleanup)
}

// write sends resp through w. cleanup runs once the body is done.
func (a *Adapter) write(ctx context.Context, w RawResponseWriter, resp *message.Response, cleanup func()) {
	body := &trackedBody{r: resp.Body(), done: cleanup}

	if err := w.WriteHead(resp.StatusCode(), resp.ReasonPhrase(), resp.Header().Fields()); err != nil {
		body.Close()
		a.logger.Warn("writing response head failed", "request_id", RequestIDFromContext(ctx), "error", err)
		return
	}
	if err := w.WriteBody(body); err != nil {
		debug.Log("transport", "writing response body failed", "request_id", RequestIDFromContext(ctx), "error", err)
	}
}

// trackedBody runs done exactly once, when the body is closed.
type trackedBody struct {
	r    io.Reader
	done func()
	once sync.Once
}

func (b *trackedBody) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

func (b *trackedBody) Close() error {
	err := closeBody(b.r)
	b.once.Do(b.done)
	return err
}
