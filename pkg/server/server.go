// Package server assembles a transport, a request factory and a middleware
// chain into a runnable HTTP server.
//
// Programmatic use goes through New and its options. FromConfig builds the
// production stack (metrics, auth, access log, proxy) from a config.Config.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rhuss/kette/pkg/message"
	"github.com/rhuss/kette/pkg/transport"
)

// ErrMisconfiguredTransport is returned by New when no transport was given.
var ErrMisconfiguredTransport = errors.New("server: no transport configured")

// DefaultShutdownTimeout bounds the drain phase of Run.
const DefaultShutdownTimeout = 30 * time.Second

// Job is a background task that runs for the lifetime of Run. It must
// return when ctx is cancelled.
type Job func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithTransport sets the native transport. Required.
func WithTransport(t transport.Transport) Option {
	return func(s *Server) { s.transport = t }
}

// WithHandler replaces the server-owned dispatcher with h. Units given with
// WithMiddleware still run in front of h.
func WithHandler(h transport.Handler) Option {
	return func(s *Server) { s.handler = h }
}

// WithRequestFactory sets the factory used to build incoming requests.
func WithRequestFactory(f message.RequestFactory) Option {
	return func(s *Server) { s.factory = f }
}

// WithLogger sets the lifecycle logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithHost sets the interface to bind. Empty means all interfaces.
func WithHost(host string) Option {
	return func(s *Server) { s.host = host }
}

// WithMiddleware appends units to the server's dispatcher.
func WithMiddleware(units ...transport.Middleware) Option {
	return func(s *Server) { s.units = append(s.units, units...) }
}

// WithShutdownTimeout sets how long Run waits for in-flight requests.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// WithCloser registers a resource closed after the server has shut down.
// Closers run in reverse registration order.
func WithCloser(c io.Closer) Option {
	return func(s *Server) { s.closers = append(s.closers, c) }
}

// WithJob registers a background task started by Run.
func WithJob(name string, job Job) Option {
	return func(s *Server) { s.jobs = append(s.jobs, namedJob{name: name, run: job}) }
}

type namedJob struct {
	name string
	run  Job
}

// Server binds a transport adapter to a handler.
type Server struct {
	transport       transport.Transport
	handler         transport.Handler
	factory         message.RequestFactory
	logger          *slog.Logger
	host            string
	units           []transport.Middleware
	shutdownTimeout time.Duration
	closers         []io.Closer
	jobs            []namedJob

	dispatcher *transport.Dispatcher
	adapter    *transport.Adapter
	closeOnce  sync.Once
	closeErr   error
}

// New creates a server. Without WithHandler the server owns a Dispatcher
// holding the WithMiddleware units; more can be added through Dispatcher.
func New(opts ...Option) (*Server, error) {
	s := &Server{shutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		return nil, ErrMisconfiguredTransport
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.factory == nil {
		s.factory = message.Factory{}
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = DefaultShutdownTimeout
	}

	switch {
	case s.handler == nil:
		s.dispatcher = transport.NewDispatcher(s.units...)
		s.handler = s.dispatcher
	case len(s.units) > 0:
		s.dispatcher = transport.NewDispatcher(append(s.units, transport.Terminal(s.handler))...)
		s.handler = s.dispatcher
	}

	s.adapter = transport.NewAdapter(s.transport, s.handler, s.factory, s.logger, transport.WithHost(s.host))
	return s, nil
}

// Dispatcher returns the server's dispatcher, or nil when a bare handler
// was supplied with WithHandler.
func (s *Server) Dispatcher() *transport.Dispatcher { return s.dispatcher }

// Scheme returns "http" or "https".
func (s *Server) Scheme() string { return s.adapter.Scheme() }

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() net.Addr { return s.adapter.Addr() }

// Start binds the transport to port and serves in the background.
func (s *Server) Start(port int) error { return s.adapter.Start(port) }

// Stop closes the transport. In-flight requests finish on their own.
func (s *Server) Stop() error { return s.adapter.Stop() }

// Shutdown stops the transport, waits for in-flight requests until ctx
// expires, then releases registered closers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.adapter.Shutdown(ctx)
	return errors.Join(err, s.close())
}

func (s *Server) close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Run starts the server on port, runs the background jobs and blocks until
// ctx is done or the transport reports a failure. It then shuts down within
// the configured grace period.
func (s *Server) Run(ctx context.Context, port int) error {
	if err := s.Start(port); err != nil {
		return errors.Join(err, s.close())
	}

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := job.run(jobCtx); err != nil {
				s.logger.Error("background job failed", "job", job.name, "error", err)
			}
		}()
	}

	var failed <-chan error
	if fn, ok := s.transport.(transport.FailureNotifier); ok {
		failed = fn.Failed()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down gracefully", "timeout", s.shutdownTimeout)
	case err := <-failed:
		runErr = fmt.Errorf("transport failed: %w", err)
	}

	cancelJobs()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}
