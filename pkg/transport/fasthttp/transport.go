// Package fasthttp implements transport.Transport on top of
// github.com/valyala/fasthttp.
//
// Unlike net/http, fasthttp keeps header names as sent and lets the server
// choose the reason phrase, so requests reach the chain with their wire
// header order and casing. Request bodies are read fully before the chain
// runs (bounded by MaxRequestBodySize), and fasthttp gives no per-request
// signal when a client disconnects.
package fasthttp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/rhuss/kette/pkg/transport"
)

// Config holds the fasthttp server settings.
type Config struct {
	Name               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	MaxRequestBodySize int
	Concurrency        int

	// CertFile and KeyFile enable TLS.
	CertFile  string
	KeyFile   string
	TLSConfig *tls.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:               "kette",
		IdleTimeout:        120 * time.Second,
		MaxRequestBodySize: 10 << 20, // 10 MB
	}
}

// Option configures a Transport.
type Option func(*Config)

// WithTimeouts sets the read, write and idle timeouts.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout, c.WriteTimeout, c.IdleTimeout = read, write, idle
	}
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int) Option {
	return func(c *Config) { c.MaxRequestBodySize = n }
}

// WithConcurrency caps the number of concurrent connections.
func WithConcurrency(n int) Option {
	return func(c *Config) { c.Concurrency = n }
}

// WithTLS enables TLS with the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) { c.CertFile, c.KeyFile = certFile, keyFile }
}

// WithTLSConfig enables TLS with a prepared configuration.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Config) { c.TLSConfig = cfg }
}

// Transport serves HTTP with fasthttp.
type Transport struct {
	config Config
	hooks  transport.Hooks
	failed chan error

	mu     sync.Mutex
	server *fasthttp.Server
	ln     net.Listener
}

var (
	_ transport.SecureTransport = (*Transport)(nil)
	_ transport.FailureNotifier = (*Transport)(nil)
)

// New creates a fasthttp transport.
func New(opts ...Option) *Transport {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Transport{config: cfg, failed: make(chan error, 1)}
}

// Subscribe registers the adapter callbacks.
func (t *Transport) Subscribe(hooks transport.Hooks) { t.hooks = hooks }

// Secure reports whether the transport terminates TLS.
func (t *Transport) Secure() bool {
	return t.config.TLSConfig != nil || (t.config.CertFile != "" && t.config.KeyFile != "")
}

// Failed delivers the error that stopped the serve loop, if any.
func (t *Transport) Failed() <-chan error { return t.failed }

// Listen binds addr and serves in the background.
func (t *Transport) Listen(addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		return errors.New("fasthttp transport: already listening")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if t.Secure() {
		tlsCfg, err := t.tlsConfig()
		if err != nil {
			ln.Close()
			return err
		}
		ln = tls.NewListener(ln, tlsCfg)
	}

	srv := &fasthttp.Server{
		Handler:                       t.serve,
		Name:                          t.config.Name,
		ReadTimeout:                   t.config.ReadTimeout,
		WriteTimeout:                  t.config.WriteTimeout,
		IdleTimeout:                   t.config.IdleTimeout,
		MaxRequestBodySize:            t.config.MaxRequestBodySize,
		Concurrency:                   t.config.Concurrency,
		DisableHeaderNamesNormalizing: true,
		NoDefaultContentType:          true,
		Logger:                        slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	t.server, t.ln = srv, ln

	if t.hooks.Listening != nil {
		t.hooks.Listening(ln.Addr())
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			t.failed <- err
		}
	}()
	return nil
}

// Close stops accepting connections. Connections being served finish their
// current request.
func (t *Transport) Close() error {
	t.mu.Lock()
	ln := t.ln
	t.mu.Unlock()

	if t.hooks.Closing != nil {
		t.hooks.Closing()
	}
	if ln == nil {
		return nil
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing listener: %w", err)
	}
	return nil
}

func (t *Transport) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if t.config.TLSConfig != nil {
		cfg = t.config.TLSConfig.Clone()
	}
	if len(cfg.Certificates) == 0 && cfg.GetCertificate == nil {
		cert, err := tls.LoadX509KeyPair(t.config.CertFile, t.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func (t *Transport) serve(ctx *fasthttp.RequestCtx) {
	if t.hooks.Request == nil {
		ctx.Error("no request handler registered", fasthttp.StatusServiceUnavailable)
		return
	}
	t.hooks.Request(newRawRequest(ctx), &rawWriter{ctx: ctx, size: -1})
}
