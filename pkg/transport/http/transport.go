// Package http implements transport.Transport on top of net/http.
//
// net/http stores headers in a map, so the raw header list handed to the
// adapter is sorted by canonical name; the order of values within a name is
// kept. net/http also writes the standard reason phrase for every status
// code, ignoring custom phrases.
package http

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rhuss/kette/pkg/transport"
)

// Config holds the net/http server settings.
type Config struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64

	// CertFile and KeyFile enable TLS.
	CertFile  string
	KeyFile   string
	TLSConfig *tls.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxBodySize:       10 << 20, // 10 MB
	}
}

// Option configures a Transport.
type Option func(*Config)

// WithTimeouts sets the read, write and idle timeouts. Zero means no
// timeout.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout, c.WriteTimeout, c.IdleTimeout = read, write, idle
	}
}

// WithMaxBodySize sets the maximum request body size. Zero disables the
// limit.
func WithMaxBodySize(n int64) Option {
	return func(c *Config) { c.MaxBodySize = n }
}

// WithTLS enables TLS with the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(c *Config) { c.CertFile, c.KeyFile = certFile, keyFile }
}

// WithTLSConfig enables TLS with a prepared configuration.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Config) { c.TLSConfig = cfg }
}

// Transport serves HTTP with net/http.
type Transport struct {
	config Config
	hooks  transport.Hooks
	failed chan error

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
}

var (
	_ transport.SecureTransport = (*Transport)(nil)
	_ transport.FailureNotifier = (*Transport)(nil)
)

// New creates a net/http transport.
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
		return errors.New("http transport: already listening")
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

	srv := &http.Server{
		Handler:           http.HandlerFunc(t.serveHTTP),
		ReadHeaderTimeout: t.config.ReadHeaderTimeout,
		ReadTimeout:       t.config.ReadTimeout,
		WriteTimeout:      t.config.WriteTimeout,
		IdleTimeout:       t.config.IdleTimeout,
		MaxHeaderBytes:    t.config.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	t.server, t.ln = srv, ln

	if t.hooks.Listening != nil {
		t.hooks.Listening(ln.Addr())
	}

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			t.failed <- err
		}
	}()
	return nil
}

// Close stops accepting connections. Requests being served run to
// completion; their connections are closed afterwards.
func (t *Transport) Close() error {
	t.mu.Lock()
	srv, ln := t.server, t.ln
	t.mu.Unlock()

	if t.hooks.Closing != nil {
		t.hooks.Closing()
	}
	if srv == nil {
		return nil
	}
	srv.SetKeepAlivesEnabled(false)
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

func (t *Transport) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if t.hooks.Request == nil {
		http.Error(w, "no request handler registered", http.StatusServiceUnavailable)
		return
	}
	if t.config.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, t.config.MaxBodySize)
	}
	t.hooks.Request(&rawRequest{r: r}, &rawWriter{w: w, rc: http.NewResponseController(w)})
}
