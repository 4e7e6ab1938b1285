package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rhuss/kette/pkg/accesslog"
	"github.com/rhuss/kette/pkg/auth"
	"github.com/rhuss/kette/pkg/auth/apikey"
	"github.com/rhuss/kette/pkg/auth/jwt"
	"github.com/rhuss/kette/pkg/auth/noop"
	"github.com/rhuss/kette/pkg/config"
	"github.com/rhuss/kette/pkg/debug"
	"github.com/rhuss/kette/pkg/observability"
	"github.com/rhuss/kette/pkg/storage/memory"
	"github.com/rhuss/kette/pkg/storage/pebble"
	"github.com/rhuss/kette/pkg/storage/postgres"
	"github.com/rhuss/kette/pkg/transport"
	transportfast "github.com/rhuss/kette/pkg/transport/fasthttp"
	transporthttp "github.com/rhuss/kette/pkg/transport/http"
)

// FromConfig assembles a server from configuration. The chain is, in order:
// recovery, request ID, logging, metrics, /healthz and /readyz, the
// metrics endpoint, auth, access log, timeout, compression, and finally
// the upstream proxy or a 404 terminal.
//
// ctx bounds store initialization only.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	t, err := newTransport(cfg.Server)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithTransport(t),
		WithLogger(logger),
		WithHost(cfg.Server.Host),
		WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		WithMiddleware(
			transport.Recovery(),
			transport.RequestID(),
			transport.Logging(logger),
		),
	}

	var store accesslog.Store
	if cfg.AccessLog.Enabled {
		store, err = openStore(ctx, cfg.AccessLog, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCloser(store))
	}
	// Stores are closed by the server from here on; release on early exit.
	fail := func(err error) (*Server, error) {
		if store != nil {
			store.Close()
		}
		return nil, err
	}

	metrics := cfg.Observability.Metrics
	if metrics.Enabled {
		opts = append(opts, WithMiddleware(observability.Metrics()))
	}
	opts = append(opts, WithMiddleware(
		transport.Mount("/healthz", healthHandler()),
		transport.Mount("/readyz", readyHandler(store)),
	))
	if metrics.Enabled {
		opts = append(opts, WithMiddleware(transport.Mount(metrics.Path, observability.Handler())))
	}

	authUnit, err := newAuth(cfg.Auth, logger)
	if err != nil {
		return fail(err)
	}
	if authUnit != nil {
		opts = append(opts, WithMiddleware(authUnit))
	}

	if store != nil {
		opts = append(opts, WithMiddleware(accesslog.Middleware(store, logger)))
		if cfg.AccessLog.Retention.Enabled {
			r, err := accesslog.NewRetention(store, cfg.AccessLog.Retention.Schedule, cfg.AccessLog.Retention.MaxAge, logger)
			if err != nil {
				return fail(err)
			}
			opts = append(opts, WithJob("retention", r.Run))
		}
	}

	if d := cfg.Server.HandlerTimeout; d > 0 {
		opts = append(opts, WithMiddleware(transport.Timeout(d)))
	}
	if c := cfg.Compression; c.Enabled {
		opts = append(opts, WithMiddleware(transport.Compression(c.Level, c.MinSize)))
	}

	terminal, err := newTerminal(cfg.Proxy)
	if err != nil {
		return fail(err)
	}
	opts = append(opts, WithMiddleware(terminal...))

	s, err := New(opts...)
	if err != nil {
		return fail(err)
	}
	debug.Log("config", "server assembled",
		"transport", cfg.Server.Transport,
		"units", s.Dispatcher().Len(),
		"auth", cfg.Auth.Type,
		"access_log", cfg.AccessLog.Enabled,
	)
	return s, nil
}

func newTransport(cfg config.ServerConfig) (transport.Transport, error) {
	switch cfg.Transport {
	case "", "http":
		opts := []transporthttp.Option{
			transporthttp.WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout),
			transporthttp.WithMaxBodySize(cfg.MaxBodySize),
		}
		if cfg.TLS.Enabled() {
			opts = append(opts, transporthttp.WithTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile))
		}
		return transporthttp.New(opts...), nil
	case "fasthttp":
		opts := []transportfast.Option{
			transportfast.WithTimeouts(cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout),
			transportfast.WithMaxBodySize(int(cfg.MaxBodySize)),
		}
		if cfg.TLS.Enabled() {
			opts = append(opts, transportfast.WithTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile))
		}
		return transportfast.New(opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrMisconfiguredTransport, cfg.Transport)
	}
}

// newAuth returns nil when neither authentication nor rate limiting is
// configured.
func newAuth(cfg config.AuthConfig, logger *slog.Logger) (transport.Middleware, error) {
	var authn auth.Authenticator
	switch cfg.Type {
	case "", "none":
		if !cfg.RateLimit.Enabled {
			return nil, nil
		}
		authn = noop.Authenticator{}
	case "apikey":
		authn = apikey.FromConfig(cfg.APIKeys)
	case "jwt":
		authn = jwt.New(jwt.ConfigFrom(cfg.JWT))
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	chain := &auth.AuthChain{
		Authenticators:  []auth.Authenticator{authn},
		DefaultDecision: auth.No,
	}

	var limiter auth.RateLimiter
	if rl := cfg.RateLimit; rl.Enabled {
		tiers := make(map[string]auth.TierLimit, len(rl.Tiers))
		for name, t := range rl.Tiers {
			tiers[name] = auth.TierLimit{RPS: t.RPS, Burst: t.Burst}
		}
		limiter = auth.NewTokenBucketLimiter(tiers, auth.TierLimit{RPS: rl.Default.RPS, Burst: rl.Default.Burst}, 0)
	}

	logger.Info("authentication enabled", "type", cfg.Type, "rate_limit", cfg.RateLimit.Enabled)
	return auth.Middleware(chain, limiter, cfg.Bypass, logger), nil
}

func openStore(ctx context.Context, cfg config.AccessLogConfig, logger *slog.Logger) (accesslog.Store, error) {
	switch cfg.Store {
	case "", "memory":
		logger.Info("access log enabled", "store", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "pebble":
		s, err := pebble.Open(cfg.Pebble.Path)
		if err != nil {
			return nil, fmt.Errorf("opening pebble access log: %w", err)
		}
		logger.Info("access log enabled", "store", "pebble", "path", cfg.Pebble.Path)
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.ConfigFrom(cfg.Postgres))
		if err != nil {
			return nil, fmt.Errorf("connecting postgres access log: %w", err)
		}
		logger.Info("access log enabled", "store", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown access log store %q", cfg.Store)
	}
}

func newTerminal(cfg config.ProxyConfig) ([]transport.Middleware, error) {
	if cfg.Upstream == "" {
		return []transport.Middleware{transport.NotFound()}, nil
	}
	u, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream: %w", err)
	}
	client := &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	return []transport.Middleware{observability.Upstream(), transport.Proxy(u, client)}, nil
}

func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
}

// healthChecker is implemented by stores that can verify their backend.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func readyHandler(store accesslog.Store) http.Handler {
	hc, _ := store.(healthChecker)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if hc != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := hc.HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("not ready\n"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	})
}
