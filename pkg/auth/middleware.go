package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rhuss/kette/pkg/debug"
	"github.com/rhuss/kette/pkg/message"
	"github.com/rhuss/kette/pkg/observability"
	"github.com/rhuss/kette/pkg/transport"
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware creates a chain unit from an AuthChain and optional RateLimiter.
// It checks the bypass list, runs authentication, injects identity and
// tenant into the context, and optionally enforces rate limits. Rejections
// are returned as StatusErrors for the adapter to render.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string, logger *slog.Logger) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}
	var challenge message.Header
	if c := chain.Challenges(); len(c) > 0 {
		challenge = challenge.With("WWW-Authenticate", c...)
	}

	return transport.MiddlewareFunc(func(ctx context.Context, req *message.Request, next transport.Handler) (*message.Response, error) {
		if bypass[req.Path()] {
			return next.Handle(ctx, req)
		}

		result := chain.Authenticate(ctx, req)

		if result.Decision != Yes || result.Identity == nil {
			cause := result.Err
			if cause == nil {
				cause = ErrUnauthenticated
			}
			logger.Warn("authentication failed",
				"request_id", transport.RequestIDFromContext(ctx),
				"path", req.Path(),
				"error", cause,
			)
			observability.AuthRejectedTotal.Inc()
			se := message.NewUnauthorizedError("authentication required")
			se.Header = challenge
			se.Err = cause
			return nil, se
		}

		if result.Identity.Subject == "" {
			logger.Error("authenticator returned identity with empty subject")
			return nil, message.NewServerError("internal authentication error")
		}

		debug.Log("auth", "authentication succeeded",
			"subject", result.Identity.Subject,
			"path", req.Path(),
		)

		if limiter != nil {
			if err := limiter.Allow(ctx, result.Identity); err != nil {
				if !errors.Is(err, ErrTooManyRequests) {
					// Limiter failures fail open.
					logger.Error("rate limiter failed", "error", err)
				} else {
					logger.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"tier", result.Identity.ServiceTier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(tierLabel(result.Identity)).Inc()
					se := message.NewTooManyRequestsError("rate limit exceeded")
					se.Err = err
					return nil, se
				}
			}
		}

		return next.Handle(WithIdentity(ctx, result.Identity), req)
	})
}

func tierLabel(id *Identity) string {
	if id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}
