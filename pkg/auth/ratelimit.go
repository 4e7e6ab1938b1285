package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierLimit is a token bucket refilled at RPS tokens per second holding at
// most Burst tokens. A non-positive RPS disables limiting for the tier.
type TierLimit struct {
	RPS   float64
	Burst int
}

// TokenBucketLimiter keeps one token bucket per subject and tier. Buckets
// unused for longer than the idle TTL are evicted.
type TokenBucketLimiter struct {
	tiers       map[string]TierLimit
	defaultTier TierLimit
	ttl         time.Duration
	now         func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter creates a limiter with per-tier configuration.
// Identities whose tier is not configured use defaultTier. A ttl of zero
// means ten minutes.
func NewTokenBucketLimiter(tiers map[string]TierLimit, defaultTier TierLimit, ttl time.Duration) *TokenBucketLimiter {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenBucketLimiter{
		tiers:       tiers,
		defaultTier: defaultTier,
		ttl:         ttl,
		now:         time.Now,
		buckets:     make(map[string]*bucket),
	}
}

// Allow takes one token from the identity's bucket and returns
// ErrTooManyRequests when none is left.
func (l *TokenBucketLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.ServiceTier
	if tier == "" {
		tier = "default"
	}

	limit := l.defaultTier
	if tc, ok := l.tiers[tier]; ok {
		limit = tc
	}
	if limit.RPS <= 0 {
		return nil
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = 1
	}

	key := identity.Subject + ":" + tier
	now := l.now()

	l.mu.Lock()
	l.sweepLocked(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(limit.RPS), burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if !b.limiter.AllowN(now, 1) {
		return ErrTooManyRequests
	}
	return nil
}

// Len returns the number of live buckets.
func (l *TokenBucketLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweepLocked drops idle buckets, at most once per ttl.
func (l *TokenBucketLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.ttl {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.ttl {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
