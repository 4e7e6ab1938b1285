// Package accesslog records one entry per request that passes through the
// chain and persists it in a pluggable Store. A Retention scheduler prunes
// old entries on a cron schedule.
package accesslog

import (
	"context"
	"time"
)

// Record is one access log entry.
type Record struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id,omitempty"`
	Time      time.Time     `json:"time"`
	Method    string        `json:"method"`
	Host      string        `json:"host,omitempty"`
	Path      string        `json:"path"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"duration"`
	Tenant    string        `json:"tenant,omitempty"`
	Subject   string        `json:"subject,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ListOptions filters List. Zero times leave the range open.
type ListOptions struct {
	// Since includes records at or after this time.
	Since time.Time
	// Until includes records strictly before this time.
	Until time.Time
	// Limit caps the result size; zero means DefaultListLimit.
	Limit int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// EffectiveLimit clamps Limit to [1, MaxListLimit].
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// Matches reports whether t falls in the option's time range.
func (o ListOptions) Matches(t time.Time) bool {
	if !o.Since.IsZero() && t.Before(o.Since) {
		return false
	}
	if !o.Until.IsZero() && !t.Before(o.Until) {
		return false
	}
	return true
}

// Store persists access log records.
//
// List and Get are scoped to the tenant in the context (see
// storage.ScopeFrom); without a tenant every record is visible. List
// returns records newest first. Get returns storage.ErrNotFound for
// unknown or invisible IDs; Append returns storage.ErrConflict for a
// duplicate ID.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, opts ListOptions) ([]Record, error)
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}
