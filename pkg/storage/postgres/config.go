package postgres

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/kette/pkg/config"
)

// Pool defaults.
const (
	DefaultMaxConns        int32 = 25
	DefaultMinConns        int32 = 5
	DefaultMaxConnLifetime       = 5 * time.Minute
)

// Config describes the connection pool of a Store. Zero fields fall back to
// the package defaults.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrateOnStart  bool
}

// ConfigFrom converts the access log's postgres section.
func ConfigFrom(c config.PostgresConfig) Config {
	return Config{
		DSN:            c.DSN,
		MaxConns:       c.MaxConns,
		MigrateOnStart: c.MigrateOnStart,
	}
}

// poolConfig parses the DSN and applies the pool limits.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	pc.MaxConns = orDefault(c.MaxConns, DefaultMaxConns)
	pc.MinConns = min(orDefault(c.MinConns, DefaultMinConns), pc.MaxConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, DefaultMaxConnLifetime)
	return pc, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
