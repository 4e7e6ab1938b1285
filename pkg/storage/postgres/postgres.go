// Package postgres provides a PostgreSQL implementation of accesslog.Store.
// It uses pgx/v5 for connection pooling and embedded SQL migrations for
// the schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/kette/pkg/accesslog"
	"github.com/rhuss/kette/pkg/storage"
)

// Store is a PostgreSQL-backed access log.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements accesslog.Store at compile time.
var _ accesslog.Store = (*Store)(nil)

// New connects to PostgreSQL and, with MigrateOnStart, brings the schema
// up to date.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

const selectColumns = `id, request_id, tenant_id, subject, method, host, path,
	status, duration_ns, error, created_at`

// Append inserts a record.
func (s *Store) Append(ctx context.Context, rec accesslog.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO access_log (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		rec.ID, rec.RequestID, rec.Tenant, rec.Subject, rec.Method, rec.Host, rec.Path,
		rec.Status, rec.Duration.Nanoseconds(), rec.Error, rec.Time,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (accesslog.Record, error) {
	var rec accesslog.Record
	var durationNS int64
	err := row.Scan(
		&rec.ID, &rec.RequestID, &rec.Tenant, &rec.Subject, &rec.Method, &rec.Host, &rec.Path,
		&rec.Status, &durationNS, &rec.Error, &rec.Time,
	)
	rec.Duration = time.Duration(durationNS)
	rec.Time = rec.Time.UTC()
	return rec, err
}

// Get retrieves a record by ID, scoped by tenant when one is present in
// the context.
func (s *Store) Get(ctx context.Context, id string) (accesslog.Record, error) {
	query := "SELECT " + selectColumns + " FROM access_log WHERE id = $1"
	args := []any{id}

	if sc := storage.ScopeFrom(ctx); !sc.Unscoped() {
		query += " AND tenant_id = $2"
		args = append(args, sc.Tenant)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return accesslog.Record{}, fmt.Errorf("querying record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return accesslog.Record{}, fmt.Errorf("querying record: %w", err)
		}
		return accesslog.Record{}, storage.ErrNotFound
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return accesslog.Record{}, fmt.Errorf("scanning record: %w", err)
	}
	return rec, nil
}

// List returns matching records newest first.
func (s *Store) List(ctx context.Context, opts accesslog.ListOptions) ([]accesslog.Record, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if sc := storage.ScopeFrom(ctx); !sc.Unscoped() {
		where = append(where, "tenant_id = "+arg(sc.Tenant))
	}
	if !opts.Since.IsZero() {
		where = append(where, "created_at >= "+arg(opts.Since))
	}
	if !opts.Until.IsZero() {
		where = append(where, "created_at < "+arg(opts.Until))
	}

	query := "SELECT " + selectColumns + " FROM access_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(opts.EffectiveLimit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	recs := make([]accesslog.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return recs, nil
}

// Prune deletes every record older than before.
func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	result, err := s.pool.Exec(ctx, "DELETE FROM access_log WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("pruning records: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
