package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"direktori/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

const defaultConnectTimeout = 10 * time.Second

// Options configures the connection pool.
type Options struct {
	URL string
	// MaxConns caps the pool; zero keeps the pgx default.
	MaxConns       int
	ConnectTimeout time.Duration
	// EnsureSchema creates the table and indexes when they are missing.
	EnsureSchema bool
	// ApplicationName tags server-side sessions (pg_stat_activity).
	ApplicationName string
}

// Store manages the shared work queue in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ queue.Store = (*Store)(nil)

// Open connects, pings, and optionally applies the schema.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	cfg.MinConns = 1
	if opts.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = opts.ApplicationName
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &Store{pool: pool}
	if opts.EnsureSchema {
		if err := store.ensureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", mapPgErr(err))
	}
	return nil
}

// Ping verifies the database answers queries.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("queue database connection unavailable")
	}
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// PoolStats reports connection pool usage for the run progress line.
func (s *Store) PoolStats() (total, idle, max int32) {
	stat := s.pool.Stat()
	return stat.TotalConns(), stat.IdleConns(), stat.MaxConns()
}

func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return queue.ErrDuplicateKey
		case "23514":
			return fmt.Errorf("%w: %s", queue.ErrInvalidStatus, pgErr.Message)
		default:
			return fmt.Errorf("db_error %s: %s", pgErr.Code, pgErr.Message)
		}
	}
	return err
}

// execOne runs a single-row update and maps zero affected rows to ErrNotFound.
func (s *Store) execOne(ctx context.Context, op string, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPgErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, queue.ErrNotFound)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Truncate empties the table and restarts ids. Test and staging use only.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE direktori_ids RESTART IDENTITY`); err != nil {
		return fmt.Errorf("truncate queue: %w", mapPgErr(err))
	}
	return nil
}
