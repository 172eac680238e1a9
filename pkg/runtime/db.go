package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of the pgx API the executor needs.
// *pgxpool.Pool, *pgx.Conn and pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB represents a database connection.
type DB struct {
	pool   *pgxpool.Pool
	conn   Querier
	config *Config
	logger *slog.Logger
	stats  *Stats

	concurrent bool

	mu    sync.Mutex
	debug bool
	log   []QueryLogEntry
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for failed and slow statements.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// WithDebug enables the in-memory query log.
func WithDebug(enabled bool) Option {
	return func(db *DB) {
		db.debug = enabled
	}
}

// WithStatementTimeout bounds every statement.
func WithStatementTimeout(d time.Duration) Option {
	return func(db *DB) {
		db.config.StatementTimeout = d
	}
}

// WithSlowQueryThreshold sets the duration above which statements are logged as slow.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(db *DB) {
		db.config.SlowQueryThreshold = d
	}
}

// WithConcurrentStatements declares that the Querier can run statements in
// parallel. A DB over a pool always can; a single connection or a
// transaction cannot.
func WithConcurrentStatements(enabled bool) Option {
	return func(db *DB) {
		db.concurrent = enabled
	}
}

func newDB(pool *pgxpool.Pool, conn Querier, config *Config, opts []Option) *DB {
	cfg := *config
	db := &DB{
		pool:   pool,
		conn:   conn,
		config: &cfg,
		logger: slog.Default(),
		stats:  &Stats{},
		debug:  cfg.Debug,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// NewDB creates a new DB instance from a connection pool.
func NewDB(pool *pgxpool.Pool, opts ...Option) *DB {
	return newDB(pool, pool, &Config{}, opts)
}

// NewDBFromQuerier creates a DB over any Querier, such as a transaction or a test double.
func NewDBFromQuerier(conn Querier, opts ...Option) *DB {
	return newDB(nil, conn, &Config{}, opts)
}

// Connect creates a new DB instance by connecting to PostgreSQL.
// Any failure to establish the pool is returned as a *ConnectionError.
func Connect(ctx context.Context, config *Config, opts ...Option) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(config.ConnString())
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("failed to parse config: %w", err)}
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("failed to create connection pool: %w", err)}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &ConnectionError{Err: fmt.Errorf("failed to ping database: %w", err)}
	}

	return newDB(pool, pool, config, opts), nil
}

// ConnectWithURL creates a new DB instance using a connection URL.
func ConnectWithURL(ctx context.Context, url string, opts ...Option) (*DB, error) {
	return Connect(ctx, &Config{URL: url}, opts...)
}

// Pool returns the underlying pgxpool.Pool, or nil when the DB wraps another Querier.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Concurrent reports whether independent statements may run in parallel.
func (db *DB) Concurrent() bool {
	return db.pool != nil || db.concurrent
}

// Config returns a copy of the active configuration.
func (db *DB) Config() Config {
	return *db.config
}

// Stats returns the statement counters.
func (db *DB) Stats() *Stats {
	return db.stats
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return nil
	}
	if err := db.pool.Ping(ctx); err != nil {
		return &ConnectionError{Err: err}
	}
	return nil
}

// Exec executes a statement without returning rows and reports the affected row count.
func (db *DB) Exec(ctx context.Context, sql string, args pgx.NamedArgs) (int64, error) {
	var affected int64
	err := db.run(ctx, sql, args, func(ctx context.Context) error {
		tag, err := db.conn.Exec(ctx, sql, bind(args)...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// Query executes a statement and materializes every row as a column-name keyed map.
func (db *DB) Query(ctx context.Context, sql string, args pgx.NamedArgs) ([]map[string]any, error) {
	var result []map[string]any
	err := db.run(ctx, sql, args, func(ctx context.Context) error {
		rows, err := db.conn.Query(ctx, sql, bind(args)...)
		if err != nil {
			return err
		}
		result, err = pgx.CollectRows(rows, pgx.RowToMap)
		return err
	})
	return result, err
}

// QueryColumn executes a statement and returns the first column of every row.
func (db *DB) QueryColumn(ctx context.Context, sql string, args pgx.NamedArgs) ([]any, error) {
	var result []any
	err := db.run(ctx, sql, args, func(ctx context.Context) error {
		rows, err := db.conn.Query(ctx, sql, bind(args)...)
		if err != nil {
			return err
		}
		result, err = pgx.CollectRows(rows, pgx.RowTo[any])
		return err
	})
	return result, err
}

// QueryInt executes a statement returning a single integer, such as COUNT(*).
func (db *DB) QueryInt(ctx context.Context, sql string, args pgx.NamedArgs) (int64, error) {
	var n int64
	err := db.run(ctx, sql, args, func(ctx context.Context) error {
		return db.conn.QueryRow(ctx, sql, bind(args)...).Scan(&n)
	})
	return n, err
}

// QueryValue executes a statement returning a single value. A missing row
// yields (nil, pgx.ErrNoRows) unwrapped so callers can test for it.
func (db *DB) QueryValue(ctx context.Context, sql string, args pgx.NamedArgs) (any, error) {
	var v any
	err := db.run(ctx, sql, args, func(ctx context.Context) error {
		return db.conn.QueryRow(ctx, sql, bind(args)...).Scan(&v)
	})
	return v, err
}

func (db *DB) run(ctx context.Context, sql string, args pgx.NamedArgs, fn func(context.Context) error) error {
	if db == nil || db.conn == nil {
		return ErrNoConnection
	}

	if timeout := db.config.StatementTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	db.record(sql, args, start)

	if errors.Is(err, pgx.ErrNoRows) {
		db.stats.observe(elapsed, nil)
		return err
	}
	db.stats.observe(elapsed, err)

	if err != nil {
		if db.Debug() {
			db.logger.ErrorContext(ctx, "statement failed", "query", sql, "params", map[string]any(args), "error", err)
		}
		return &StatementError{Query: sql, Params: args, Err: err}
	}

	if threshold := db.config.SlowQueryThreshold; threshold > 0 && elapsed >= threshold {
		db.stats.SlowQueries.Add(1)
		db.logger.WarnContext(ctx, "slow query detected", "duration", elapsed, "query", sql)
	}

	return nil
}

func bind(args pgx.NamedArgs) []any {
	if len(args) == 0 {
		return nil
	}
	return []any{args}
}
