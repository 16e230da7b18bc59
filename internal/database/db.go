// Package database provides database connection and initialization functionality.
//
// Two databases back the service:
//   - catalog.db (ProfileStandard): platforms, products, prices, history,
//     discounts, campaigns. The price update engine writes here under
//     IMMEDIATE transactions; everything else reads.
//   - kv.db (ProfileCache): the external key/value cache backend. Losing it
//     costs nothing but cache misses, so it runs with synchronous=OFF.
//
// Every statement executed through the wrapper is timed and handed to the
// registered Observer so the monitoring core sees all SQL traffic.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Profile defines different configuration profiles for databases
type Profile string

const (
	// ProfileStandard - balanced configuration for the catalog database
	ProfileStandard Profile = "standard"
	// ProfileCache - maximum speed for ephemeral cache data
	ProfileCache Profile = "cache"
)

// Observer receives a record of every executed statement.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveQuery(sqlText string, duration time.Duration, rowsAffected int64, err error)
}

// PoolConfig mirrors the classic pool-size/overflow model: PoolSize idle
// connections are kept warm and up to PoolSize+MaxOverflow may be open.
type PoolConfig struct {
	PoolSize       int
	MaxOverflow    int
	AcquireTimeout time.Duration
	Recycle        time.Duration
}

// Config holds database configuration
type Config struct {
	Path    string
	Profile Profile
	Name    string // Friendly name for logging (e.g., "catalog", "kv")
	Pool    PoolConfig
}

// DB wraps the database connection with production-grade configuration
type DB struct {
	conn     *sql.DB
	path     string
	profile  Profile
	name     string
	acquire  time.Duration
	observer Observer
}

// New creates a new database connection with production-grade configuration
func New(cfg Config) (*DB, error) {
	// file: URIs (in-memory databases in tests) skip filepath handling
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configurePool(conn, cfg)

	// Pre-ping: fail fast on an unreachable or corrupt database file
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	acquire := cfg.Pool.AcquireTimeout
	if acquire <= 0 {
		acquire = 30 * time.Second
	}

	return &DB{
		conn:    conn,
		path:    cfg.Path,
		profile: cfg.Profile,
		name:    cfg.Name,
		acquire: acquire,
	}, nil
}

// buildConnectionString creates SQLite connection string with profile-specific PRAGMAs
func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileCache:
		// Maximum speed - ephemeral data
		connStr += "&_pragma=synchronous(OFF)"
		connStr += "&_pragma=auto_vacuum(FULL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	case ProfileStandard:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}

	// Common PRAGMAs for all profiles
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)" // 64MB cache (negative = KB)

	return connStr
}

// configurePool sets up connection pool for long-term operation
func configurePool(conn *sql.DB, cfg Config) {
	poolSize := cfg.Pool.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	overflow := cfg.Pool.MaxOverflow
	if overflow < 0 {
		overflow = 0
	}

	conn.SetMaxOpenConns(poolSize + overflow)
	conn.SetMaxIdleConns(poolSize)

	recycle := cfg.Pool.Recycle
	if recycle <= 0 {
		recycle = time.Hour
	}
	conn.SetConnMaxLifetime(recycle)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	// Cache database needs far fewer connections
	if cfg.Profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// SetObserver registers the statement observer. Call once during wiring,
// before the database sees traffic.
func (db *DB) SetObserver(obs Observer) {
	db.observer = obs
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection.
// Used by repositories that manage their own statements.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Name returns the database name for logging
func (db *DB) Name() string {
	return db.name
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

func (db *DB) observe(sqlText string, start time.Time, rows int64, err error) {
	if db.observer != nil {
		db.observer.ObserveQuery(sqlText, time.Since(start), rows, err)
	}
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.ExecContext(context.Background(), query, args...)
}

// ExecContext executes a query with context
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := db.withAcquireTimeout(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, query, args...)
	var rows int64
	if err == nil && res != nil {
		rows, _ = res.RowsAffected()
	}
	db.observe(query, start, rows, err)
	return res, err
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.QueryContext(context.Background(), query, args...)
}

// QueryContext executes a query with context
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, cancel := db.withAcquireTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	db.observe(query, start, 0, err)
	return rows, err
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.QueryRowContext(context.Background(), query, args...)
}

// QueryRowContext executes a query with context
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := db.conn.QueryRowContext(ctx, query, args...)
	db.observe(query, start, 0, nil)
	return row
}

// withAcquireTimeout bounds statement execution by the pool acquisition
// timeout unless the caller already set a tighter deadline.
func (db *DB) withAcquireTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.acquire)
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// BeginTx starts a new transaction with options
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, opts)
}

// WithTransaction executes a function within a database transaction.
// It handles begin, commit, rollback, panic recovery, and error wrapping.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			rollbackErr := tx.Rollback()
			if rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else {
			if commitErr := tx.Commit(); commitErr != nil {
				err = fmt.Errorf("failed to commit transaction: %w", commitErr)
			}
		}
	}()

	err = fn(tx)
	return err
}

// TxConn is the executor handed to write protocols running under
// WithWriteLock. It pins all statements to one connection so they share
// the IMMEDIATE transaction.
type TxConn struct {
	conn *sql.Conn
}

// ExecContext executes a statement on the pinned connection.
func (t *TxConn) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

// QueryRowContext executes a single-row query on the pinned connection.
func (t *TxConn) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

// WithWriteLock runs fn inside a BEGIN IMMEDIATE transaction on a pinned
// connection. fn receives a TxConn whose statements all execute within the
// transaction. Rollback on error, commit on success.
func (db *DB) WithWriteLock(ctx context.Context, fn func(*TxConn) error) (err error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if !committed && err != nil {
			_, _ = conn.ExecContext(ctx, "ROLLBACK")
		}
	}()

	if err = fn(&TxConn{conn: conn}); err != nil {
		return err
	}

	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// HealthCheck performs a comprehensive health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}

	var integrityResult string
	err := db.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrityResult)
	if err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
	}
	if integrityResult != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, integrityResult)
	}

	return nil
}

// QuickCheck performs a quick health check (SELECT 1, no integrity check).
// The HTTP health gate calls this on every critical request.
func (db *DB) QuickCheck(ctx context.Context) error {
	var one int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health probe failed for %s: %w", db.name, err)
	}
	return nil
}

// PoolStats reports connection pool utilisation for the monitoring core.
type PoolStats struct {
	MaxOpen     int
	Open        int
	InUse       int
	Idle        int
	WaitCount   int64
	WaitSeconds float64
}

// GetPoolStats snapshots the connection pool.
func (db *DB) GetPoolStats() PoolStats {
	s := db.conn.Stats()
	return PoolStats{
		MaxOpen:     s.MaxOpenConnections,
		Open:        s.OpenConnections,
		InUse:       s.InUse,
		Idle:        s.Idle,
		WaitCount:   s.WaitCount,
		WaitSeconds: s.WaitDuration.Seconds(),
	}
}

// Stats returns database file statistics
type Stats struct {
	SizeBytes    int64
	WALSizeBytes int64
	PageCount    int64
	PageSize     int64
}

// GetStats retrieves database statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if fileInfo, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = fileInfo.Size()
	}
	if fileInfo, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = fileInfo.Size()
	}

	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := db.conn.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}

	return stats, nil
}
