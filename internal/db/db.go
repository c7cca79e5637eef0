// Package db provides PostgreSQL database access for the resume screener.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultSlowQueryThreshold flags statements slower than this outside production.
const defaultSlowQueryThreshold = time.Second

// txWatchdogTimeout force-releases a transaction connection that was never
// released explicitly. Trade-off carried over from the original design: leak
// safety over the risk of cutting off a legitimately slow transaction.
const txWatchdogTimeout = 5 * time.Second

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool          *pgxpool.Pool
	slowThreshold time.Duration
	production    bool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		pool:          pool,
		slowThreshold: defaultSlowQueryThreshold,
		production:    os.Getenv("APP_ENV") == "production",
	}
	if ms := os.Getenv("SLOW_QUERY_MS"); ms != "" {
		if d, err := time.ParseDuration(ms + "ms"); err == nil && d > 0 {
			db.slowThreshold = d
		}
	}
	return db, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Exec runs a parameterized statement, logging and propagating failures.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := db.pool.Exec(ctx, sql, args...)
	db.observe(sql, start, err)
	if err != nil {
		return tag, fmt.Errorf("exec failed: %w", err)
	}
	return tag, nil
}

// Query runs a parameterized query, logging and propagating failures.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := db.pool.Query(ctx, sql, args...)
	db.observe(sql, start, err)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

// QueryRow runs a parameterized single-row query. Errors surface at Scan time,
// matching pgx semantics.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	start := time.Now()
	row := db.pool.QueryRow(ctx, sql, args...)
	db.observe(sql, start, nil)
	return row
}

// observe logs failed statements always and slow statements outside production.
func (db *DB) observe(sql string, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("[db] query error after %v: %v (query: %.120s)", elapsed, err, sql)
		return
	}
	if !db.production && elapsed > db.slowThreshold {
		log.Printf("[db] slow query (%v): %.120s", elapsed, sql)
	}
}

// WithTx acquires a dedicated connection, begins a transaction, and invokes fn.
// The transaction commits when fn returns nil and rolls back otherwise. The
// connection is released exactly once; a watchdog releases it after 5 seconds
// if fn never returns control.
func (db *DB) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}

	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() { conn.Release() })
	}
	watchdog := time.AfterFunc(txWatchdogTimeout, func() {
		log.Printf("[db] transaction connection not released after %v, releasing automatically", txWatchdogTimeout)
		release()
	})
	defer watchdog.Stop()
	defer release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil && rErr != pgx.ErrTxClosed {
			log.Printf("[db] rollback error: %v", rErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
