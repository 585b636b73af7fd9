// Package store implements the single-writer, multi-reader transactional
// local store (spec §4.4, C4): idempotent upserts plus the read queries
// the Planner, Ratio Derivator and TTM Derivator need.
//
// The connection setup mirrors the teacher's internal/database.DB: a pure
// Go SQLite driver opened with WAL-mode pragmas tuned for a single writer
// and many readers, schema applied from an embedded SQL file rather than
// a migration framework.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"
)

//go:embed schema/schema.sql
var schemaFS embed.FS

// Store wraps the database connection with the engine's pragma profile.
type Store struct {
	conn *sql.DB
	path string
}

// Config configures how the store opens its backing file.
type Config struct {
	// Path is the SQLite file path, or a "file:" URI (e.g.
	// "file::memory:?cache=shared") for in-memory test databases.
	Path string
}

// Open opens (creating if necessary) the store's SQLite file, applies the
// WAL-mode pragmas appropriate for a single-writer workload, and runs the
// embedded schema.
func Open(cfg Config) (*Store, error) {
	connStr := buildConnectionString(cfg.Path)

	conn, err := sql.Open(sqlDriverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.Path, err)
	}

	// Up to 8 pooled connections: SQLite under WAL serves concurrent
	// readers, and the DSN's 5000ms busy_timeout makes a writer that finds
	// the write lock taken wait for it instead of failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	s := &Store{conn: conn, path: cfg.Path}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return s, nil
}

func buildConnectionString(path string) string {
	if sqlDriverName == "sqlite3" {
		// mattn/go-sqlite3 DSN pragma syntax.
		return path + "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=1&_busy_timeout=5000"
	}
	// modernc.org/sqlite DSN pragma syntax.
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

func (s *Store) migrate() error {
	content, err := schemaFS.ReadFile("schema/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema: %w", err)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	if _, err := tx.Exec(string(content)); err != nil {
		_ = tx.Rollback()
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the raw *sql.DB for components that need custom queries
// beyond the ones Store exposes directly.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// WithTx runs fn inside a single committed transaction, rolling back on
// error or panic. This is the "one transaction per committed unit" the
// Store contract requires: callers pass one symbol's writes (fetch
// stages) or one batch's writes (derivation stages) as fn.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}
