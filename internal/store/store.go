// Package store is a relational record of repositories, branches, commits,
// builds, deploy configs, versions and events over an embedded SQLite
// database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/kj800x/cicd-controller/internal/apperr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the embedded database connection. Opened once per process; a
// single writer is sufficient, readers may be concurrent under WAL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pending goose migrations, and configures WAL journaling so readers do not
// block writers.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, apperr.New(apperr.KindStore, "database path must not be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, apperr.Wrap(apperr.KindStore, "create database directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, "open sqlite database", err)
	}

	// A single writer is sufficient; WAL lets readers proceed concurrently,
	// but modernc.org/sqlite serializes writers per connection, so cap at a
	// handful of connections to avoid SQLITE_BUSY under load.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindStore, "ping sqlite database", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindStore, "set goose dialect", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindStore, "apply migrations", err)
	}

	logger.Info("store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need a raw statement,
// such as tests seeding fixture rows.
func (s *Store) DB() *sql.DB {
	return s.db
}
