// Package db opens the SQLite databases used by dirsync: the checksum
// ledger and the bundled local contact store.
package db

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/dirsync/internal/utils"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Every statement is committed on its own and synced before the next one.
const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA synchronous=FULL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
`

type options struct {
	path   string
	schema string
}

// Option configures Open.
type Option func(*options)

// WithPath sets the database file. MemoryPath selects an in-memory database.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithSchema runs the given DDL right after the pragmas. It must be
// idempotent (CREATE ... IF NOT EXISTS).
func WithSchema(schema string) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// Open connects to a SQLite database, applies pragmas and the optional schema.
func Open(opts ...Option) (*sqlx.DB, error) {
	cfg := &options{path: MemoryPath}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := MemoryPath
	if cfg.path != MemoryPath {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	}

	slog.Debug("db open", "driver", driverID, "path", cfg.path)
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// single writer; an in-memory database also lives and dies with its only connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(defaultPragma); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	if cfg.schema != "" {
		if _, err := db.Exec(cfg.schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return db, nil
}
