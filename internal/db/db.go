// Package db opens the shared database handle used by every store in the
// gateway. It supports SQLite (in-memory or on disk, single replica) and
// PostgreSQL (external, multi-replica).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/subkeyhq/gateway/internal/logger"
)

type Type string

const (
	TypeSQLite   Type = "sqlite"
	TypePostgres Type = "postgres"

	driverSQLite   = "sqlite3"
	driverPostgres = "pgx"

	// Memory is the SQLite in-memory DSN (ephemeral, for testing).
	Memory = ":memory:"
)

// DB bundles the sql.DB handle with its backend type so stores can build
// portable queries.
type DB struct {
	*sql.DB

	Type Type
}

// OpenSQLite opens a SQLite database. Use db.Memory for an in-memory
// database, or a file path like "/data/gateway.db" for persistent storage.
func OpenSQLite(ctx context.Context, log *logger.Logger, dbPath string) (*DB, error) {
	if dbPath == "" {
		dbPath = Memory
	}

	dsn := dbPath
	if dbPath != Memory {
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", dbPath)
	}

	handle, err := sql.Open(driverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	configureConnectionPool(handle, TypeSQLite)

	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if dbPath == Memory {
		log.Info("Connected to SQLite in-memory database (ephemeral - data will be lost on restart)")
	} else {
		log.Info("Connected to SQLite database", "path", dbPath)
	}
	return &DB{DB: handle, Type: TypeSQLite}, nil
}

// OpenPostgres connects to an external PostgreSQL database.
func OpenPostgres(ctx context.Context, log *logger.Logger, databaseURL string) (*DB, error) {
	databaseURL = strings.TrimSpace(databaseURL)

	if !strings.HasPrefix(databaseURL, "postgresql://") && !strings.HasPrefix(databaseURL, "postgres://") {
		return nil, fmt.Errorf(
			"unsupported external database URL: %q. Currently supported: postgresql://",
			databaseURL)
	}

	handle, err := sql.Open(driverPostgres, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	configureConnectionPool(handle, TypePostgres)

	if err := handle.PingContext(ctx); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	log.Info("Connected to external PostgreSQL database")
	return &DB{DB: handle, Type: TypePostgres}, nil
}

// Placeholder returns the appropriate SQL placeholder for the backend.
// SQLite uses ?, PostgreSQL uses $1, $2, etc.
func (d *DB) Placeholder(index int) string {
	if d.Type == TypeSQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", index)
}

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// configureConnectionPool sets connection pool settings per backend.
func configureConnectionPool(handle *sql.DB, dbType Type) {
	if dbType == TypePostgres {
		handle.SetMaxOpenConns(defaultMaxOpenConns)
		handle.SetMaxIdleConns(defaultMaxIdleConns)
		handle.SetConnMaxLifetime(defaultConnMaxLifetime)
	} else {
		// SQLite: single connection to avoid database locking issues
		handle.SetMaxOpenConns(1)
		handle.SetMaxIdleConns(1)
		handle.SetConnMaxLifetime(0)
	}
}
