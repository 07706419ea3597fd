package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned by operations on a closed Database.
var ErrClosed = errors.New("database connection is closed")

// Database owns the cache database file: it creates the parent directory,
// applies migrations and holds the single shared connection.
//
// Usage:
//
//	database, err := db.NewDatabase("./data/tryon_cache.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//
//	store := database.KVStore("images")
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// NewDatabase opens (creating if needed) the database at path and applies
// pending migrations.
func NewDatabase(path string) (*Database, error) {
	return NewDatabaseWithConfig(DefaultConnectionConfig(path))
}

// NewDatabaseWithConfig is NewDatabase with custom connection settings.
func NewDatabaseWithConfig(config ConnectionConfig) (*Database, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dir := filepath.Dir(config.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// golang-migrate closes the connection it is given, so migrations run
	// on their own connection before the shared one is opened
	if err := MigrateUpFromPath(config.Path); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	conn, err := NewSQLiteConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &Database{db: conn, path: config.Path}, nil
}

// KVStore returns a key-value view restricted to namespace.
func (d *Database) KVStore(namespace string) *KVStore {
	return &KVStore{database: d, namespace: namespace}
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// conn returns the live connection or ErrClosed.
func (d *Database) conn() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, ErrClosed
	}
	return d.db, nil
}

// Ping verifies the database connection is alive. Used by /health.
func (d *Database) Ping(ctx context.Context) error {
	conn, err := d.conn()
	if err != nil {
		return err
	}
	return conn.PingContext(ctx)
}

// Vacuum reclaims space after large deletions. It must run outside a
// transaction.
func (d *Database) Vacuum(ctx context.Context) error {
	conn, err := d.conn()
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	return nil
}

// Close closes the connection. Calling Close twice is safe.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.db = nil
	return nil
}
