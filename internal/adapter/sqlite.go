package adapter

import (
	"context"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter runs against a SQLite file through the pure-Go driver
type SQLiteAdapter struct {
	sqlDB
	config *SQLiteConfig
}

// SQLiteConfig SQLite connection config
type SQLiteConfig struct {
	FilePath string // ":memory:" for an in-memory database
}

// NewSQLiteAdapter creates a SQLite adapter
func NewSQLiteAdapter(config *SQLiteConfig) *SQLiteAdapter {
	return &SQLiteAdapter{config: config}
}

// Connect opens the database file. An in-memory database is pinned to one
// connection, otherwise every pooled connection would see its own empty db.
func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	path := a.config.FilePath
	if path == "" {
		path = ":memory:"
	}
	if path == ":memory:" {
		a.pool.maxOpen = 1
	}
	return a.open(ctx, "sqlite", path)
}

func (a *SQLiteAdapter) GetDatabaseType() string {
	return "SQLite"
}

func (a *SQLiteAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return a.version(ctx, "SELECT sqlite_version() AS version")
}
