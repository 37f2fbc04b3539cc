package adapter

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgreSQLAdapter PostgreSQL adapter on lib/pq
type PostgreSQLAdapter struct {
	sqlDB
	config *PostgreSQLConfig
}

// PostgreSQLConfig PostgreSQL connection config
type PostgreSQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // disable, require, verify-ca, verify-full
}

// NewPostgreSQLAdapter creates a PostgreSQL adapter. SSLMode defaults to disable.
func NewPostgreSQLAdapter(config *PostgreSQLConfig) *PostgreSQLAdapter {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	return &PostgreSQLAdapter{config: config}
}

// DSN renders the keyword/value connection string
func (c *PostgreSQLConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

func (a *PostgreSQLAdapter) Connect(ctx context.Context) error {
	return a.open(ctx, "postgres", a.config.DSN())
}

func (a *PostgreSQLAdapter) GetDatabaseType() string {
	return "PostgreSQL"
}

func (a *PostgreSQLAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return a.version(ctx, "SELECT version() AS version")
}
