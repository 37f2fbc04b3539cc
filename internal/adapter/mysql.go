package adapter

import (
	"context"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLAdapter MySQL adapter on go-sql-driver
type MySQLAdapter struct {
	sqlDB
	config *MySQLConfig
}

// MySQLConfig MySQL connection config
type MySQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// NewMySQLAdapter creates a MySQL adapter
func NewMySQLAdapter(config *MySQLConfig) *MySQLAdapter {
	return &MySQLAdapter{config: config}
}

// DSN renders the go-sql-driver connection string
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

func (a *MySQLAdapter) Connect(ctx context.Context) error {
	return a.open(ctx, "mysql", a.config.DSN())
}

func (a *MySQLAdapter) GetDatabaseType() string {
	return "MySQL"
}

func (a *MySQLAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return a.version(ctx, "SELECT VERSION() AS version")
}
