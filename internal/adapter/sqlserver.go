package adapter

import (
	"context"
	"net/url"
	"strconv"

	_ "github.com/microsoft/go-mssqldb"
)

// SQLServerAdapter SQL Server adapter on go-mssqldb
type SQLServerAdapter struct {
	sqlDB
	config *SQLServerConfig
}

// SQLServerConfig SQL Server connection config
type SQLServerConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// NewSQLServerAdapter creates a SQL Server adapter
func NewSQLServerAdapter(config *SQLServerConfig) *SQLServerAdapter {
	return &SQLServerAdapter{config: config}
}

// DSN renders the sqlserver:// URL the driver expects
func (c *SQLServerConfig) DSN() string {
	host := c.Host
	if c.Port > 0 {
		host += ":" + strconv.Itoa(c.Port)
	}
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(c.User, c.Password),
		Host:   host,
	}
	if c.Database != "" {
		u.RawQuery = url.Values{"database": {c.Database}}.Encode()
	}
	return u.String()
}

func (a *SQLServerAdapter) Connect(ctx context.Context) error {
	return a.open(ctx, "sqlserver", a.config.DSN())
}

func (a *SQLServerAdapter) GetDatabaseType() string {
	return "SQLServer"
}

func (a *SQLServerAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	return a.version(ctx, "SELECT @@VERSION AS version")
}
