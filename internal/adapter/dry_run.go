package adapter

import (
	"context"
	"fmt"
)

// Each engine has its own way of compiling a statement without running it.

func (a *SQLiteAdapter) DryRunSQL(ctx context.Context, sql string) error {
	_, err := a.ExecuteQuery(ctx, "EXPLAIN QUERY PLAN "+sql)
	return err
}

func (a *PostgreSQLAdapter) DryRunSQL(ctx context.Context, sql string) error {
	_, err := a.ExecuteQuery(ctx, "EXPLAIN "+sql)
	return err
}

func (a *MySQLAdapter) DryRunSQL(ctx context.Context, sql string) error {
	_, err := a.ExecuteQuery(ctx, "EXPLAIN "+sql)
	return err
}

// DryRunSQL on SQL Server toggles PARSEONLY inside one batch so the session
// setting never leaks to another pooled query.
func (a *SQLServerAdapter) DryRunSQL(ctx context.Context, sql string) error {
	return a.exec(ctx, fmt.Sprintf("SET PARSEONLY ON;\n%s;\nSET PARSEONLY OFF;", sql))
}
