package adapter

import (
	"context"
	"fmt"
)

// demoStatements builds the three-table shop database used by the demo
// dataset and the tests.
var demoStatements = []string{
	`DROP TABLE IF EXISTS items`,
	`DROP TABLE IF EXISTS orders`,
	`DROP TABLE IF EXISTS users`,
	`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, country TEXT)`,
	`CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, created_at TEXT, total REAL)`,
	`CREATE TABLE items (id INTEGER PRIMARY KEY, order_id INTEGER, sku TEXT, price REAL)`,
	`INSERT INTO users VALUES
		(1, 'Alice', 'US'),
		(2, 'Bob', 'IN'),
		(3, 'Chloe', 'GB'),
		(4, 'Diego', 'US')`,
	`INSERT INTO orders VALUES
		(100, 1, '2024-11-03', 120.00),
		(101, 1, '2025-01-15', 250.50),
		(102, 2, '2025-02-20', 99.99),
		(103, 3, '2025-03-05', 310.00),
		(104, 4, '2025-03-18', 75.25)`,
	`INSERT INTO items VALUES
		(1000, 100, 'SKU-RED', 60.00),
		(1001, 100, 'SKU-BLU', 60.00),
		(1002, 101, 'SKU-RED', 120.50),
		(1003, 101, 'SKU-GRN', 130.00),
		(1004, 102, 'SKU-RED', 99.99),
		(1005, 103, 'SKU-YLW', 310.00),
		(1006, 104, 'SKU-BLU', 75.25)`,
}

// SeedDemo (re)creates the demo tables on a connected SQLite adapter
func SeedDemo(ctx context.Context, a *SQLiteAdapter) error {
	if a.db == nil {
		return errNotConnected
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range demoStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("seed demo: %w", err)
		}
	}
	return tx.Commit()
}

// SeedDemoFile creates or resets the demo database at path
func SeedDemoFile(ctx context.Context, path string) error {
	a := NewSQLiteAdapter(&SQLiteConfig{FilePath: path})
	if err := a.Connect(ctx); err != nil {
		return err
	}
	defer a.Close()
	return SeedDemo(ctx, a)
}
