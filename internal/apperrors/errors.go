// Package apperrors holds the sentinel errors shared across packages.
// Wrap them with fmt.Errorf("...: %w", ErrX) and match with errors.Is.
package apperrors

import "errors"

var (
	ErrModelLoad           = errors.New("model load failed")
	ErrDatabaseConnection  = errors.New("database connection failed")
	ErrSQLGeneration       = errors.New("sql generation failed")
	ErrSQLSafety           = errors.New("sql failed safety checks")
	ErrConfiguration       = errors.New("invalid configuration")
	ErrTimeout             = errors.New("operation timed out")
	ErrDatasetNotFound     = errors.New("dataset not found")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)
