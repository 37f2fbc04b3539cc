// Package dialect wraps the per-database SQL grammars used to check syntax,
// count statements and locate a top-level LIMIT clause without touching a
// database.
package dialect

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Name identifies a SQL dialect
type Name string

const (
	SQLite     Name = "sqlite"
	PostgreSQL Name = "postgresql"
	MySQL      Name = "mysql"
	SQLServer  Name = "sqlserver"
	Generic    Name = "generic"
)

var (
	// ErrEmptyStatement is returned when the input holds no statement at all.
	ErrEmptyStatement = errors.New("empty statement")
	// ErrMultipleStatements is returned when more than one statement is present.
	ErrMultipleStatements = errors.New("multiple statements")
)

// SyntaxError wraps a grammar failure from the underlying parser
type SyntaxError struct {
	Dialect Name
	Err     error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s syntax error: %v", e.Dialect, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Kind classifies the top-level statement
type Kind string

const (
	KindSelect Kind = "select"
	KindOther  Kind = "other"
)

// Statement is the summary of one parsed statement
type Statement struct {
	Kind     Kind
	HasLimit bool
	// LimitCount is set when the top-level LIMIT row count is an integer
	// literal. Literals beyond int64 are clamped to math.MaxInt64.
	LimitCount *int64
}

// Parser parses exactly one SQL statement.
// Implementations must be safe for concurrent use.
type Parser interface {
	Name() Name
	Parse(sql string) (*Statement, error)
}

// For returns the parser registered for name
func For(name Name) (Parser, error) {
	switch name {
	case SQLite:
		return sqliteParser{}, nil
	case PostgreSQL:
		return postgresParser{}, nil
	case MySQL:
		return mysqlParser{}, nil
	case SQLServer, Generic:
		return genericParser{name: name}, nil
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", name)
	}
}

// MustFor is like For but panics on an unknown name
func MustFor(name Name) Parser {
	p, err := For(name)
	if err != nil {
		panic(err)
	}
	return p
}

// FromDatabaseType maps a database type string ("sqlite", "postgres",
// "mssql", ...) to its dialect. Unknown types map to Generic.
func FromDatabaseType(dbType string) Name {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "sqlite", "sqlite3":
		return SQLite
	case "postgresql", "postgres", "pg":
		return PostgreSQL
	case "mysql", "mariadb":
		return MySQL
	case "sqlserver", "mssql":
		return SQLServer
	default:
		return Generic
	}
}

// safeParse runs fn and converts a parser panic into a SyntaxError.
// Some grammars panic on pathological input.
func safeParse(name Name, sql string, fn func(string) (*Statement, error)) (stmt *Statement, err error) {
	if strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), ";")) == "" {
		return nil, ErrEmptyStatement
	}
	defer func() {
		if r := recover(); r != nil {
			stmt = nil
			err = &SyntaxError{Dialect: name, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()
	return fn(sql)
}

// limitLiteral parses a decimal LIMIT literal, clamping values too large
// for int64. It returns nil for anything else.
func limitLiteral(text string) *int64 {
	n, err := strconv.ParseInt(text, 10, 64)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(text, "-") {
		n, err = math.MaxInt64, nil
	}
	if err != nil {
		return nil
	}
	return &n
}
