package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Schema lists tables and their columns in declaration order
type Schema struct {
	Tables  []string            `json:"tables"`
	Columns map[string][]string `json:"columns"`
}

// Compact renders the schema the way prompts embed it:
//
//	tables:
//	  users(id, name, country)
func (s *Schema) Compact() string {
	var b strings.Builder
	b.WriteString("tables:")
	for _, t := range s.Tables {
		fmt.Fprintf(&b, "\n  %s(%s)", t, strings.Join(s.Columns[t], ", "))
	}
	return b.String()
}

// HasTable reports whether name is a known table, case-insensitively
func (s *Schema) HasTable(name string) bool {
	for _, t := range s.Tables {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// Each engine returns (table_name, column_name) pairs ordered by table and
// column position.
var schemaQueries = map[string]string{
	"SQLite": `SELECT m.name AS table_name, p.name AS column_name
FROM sqlite_master m JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`,
	"PostgreSQL": `SELECT table_name, column_name
FROM information_schema.columns
WHERE table_schema = current_schema()
ORDER BY table_name, ordinal_position`,
	"MySQL": `SELECT table_name AS table_name, column_name AS column_name
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`,
	"SQLServer": `SELECT TABLE_NAME AS table_name, COLUMN_NAME AS column_name
FROM INFORMATION_SCHEMA.COLUMNS
ORDER BY TABLE_NAME, ORDINAL_POSITION`,
}

// IntrospectSchema reads the table and column names of the connected database
func IntrospectSchema(ctx context.Context, db DBAdapter) (*Schema, error) {
	query, ok := schemaQueries[db.GetDatabaseType()]
	if !ok {
		return nil, &UnsupportedDatabaseError{Type: db.GetDatabaseType()}
	}
	result, err := db.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspect schema: %w", err)
	}

	s := &Schema{Columns: make(map[string][]string)}
	for _, row := range result.Rows {
		table := stringValue(row["table_name"])
		column := stringValue(row["column_name"])
		if table == "" {
			continue
		}
		if _, seen := s.Columns[table]; !seen {
			s.Tables = append(s.Tables, table)
		}
		s.Columns[table] = append(s.Columns[table], column)
	}
	sort.Strings(s.Tables)
	return s, nil
}

func stringValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
