package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"text2sql/internal/dialect"
)

func TestIsSafeSelect(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want bool
	}{
		{"plain select", "SELECT * FROM users", true},
		{"surrounding whitespace", "   select id, name from users where country = 'US'  ", true},
		{"with limit and semicolon", "SELECT id FROM users LIMIT 10;", true},
		{"identifier containing keyword", "SELECT created_at, updated_by FROM orders", true},
		{"drop", "DROP TABLE users", false},
		{"stacked drop", "select * from users; DROP TABLE users", false},
		{"update", "UPDATE users SET x=1", false},
		{"insert", "INSERT INTO users(id) VALUES (1)", false},
		{"keyword in literal is rejected", "SELECT * FROM users WHERE note = 'please delete me'", false},
		{"lowercase keyword", "select * from users where 1=1 or truncate", false},
		{"two selects", "SELECT 1; SELECT 2", false},
		{"broken syntax", "SELECT * FROM", false},
		{"empty", "", false},
		{"with prefix", "WITH x AS (SELECT 1) SELECT * FROM x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSafeSelect(tt.sql))
		})
	}
}

func TestEnsureLimit(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"appends limit", "SELECT * FROM users", "SELECT * FROM users LIMIT 200;"},
		{"drops trailing semicolon first", "SELECT * FROM users;", "SELECT * FROM users LIMIT 200;"},
		{"trailing whitespace", "SELECT * FROM users ;  \n", "SELECT * FROM users LIMIT 200;"},
		{"keeps existing limit", "SELECT * FROM users LIMIT 5", "SELECT * FROM users LIMIT 5"},
		{"does not lower existing limit", "SELECT * FROM users LIMIT 5000;", "SELECT * FROM users LIMIT 5000;"},
		{"unparseable falls back", "SELEC * FROM users;", "SELEC * FROM users LIMIT 200;"},
		{"closes open block comment", "SELECT * FROM users /* trailing", "SELECT * FROM users /* trailing */ LIMIT 200;"},
		{"closed block comment", "SELECT * FROM users /* note */", "SELECT * FROM users /* note */ LIMIT 200;"},
		{"line comment on last line", "SELECT id FROM users -- note", "SELECT id FROM users -- note\nLIMIT 200;"},
		{"comment markers in literal", "SELECT * FROM users WHERE name = '/* --'", "SELECT * FROM users WHERE name = '/* --' LIMIT 200;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnsureLimit(tt.sql, 200))
		})
	}
}

func TestEnsureLimit_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		";",
		"SELECT * FROM users",
		"SELECT * FROM users;",
		"select id from users where country = 'US' limit 3",
		"SELECT * FROM (SELECT * FROM users LIMIT 5) AS u",
		"SELEC * FROM users",
		"garbage text",
		"DELETE FROM users",
		"SELECT id FROM users -- trailing comment",
		"SELECT * FROM users /* trailing",
		"SELEC * FROM users /* trailing",
		"SELECT * FROM users /* a */ /* b",
		"DROP TABLE users;;",
	}
	for _, in := range inputs {
		once := EnsureLimit(in, 200)
		twice := EnsureLimit(once, 200)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestEnsureLimit_CustomLimit(t *testing.T) {
	assert.Equal(t, "SELECT 1 LIMIT 50;", EnsureLimit("SELECT 1", 50))
}

func TestGate_Prepare(t *testing.T) {
	gate, err := NewGate(Config{DefaultLimit: 100, MaxLimit: 1000}, zap.NewNop())
	require.NoError(t, err)

	v := gate.Prepare("SELECT * FROM users")
	assert.True(t, v.Safe)
	assert.Equal(t, "SELECT * FROM users LIMIT 100;", v.SQL)

	v = gate.Prepare("SELECT * FROM users LIMIT 5000")
	assert.False(t, v.Safe)
	assert.Equal(t, ReasonLimitExceedsMax, v.Reason)

	v = gate.Prepare("DELETE FROM users")
	assert.False(t, v.Safe)
	assert.Equal(t, ReasonNotSelect, v.Reason)

	// the cap must land outside a comment left open at the end
	v = gate.Prepare("SELECT * FROM users /* trailing")
	assert.True(t, v.Safe)
	assert.Equal(t, "SELECT * FROM users /* trailing */ LIMIT 100;", v.SQL)
	assert.Equal(t, v.SQL, gate.Prepare(v.SQL).SQL)
}

func TestGate_InspectReasons(t *testing.T) {
	gate, err := NewGate(Config{}, nil)
	require.NoError(t, err)

	r := gate.Inspect("SELECT * FROM users; DROP TABLE users")
	assert.Equal(t, ReasonForbiddenKeyword, r.Reason)
	assert.Equal(t, "DROP", r.Keyword)

	r = gate.Inspect("SELECT 1; SELECT 2")
	assert.Equal(t, ReasonMultipleStatements, r.Reason)

	r = gate.Inspect("SELECT * FROM")
	assert.Equal(t, ReasonParseError, r.Reason)
	assert.NotEmpty(t, r.Detail)

	r = gate.Inspect("SELECT * FROM users")
	assert.True(t, r.Safe)
	assert.Equal(t, ReasonOK, r.Reason)
}

func TestGate_MaxLimit(t *testing.T) {
	tests := []struct {
		name    string
		dialect dialect.Name
		sql     string
		safe    bool
	}{
		{"sqlite within max", dialect.SQLite, "SELECT * FROM users LIMIT 10000", true},
		{"sqlite over max", dialect.SQLite, "SELECT * FROM users LIMIT 10001", false},
		{"sqlite beyond int64", dialect.SQLite, "SELECT * FROM users LIMIT 99999999999999999999", false},
		{"sqlite expression", dialect.SQLite, "SELECT * FROM users LIMIT 100000*100000", false},
		{"sqlite offset comma form", dialect.SQLite, "SELECT * FROM users LIMIT 0, 1000000", false},
		{"sqlite offset comma within max", dialect.SQLite, "SELECT * FROM users LIMIT 1000000, 10", true},
		{"mysql within max", dialect.MySQL, "SELECT * FROM users LIMIT 50", true},
		{"mysql over max", dialect.MySQL, "SELECT * FROM users LIMIT 50000", false},
		{"mysql all rows", dialect.MySQL, "SELECT * FROM users LIMIT 18446744073709551615", false},
		{"generic beyond int64", dialect.Generic, "SELECT * FROM users LIMIT 99999999999999999999", false},
		{"postgres all", dialect.PostgreSQL, "SELECT * FROM users LIMIT ALL", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, err := NewGate(Config{Dialect: tt.dialect, MaxLimit: 10000}, zap.NewNop())
			require.NoError(t, err)

			r := gate.Inspect(tt.sql)
			assert.Equal(t, tt.safe, r.Safe)
			if !tt.safe {
				assert.Equal(t, ReasonLimitExceedsMax, r.Reason)
			}
		})
	}
}

func TestGate_Dialects(t *testing.T) {
	for _, name := range []dialect.Name{dialect.SQLite, dialect.PostgreSQL, dialect.MySQL, dialect.Generic} {
		gate, err := NewGate(Config{Dialect: name}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, name, gate.Dialect())
		assert.True(t, gate.IsSafeSelect("SELECT id FROM users"), name)
		assert.Equal(t, "SELECT id FROM users LIMIT 200;", gate.EnsureLimit("SELECT id FROM users"), name)
	}
}

func TestGate_Disabled(t *testing.T) {
	gate, err := NewGate(Config{Disabled: true}, zap.NewNop())
	require.NoError(t, err)

	v := gate.Prepare("SELECT * FROM users")
	assert.True(t, v.Safe)
	assert.Equal(t, ReasonChecksDisabled, v.Reason)
	assert.True(t, gate.Check("DELETE FROM users").Safe)
}

func TestGate_Check(t *testing.T) {
	gate, err := NewGate(Config{}, nil)
	require.NoError(t, err)

	// Check never rewrites or requires a LIMIT
	assert.True(t, gate.Check("SELECT * FROM users").Safe)
	r := gate.Check("DROP TABLE users")
	assert.False(t, r.Safe)
	assert.Equal(t, ReasonNotSelect, r.Reason)
}

func TestNewGate_Invalid(t *testing.T) {
	_, err := NewGate(Config{Dialect: "oracle"}, nil)
	assert.Error(t, err)

	_, err = NewGate(Config{MaxLimit: -1}, nil)
	assert.Error(t, err)
}
