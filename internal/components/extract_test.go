package components

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSelectColumns(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"SELECT id, name FROM users", []string{"id", "name"}},
		{"select id,\n   name  from users", []string{"id", "name"}},
		{"SELECT COUNT(*) AS total, country FROM users GROUP BY country", []string{"AGG_FUNC", "country"}},
		{"SELECT sku, SUM(price) as revenue FROM items", []string{"sku", "AGG_FUNC"}},
		{"SELECT ROUND(AVG(total), 2) FROM orders", []string{"AGG_FUNC"}},
		{"SELECT u.country, o.total FROM orders o JOIN users u ON o.user_id = u.id", []string{"u.country", "o.total"}},
		{"SELECT 'a,b' AS pair, id FROM t", []string{"'a,b'", "id"}},
		{"SELECT (price * 2) AS doubled FROM items", []string{"(price * 2)"}},
		{"SELECT 1", []string{"1"}},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			got, err := ExtractSelectColumns(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, Fragments(tt.want), got)
		})
	}
}

func TestExtractSelectColumns_Errors(t *testing.T) {
	_, err := ExtractSelectColumns("UPDATE users SET x = 1")
	assert.ErrorIs(t, err, ErrClauseNotFound)

	_, err = ExtractSelectColumns("SELECT COUNT(id FROM users")
	var pf *ParseFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, SelectColumns, pf.Clause)

	assert.Equal(t, []string{}, ExtractClause(SelectColumns, "SELECT COUNT(id FROM users"))
}

func TestExtractWhereConditions(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"SELECT * FROM users WHERE country = 'US'", []string{"country = 'US'"}},
		{"SELECT * FROM users WHERE country='US'", []string{"country = 'US'"}},
		{"SELECT * FROM orders WHERE total>100 and user_id = 1 ORDER BY total", []string{"total > 100", "user_id = 1"}},
		{"SELECT * FROM orders WHERE total >= 100 OR total<=5", []string{"total >= 100", "total <= 5"}},
		{"SELECT * FROM users WHERE name like 'A%' LIMIT 5", []string{"name LIKE 'A%'"}},
		{"SELECT * FROM users WHERE (a = 1 OR b = 2) AND c <> 3", []string{"(a = 1 OR b = 2)", "c <> 3"}},
		{"SELECT * FROM t WHERE brand = 'ANDROID'", []string{"brand = 'ANDROID'"}},
		{"SELECT * FROM t WHERE name='a=b'", []string{"name = 'a=b'"}},
		{"SELECT * FROM t WHERE note = 'x  like  y' AND k>=1", []string{"note = 'x like y'", "k >= 1"}},
		{"SELECT * FROM t WHERE 'a<b'<>label", []string{"'a<b' <> label"}},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			got, err := ExtractWhereConditions(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, Fragments(tt.want), got)
		})
	}

	_, err := ExtractWhereConditions("SELECT * FROM users")
	assert.ErrorIs(t, err, ErrClauseNotFound)
}

func TestExtractJoinOperations(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"SELECT * FROM a JOIN b ON a.id=b.id", []string{"JOIN b ON a.id=b.id"}},
		{"SELECT * FROM a  JOIN   b   ON a.id = b.id", []string{"JOIN b ON a.id = b.id"}},
		{"SELECT * FROM orders o JOIN users u ON o.user_id = u.id WHERE u.country = 'US'", []string{"JOIN users ON o.user_id = u.id"}},
		{
			"SELECT * FROM a LEFT JOIN b ON a.id = b.a_id INNER JOIN c ON b.id = c.b_id GROUP BY a.id",
			[]string{"JOIN b ON a.id = b.a_id", "JOIN c ON b.id = c.b_id"},
		},
		{"SELECT * FROM a CROSS JOIN b", []string{"JOIN b"}},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			got, err := ExtractJoinOperations(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, Fragments(tt.want), got)
		})
	}

	_, err := ExtractJoinOperations("SELECT * FROM a")
	assert.ErrorIs(t, err, ErrClauseNotFound)
}

func TestExtractGroupAndOrder(t *testing.T) {
	sql := "SELECT u.country, SUM(o.total) as revenue FROM orders o JOIN users u ON o.user_id = u.id " +
		"GROUP BY u.country HAVING SUM(o.total) > 100 ORDER BY revenue DESC, u.country asc LIMIT 200"

	group, err := ExtractGroupByColumns(sql)
	require.NoError(t, err)
	assert.Equal(t, Fragments{"u.country"}, group)

	order, err := ExtractOrderByColumns(sql)
	require.NoError(t, err)
	assert.Equal(t, Fragments{"revenue", "u.country"}, order)

	having, err := ExtractHavingConditions(sql)
	require.NoError(t, err)
	assert.Equal(t, Fragments{"SUM(o.total) > 100"}, having)
}

func TestExtractAggregateFunctions(t *testing.T) {
	got, err := ExtractAggregateFunctions("SELECT COUNT(*), count(id), Sum(price), AVG(x) FROM t WHERE MAX(y) > 1")
	require.NoError(t, err)
	assert.Equal(t, Fragments{"count", "count", "sum", "avg"}, got)

	_, err = ExtractAggregateFunctions("SELECT id FROM t")
	assert.ErrorIs(t, err, ErrClauseNotFound)
}

func TestExtract_AllClausesPresent(t *testing.T) {
	got := Extract("not sql at all")
	require.Len(t, got, len(ClauseTypes))
	for _, ct := range ClauseTypes {
		assert.NotNil(t, got[ct], ct)
		assert.Empty(t, got[ct], ct)
	}
}

func TestExtract_SubqueryDoesNotEndClause(t *testing.T) {
	sql := "SELECT id FROM users WHERE id IN (SELECT user_id FROM orders WHERE total > 100) ORDER BY id"

	where := ExtractClause(WhereConditions, sql)
	assert.Equal(t, []string{"id IN (SELECT user_id FROM orders WHERE total > 100)"}, where)
	assert.Equal(t, []string{"id"}, ExtractClause(OrderByColumns, sql))
}

func TestExtractClause_Unknown(t *testing.T) {
	assert.Equal(t, []string{}, ExtractClause("window_functions", "SELECT 1"))
}
