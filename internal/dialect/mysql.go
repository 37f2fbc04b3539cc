package dialect

import (
	"math"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"
)

type mysqlParser struct{}

func (mysqlParser) Name() Name { return MySQL }

func (p mysqlParser) Parse(sql string) (*Statement, error) {
	return safeParse(MySQL, sql, p.parse)
}

// parse builds a fresh tidb parser per call; the parser is not goroutine safe.
func (mysqlParser) parse(sql string) (*Statement, error) {
	stmts, _, err := parser.New().Parse(sql, "", "")
	if err != nil {
		return nil, &SyntaxError{Dialect: MySQL, Err: err}
	}
	switch len(stmts) {
	case 0:
		return nil, ErrEmptyStatement
	case 1:
	default:
		return nil, ErrMultipleStatements
	}

	var limit *ast.Limit
	switch stmt := stmts[0].(type) {
	case *ast.SelectStmt:
		limit = stmt.Limit
	case *ast.SetOprStmt:
		limit = stmt.Limit
	default:
		return &Statement{Kind: KindOther}, nil
	}

	out := &Statement{Kind: KindSelect}
	if limit != nil {
		out.HasLimit = true
		if v, ok := limit.Count.(ast.ValueExpr); ok {
			switch n := v.GetValue().(type) {
			case int64:
				out.LimitCount = &n
			case uint64:
				c := int64(math.MaxInt64)
				if n <= math.MaxInt64 {
					c = int64(n)
				}
				out.LimitCount = &c
			}
		}
	}
	return out, nil
}
