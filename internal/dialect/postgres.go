package dialect

import (
	pg_query "github.com/pganalyze/pg_query_go/v5"
)

type postgresParser struct{}

func (postgresParser) Name() Name { return PostgreSQL }

func (p postgresParser) Parse(sql string) (*Statement, error) {
	return safeParse(PostgreSQL, sql, p.parse)
}

func (postgresParser) parse(sql string) (*Statement, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, &SyntaxError{Dialect: PostgreSQL, Err: err}
	}
	switch len(tree.Stmts) {
	case 0:
		return nil, ErrEmptyStatement
	case 1:
	default:
		return nil, ErrMultipleStatements
	}

	sel := tree.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return &Statement{Kind: KindOther}, nil
	}

	out := &Statement{Kind: KindSelect}
	if sel.LimitCount != nil {
		out.HasLimit = true
		if ic := sel.LimitCount.GetAConst().GetIval(); ic != nil {
			n := int64(ic.Ival)
			out.LimitCount = &n
		}
	}
	return out, nil
}
