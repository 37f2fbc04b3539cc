package dialect

import (
	"github.com/xwb1989/sqlparser"
)

// genericParser uses the vitess grammar, which covers the ANSI subset shared
// by most engines. It backs SQL Server and unknown databases.
type genericParser struct {
	name Name
}

func (p genericParser) Name() Name { return p.name }

func (p genericParser) Parse(sql string) (*Statement, error) {
	return safeParse(p.name, sql, p.parse)
}

func (p genericParser) parse(sql string) (*Statement, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, &SyntaxError{Dialect: p.name, Err: err}
	}

	var limit *sqlparser.Limit
	switch s := stmt.(type) {
	case *sqlparser.Select:
		limit = s.Limit
	case *sqlparser.Union:
		limit = s.Limit
	case *sqlparser.ParenSelect:
		if inner, ok := s.Select.(*sqlparser.Select); ok {
			limit = inner.Limit
		}
	default:
		return &Statement{Kind: KindOther}, nil
	}

	out := &Statement{Kind: KindSelect}
	if limit != nil && limit.Rowcount != nil {
		out.HasLimit = true
		if v, ok := limit.Rowcount.(*sqlparser.SQLVal); ok && v.Type == sqlparser.IntVal {
			out.LimitCount = limitLiteral(string(v.Val))
		}
	}
	return out, nil
}
