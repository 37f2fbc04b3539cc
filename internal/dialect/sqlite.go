package dialect

import (
	"errors"
	"io"
	"strings"

	rsql "github.com/rqlite/sql"
)

type sqliteParser struct{}

func (sqliteParser) Name() Name { return SQLite }

func (p sqliteParser) Parse(sql string) (*Statement, error) {
	return safeParse(SQLite, sql, p.parse)
}

func (sqliteParser) parse(sql string) (*Statement, error) {
	parser := rsql.NewParser(strings.NewReader(sql))
	stmt, err := parser.ParseStatement()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyStatement
	} else if err != nil {
		return nil, &SyntaxError{Dialect: SQLite, Err: err}
	}

	// a second statement after the first semicolon is not allowed
	if _, err := parser.ParseStatement(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, &SyntaxError{Dialect: SQLite, Err: err}
		}
		return nil, ErrMultipleStatements
	}

	sel, ok := stmt.(*rsql.SelectStatement)
	if !ok {
		return &Statement{Kind: KindOther}, nil
	}

	out := &Statement{Kind: KindSelect}
	for s := sel; s != nil; s = s.Compound {
		if s.LimitExpr == nil {
			continue
		}
		out.HasLimit = true
		count := s.LimitExpr
		// LIMIT offset, count
		if s.OffsetComma.IsValid() {
			count = s.OffsetExpr
		}
		if lit, ok := count.(*rsql.NumberLit); ok {
			out.LimitCount = limitLiteral(lit.Value)
		}
		break
	}
	return out, nil
}
