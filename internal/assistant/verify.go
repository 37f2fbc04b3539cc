package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"text2sql/internal/llm"
	"text2sql/internal/logger"
	"text2sql/internal/safety"
)

// Verification is the outcome of Verify. Stage names the first failing
// step: "static", "safety", "plan" or "execute"; it is empty when the
// statement ran.
type Verification struct {
	SQL      string         `json:"sql"`
	Valid    bool           `json:"valid"`
	Stage    string         `json:"stage,omitempty"`
	Error    string         `json:"error,omitempty"`
	Safety   *safety.Report `json:"safety,omitempty"`
	Rows     int            `json:"rows"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Verify checks sql the way a careful author would before trusting it:
// static checks, the safety gate, an engine dry run and finally a capped
// execution whose rows are inspected for empty or duplicate results.
func (a *Assistant) Verify(ctx context.Context, sql string) Verification {
	sql = strings.TrimSpace(sql)
	v := Verification{SQL: sql}

	if err := llm.QuickCheck(sql); err != nil {
		v.Stage, v.Error = "static", err.Error()
		return v
	}

	verdict := a.gate.Prepare(sql)
	v.SQL = verdict.SQL
	if !verdict.Safe {
		report := verdict.Report
		v.Stage, v.Error, v.Safety = "safety", UnsafeMessage, &report
		return v
	}

	if err := a.db.DryRunSQL(ctx, verdict.SQL); err != nil {
		v.Stage, v.Error = "plan", logger.SanitizeError(err)
		return v
	}

	result, err := a.run(ctx, verdict.SQL)
	if err != nil {
		v.Stage, v.Error = "execute", logger.SanitizeError(err)
		return v
	}

	v.Valid = true
	v.Rows = result.RowCount
	if result.RowCount == 0 {
		v.Warnings = append(v.Warnings, "query returned no rows; check the JOIN and WHERE conditions")
	}
	if row := firstDuplicate(result.Columns, result.Rows); row != "" {
		v.Warnings = append(v.Warnings, fmt.Sprintf("query returned duplicate rows such as (%s); consider DISTINCT", row))
	}
	a.logger.Debug("verified sql", zap.Int("rows", v.Rows), zap.Int("warnings", len(v.Warnings)))
	return v
}

// firstDuplicate renders the first row seen twice, or "" when every row is
// distinct
func firstDuplicate(columns []string, rows []map[string]interface{}) string {
	seen := make(map[string]struct{}, len(rows))
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			cells[i] = fmt.Sprint(row[c])
		}
		key := strings.Join(cells, "\x1f")
		if _, dup := seen[key]; dup {
			return strings.Join(cells, ", ")
		}
		seen[key] = struct{}{}
	}
	return ""
}
