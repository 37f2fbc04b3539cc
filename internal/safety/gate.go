// Package safety classifies candidate SQL as read-only SELECT statements and
// enforces a row cap before anything reaches a database.
package safety

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"text2sql/internal/dialect"
)

// DefaultLimit is the row cap appended when a statement has none
const DefaultLimit = 200

// Reason explains why a statement was rejected
type Reason string

const (
	ReasonOK                 Reason = ""
	ReasonNotSelect          Reason = "not_select"
	ReasonForbiddenKeyword   Reason = "forbidden_keyword"
	ReasonParseError         Reason = "parse_error"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonLimitExceedsMax    Reason = "limit_exceeds_max"
	ReasonChecksDisabled     Reason = "checks_disabled"
)

var (
	forbiddenKeywords = regexp.MustCompile(`(?i)\b(UPDATE|DELETE|DROP|ALTER|INSERT|CREATE|TRUNCATE|GRANT|REVOKE)\b`)
	trailingLimit     = regexp.MustCompile(`(?i)\blimit\s+\d+\s*;*\s*$`)
)

// Report is the outcome of inspecting one statement
type Report struct {
	Safe    bool   `json:"safe"`
	Reason  Reason `json:"reason,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Detail  string `json:"detail,omitempty"`
	// Injection and Fingerprint are advisory and never affect Safe.
	Injection   bool   `json:"injection_suspected"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Verdict pairs the row-capped statement with its inspection report
type Verdict struct {
	SQL string `json:"sql"`
	Report
}

// Config configures a Gate
type Config struct {
	Dialect      dialect.Name
	DefaultLimit int
	// MaxLimit rejects statements whose literal LIMIT is larger. Zero disables the check.
	MaxLimit int
	// Disabled makes Prepare pass every statement through unchecked.
	Disabled bool
}

// Gate is the SQL safety gate. It is immutable and safe for concurrent use.
type Gate struct {
	cfg    Config
	parser dialect.Parser
	logger *zap.Logger
}

// NewGate creates a gate for the configured dialect
func NewGate(cfg Config, logger *zap.Logger) (*Gate, error) {
	if cfg.Dialect == "" {
		cfg.Dialect = dialect.SQLite
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit < 0 {
		return nil, fmt.Errorf("max limit must not be negative, got %d", cfg.MaxLimit)
	}
	p, err := dialect.For(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{cfg: cfg, parser: p, logger: logger.Named("safety")}, nil
}

var defaultGate = &Gate{
	cfg:    Config{Dialect: dialect.SQLite, DefaultLimit: DefaultLimit},
	parser: dialect.MustFor(dialect.SQLite),
	logger: zap.NewNop(),
}

// IsSafeSelect reports whether sql is a single, syntactically valid SQLite
// SELECT statement free of DDL/DML keywords. It never executes sql.
func IsSafeSelect(sql string) bool {
	return defaultGate.IsSafeSelect(sql)
}

// EnsureLimit appends " LIMIT n;" to sql when it has no LIMIT clause.
// Applying it twice yields the same string as applying it once.
func EnsureLimit(sql string, defaultLimit int) string {
	return defaultGate.ensureLimit(sql, defaultLimit)
}

// Dialect returns the dialect the gate parses with
func (g *Gate) Dialect() dialect.Name {
	return g.parser.Name()
}

// DefaultLimit returns the configured row cap
func (g *Gate) DefaultLimit() int {
	return g.cfg.DefaultLimit
}

// IsSafeSelect classifies sql using the gate's dialect
func (g *Gate) IsSafeSelect(sql string) bool {
	return g.Inspect(sql).Safe
}

// EnsureLimit caps sql at the gate's default limit
func (g *Gate) EnsureLimit(sql string) string {
	return g.ensureLimit(sql, g.cfg.DefaultLimit)
}

// Prepare caps the row count and then classifies the result, in that order.
func (g *Gate) Prepare(raw string) Verdict {
	limited := g.EnsureLimit(raw)
	if g.cfg.Disabled {
		return Verdict{SQL: limited, Report: Report{Safe: true, Reason: ReasonChecksDisabled}}
	}
	report := g.Inspect(limited)
	if !report.Safe {
		g.logger.Info("rejected sql",
			zap.String("reason", string(report.Reason)),
			zap.String("keyword", report.Keyword),
			zap.String("sql", limited))
	}
	return Verdict{SQL: limited, Report: report}
}

// Check is Inspect without the row cap, honouring Disabled. Used where a
// statement must run as written, such as scoring against expected row counts.
func (g *Gate) Check(sql string) Report {
	if g.cfg.Disabled {
		return Report{Safe: true, Reason: ReasonChecksDisabled}
	}
	return g.Inspect(sql)
}

// Inspect runs every check and reports the first failing one
func (g *Gate) Inspect(sql string) Report {
	report := g.inspect(sql)
	report.Injection, report.Fingerprint = libinjection.IsSQLi(sql)
	return report
}

func (g *Gate) inspect(sql string) Report {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(sql)), "select") {
		return Report{Reason: ReasonNotSelect}
	}

	if m := forbiddenKeywords.FindStringSubmatch(sql); m != nil {
		return Report{Reason: ReasonForbiddenKeyword, Keyword: strings.ToUpper(m[1])}
	}

	stmt, err := g.parser.Parse(sql)
	if err != nil {
		if errors.Is(err, dialect.ErrMultipleStatements) {
			return Report{Reason: ReasonMultipleStatements, Detail: err.Error()}
		}
		return Report{Reason: ReasonParseError, Detail: err.Error()}
	}
	if stmt.Kind != dialect.KindSelect {
		return Report{Reason: ReasonNotSelect}
	}

	if g.cfg.MaxLimit > 0 && stmt.HasLimit {
		// a limit that is not a plain non-negative literal cannot be bounded
		switch n := stmt.LimitCount; {
		case n == nil || *n < 0:
			return Report{
				Reason: ReasonLimitExceedsMax,
				Detail: fmt.Sprintf("limit is not an integer literal, maximum is %d", g.cfg.MaxLimit),
			}
		case *n > int64(g.cfg.MaxLimit):
			return Report{
				Reason: ReasonLimitExceedsMax,
				Detail: fmt.Sprintf("limit %d exceeds maximum %d", *n, g.cfg.MaxLimit),
			}
		}
	}

	return Report{Safe: true}
}

func (g *Gate) ensureLimit(sql string, n int) string {
	if n <= 0 {
		n = g.cfg.DefaultLimit
	}

	stmt, err := g.parser.Parse(sql)
	if err != nil || stmt.Kind != dialect.KindSelect {
		// Input the parser cannot vouch for is only rewritten once: a
		// trailing LIMIT means an earlier call already handled it.
		if trailingLimit.MatchString(sql) {
			return sql
		}
		return appendLimit(sql, n)
	}
	if stmt.HasLimit {
		return sql
	}
	return appendLimit(sql, n)
}

func appendLimit(sql string, n int) string {
	base := stripTrailingSemicolons(sql)
	sep := " "
	// a comment still open at the end would swallow the clause
	switch openComment(base) {
	case lineComment:
		sep = "\n"
	case blockComment:
		base += " */"
	}
	return fmt.Sprintf("%s%sLIMIT %d;", base, sep, n)
}

type commentState int

const (
	noComment commentState = iota
	lineComment
	blockComment
)

// openComment reports the comment, if any, that is still open at the end of
// sql. Quoted text is skipped.
func openComment(sql string) commentState {
	for i := 0; i < len(sql); i++ {
		switch c := sql[i]; {
		case c == '\'' || c == '"' || c == '`':
			end := strings.IndexByte(sql[i+1:], c)
			if end < 0 {
				return noComment
			}
			i += end + 1
		case strings.HasPrefix(sql[i:], "--"):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				return lineComment
			}
			i += end
		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return blockComment
			}
			i += end + 3
		}
	}
	return noComment
}

func stripTrailingSemicolons(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}
