package metrics

import (
	"regexp"
	"strings"

	"text2sql/internal/dialect"
)

var limitClause = regexp.MustCompile(`\blimit\s+\d+`)

// SQLMetrics is the SQL-level evaluation of one prediction
type SQLMetrics struct {
	ExactMatch       float64          `json:"exact_match"`
	Precision        float64          `json:"precision"`
	Recall           float64          `json:"recall"`
	F1Score          float64          `json:"f1_score"`
	ComponentScores  map[string]Score `json:"component_scores"`
	ExecutionSuccess bool             `json:"execution_success"`
	SyntaxValid      bool             `json:"syntax_valid"`
}

// Normalize canonicalizes SQL for exact matching: whitespace collapsed,
// lowercased, trailing semicolons removed and every LIMIT n rewritten to
// LIMIT 200 so differing row caps compare equal.
func Normalize(sql string) string {
	s := strings.ToLower(strings.Join(strings.Fields(sql), " "))
	s = strings.TrimSpace(strings.TrimRight(s, "; "))
	return limitClause.ReplaceAllString(s, "limit 200")
}

// ExactMatch returns 1.0 when both statements normalize to the same text
func ExactMatch(predicted, groundTruth string) float64 {
	if Normalize(predicted) == Normalize(groundTruth) {
		return 1.0
	}
	return 0.0
}

// SQLCalculator combines exact match, syntax validity and the weighted
// component scores
type SQLCalculator struct {
	components *ComponentCalculator
	parser     dialect.Parser
}

// NewSQLCalculator creates a calculator. Nil arguments select the default
// component weights and the SQLite grammar.
func NewSQLCalculator(cc *ComponentCalculator, parser dialect.Parser) *SQLCalculator {
	if cc == nil {
		cc = DefaultComponentCalculator()
	}
	if parser == nil {
		parser = dialect.MustFor(dialect.SQLite)
	}
	return &SQLCalculator{components: cc, parser: parser}
}

// Components returns the underlying component calculator
func (c *SQLCalculator) Components() *ComponentCalculator {
	return c.components
}

// SyntaxValid reports whether sql parses. It does not gate scoring.
func (c *SQLCalculator) SyntaxValid(sql string) bool {
	_, err := c.parser.Parse(sql)
	return err == nil
}

// Evaluate scores a prediction against the ground truth
func (c *SQLCalculator) Evaluate(predicted, groundTruth string, executionSuccess bool) SQLMetrics {
	cm := c.components.Calculate(predicted, groundTruth)
	return c.fromComponents(predicted, groundTruth, executionSuccess, cm)
}

// EvaluateWithComponents is Evaluate that also returns the full clause analysis
func (c *SQLCalculator) EvaluateWithComponents(predicted, groundTruth string, executionSuccess bool) (SQLMetrics, ComponentMetrics) {
	cm := c.components.Calculate(predicted, groundTruth)
	return c.fromComponents(predicted, groundTruth, executionSuccess, cm), cm
}

func (c *SQLCalculator) fromComponents(predicted, groundTruth string, executionSuccess bool, cm ComponentMetrics) SQLMetrics {
	return SQLMetrics{
		ExactMatch:       ExactMatch(predicted, groundTruth),
		Precision:        cm.OverallPrecision,
		Recall:           cm.OverallRecall,
		F1Score:          cm.OverallF1,
		ComponentScores:  cm.Scores(),
		ExecutionSuccess: executionSuccess,
		SyntaxValid:      c.SyntaxValid(predicted),
	}
}
