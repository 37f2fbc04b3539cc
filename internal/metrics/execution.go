package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"text2sql/internal/adapter"
)

// DefaultExecutionTimeout bounds a single query run
const DefaultExecutionTimeout = 30 * time.Second

// Querier runs a query and returns its rows. adapter.DBAdapter satisfies it.
type Querier interface {
	ExecuteQuery(ctx context.Context, query string) (*adapter.QueryResult, error)
}

// ExecutionMetrics is the outcome of running one statement
type ExecutionMetrics struct {
	Success          bool    `json:"success"`
	ExecutionTime    float64 `json:"execution_time"` // seconds
	ResultCount      int     `json:"result_count"`
	ExpectedCount    *int    `json:"expected_count"`
	ResultAccuracy   float64 `json:"result_accuracy"`
	ErrorMessage     string  `json:"error_message,omitempty"`
	PerformanceScore float64 `json:"performance_score"`
}

// FailedExecution is the record used when nothing could be run
func FailedExecution(expected *int, msg string) ExecutionMetrics {
	return ExecutionMetrics{ExpectedCount: expected, ErrorMessage: msg}
}

// ExecutionCalculator runs statements through a Querier and scores them
type ExecutionCalculator struct {
	timeout time.Duration
}

// NewExecutionCalculator creates a calculator. A non-positive timeout selects
// DefaultExecutionTimeout.
func NewExecutionCalculator(timeout time.Duration) *ExecutionCalculator {
	if timeout <= 0 {
		timeout = DefaultExecutionTimeout
	}
	return &ExecutionCalculator{timeout: timeout}
}

// Evaluate runs sql once and scores row count and latency
func (c *ExecutionCalculator) Evaluate(ctx context.Context, db Querier, sql string, expected *int) ExecutionMetrics {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := db.ExecuteQuery(ctx, sql)
	elapsed := time.Since(start).Seconds()

	m := ExecutionMetrics{
		ExecutionTime: elapsed,
		ExpectedCount: expected,
	}
	if err == nil && result != nil && result.Error != "" {
		err = errors.New(result.Error)
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("query timeout after %s: %w", c.timeout, err)
		}
		m.ErrorMessage = err.Error()
	} else {
		m.Success = true
		if result != nil {
			m.ResultCount = result.RowCount
		}
	}

	m.ResultAccuracy = ResultAccuracy(m.ResultCount, expected)
	m.PerformanceScore = PerformanceScore(elapsed, m.Success)
	return m
}

// EvaluateBatch runs each statement in order. expected may be nil or shorter
// than sqls; missing entries mean no expected count.
func (c *ExecutionCalculator) EvaluateBatch(ctx context.Context, db Querier, sqls []string, expected []*int) []ExecutionMetrics {
	out := make([]ExecutionMetrics, 0, len(sqls))
	for i, sql := range sqls {
		var exp *int
		if i < len(expected) {
			exp = expected[i]
		}
		out = append(out, c.Evaluate(ctx, db, sql, exp))
	}
	return out
}

// ResultAccuracy compares row counts: 1 without an expectation, exact match
// required when zero rows are expected, relative error otherwise.
func ResultAccuracy(actual int, expected *int) float64 {
	if expected == nil {
		return 1.0
	}
	e := *expected
	if e == 0 {
		if actual == 0 {
			return 1.0
		}
		return 0.0
	}
	diff := math.Abs(float64(actual - e))
	return math.Max(0, 1.0-diff/float64(max(actual, e)))
}

// PerformanceScore maps latency in seconds to [0,1]: full marks up to one
// second, linear down to 0.5 at ten seconds, then down to zero at thirty.
func PerformanceScore(seconds float64, success bool) float64 {
	switch {
	case !success:
		return 0.0
	case seconds <= 1.0:
		return 1.0
	case seconds <= 10.0:
		return 1.0 - (seconds-1.0)/9.0*0.5
	default:
		return math.Max(0.0, 0.5-(seconds-10.0)/20.0*0.5)
	}
}

// Error categories used by ClassifyError
const (
	ErrorSyntax  = "syntax_error"
	ErrorSchema  = "schema_error"
	ErrorTimeout = "timeout"
	ErrorOther   = "other"
)

// ClassifyError buckets a database error message
func ClassifyError(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "syntax"):
		return ErrorSyntax
	case strings.Contains(m, "table"), strings.Contains(m, "column"):
		return ErrorSchema
	case strings.Contains(m, "timeout"), strings.Contains(m, "deadline exceeded"):
		return ErrorTimeout
	default:
		return ErrorOther
	}
}

// ExecutionSummary aggregates a batch of executions
type ExecutionSummary struct {
	TotalQueries         int            `json:"total_queries"`
	SuccessfulQueries    int            `json:"successful_queries"`
	ExecutionSuccessRate float64        `json:"execution_success_rate"`
	AvgExecutionTime     float64        `json:"avg_execution_time"`
	AvgResultAccuracy    float64        `json:"avg_result_accuracy"`
	AvgPerformanceScore  float64        `json:"avg_performance_score"`
	ErrorTypes           map[string]int `json:"error_types"`
	MaxExecutionTime     float64        `json:"max_execution_time"`
	MinExecutionTime     float64        `json:"min_execution_time"`
}

// SummarizeExecutions aggregates results. Average time only counts
// successful runs; min and max count every run. Empty input gives a zero summary.
func SummarizeExecutions(results []ExecutionMetrics) ExecutionSummary {
	s := ExecutionSummary{ErrorTypes: map[string]int{}}
	if len(results) == 0 {
		return s
	}

	s.TotalQueries = len(results)
	s.MinExecutionTime = math.Inf(1)
	var okTime, accuracy, perf float64
	for _, r := range results {
		if r.Success {
			s.SuccessfulQueries++
			okTime += r.ExecutionTime
		} else if r.ErrorMessage != "" {
			s.ErrorTypes[ClassifyError(r.ErrorMessage)]++
		}
		accuracy += r.ResultAccuracy
		perf += r.PerformanceScore
		s.MaxExecutionTime = math.Max(s.MaxExecutionTime, r.ExecutionTime)
		s.MinExecutionTime = math.Min(s.MinExecutionTime, r.ExecutionTime)
	}

	n := float64(s.TotalQueries)
	s.ExecutionSuccessRate = float64(s.SuccessfulQueries) / n
	if s.SuccessfulQueries > 0 {
		s.AvgExecutionTime = okTime / float64(s.SuccessfulQueries)
	}
	s.AvgResultAccuracy = accuracy / n
	s.AvgPerformanceScore = perf / n
	return s
}
