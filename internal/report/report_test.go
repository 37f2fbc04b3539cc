package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2sql/internal/evaluator"
	"text2sql/internal/metrics"
)

var fixedNow = time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)

func sampleAggregate(name string, f1 float64) *evaluator.Aggregate {
	return &evaluator.Aggregate{
		DatasetName:           name,
		Model:                 "openai/gpt-4o",
		TotalQuestions:        10,
		SuccessfulGenerations: 9,
		SuccessfulExecutions:  8,
		AvgExactMatch:         0.4,
		AvgPrecision:          0.8,
		AvgRecall:             0.7,
		AvgF1Score:            f1,
		ExecutionSuccessRate:  0.8,
		AvgResultAccuracy:     0.75,
		AvgGenerationTime:     1.2,
		AvgExecutionTime:      0.01,
		TotalEvaluationTime:   4,
		ComponentScores: map[string]metrics.Score{
			"where_conditions": {Precision: 0.5, Recall: 0.25, F1: 1.0 / 3},
			"select_columns":   {Precision: 1, Recall: 0.5, F1: 2.0 / 3},
		},
		ErrorTypes:      map[string]int{"execution_error": 2, "syntax_error": 1},
		FailedQuestions: []string{"q<7>"},
	}
}

func TestRenderEvaluation(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderEvaluation(&buf, sampleAggregate("demo", 0.74), fixedNow))
	html := buf.String()

	assert.Contains(t, html, "Text-to-SQL Evaluation Report - demo")
	assert.Contains(t, html, "2025-06-07 08:09:10")
	assert.Contains(t, html, "0.740")
	assert.Contains(t, html, "Select Columns")
	assert.Contains(t, html, "Where Conditions")
	assert.Less(t, strings.Index(html, "Select Columns"), strings.Index(html, "Where Conditions"))
	assert.Contains(t, html, "width: 50.0%")
	assert.Contains(t, html, "Execution Error")
	assert.Contains(t, html, "2.50") // queries per second
	assert.Contains(t, html, "Failed Questions")
	assert.Contains(t, html, "q&lt;7&gt;")
}

func TestRenderEvaluation_Empty(t *testing.T) {
	var buf bytes.Buffer
	agg := evaluator.Summarize("empty", 0, nil, nil, 0)
	require.NoError(t, RenderEvaluation(&buf, agg, fixedNow))
	html := buf.String()
	assert.Contains(t, html, "No component scores available")
	assert.Contains(t, html, "No errors encountered during evaluation")
	assert.NotContains(t, html, "Failed Questions")
}

func TestRenderComparison_HighlightsBest(t *testing.T) {
	var buf bytes.Buffer
	byModel := map[string]*evaluator.Aggregate{
		"model-a": sampleAggregate("demo", 0.6),
		"model-b": sampleAggregate("demo", 0.9),
	}
	require.NoError(t, RenderComparison(&buf, byModel, fixedNow))
	html := buf.String()

	assert.Contains(t, html, "<th>model-a</th><th>model-b</th>")
	assert.Contains(t, html, `<td>0.600</td><td class="best-score">0.900</td>`)
	// tied execution success highlights both
	assert.Contains(t, html, `<td class="best-score">0.800</td><td class="best-score">0.800</td>`)
	// times are never highlighted
	assert.Contains(t, html, "<td>1.200s</td><td>1.200s</td>")
	assert.Contains(t, html, "Detailed Metrics")
}

func TestGenerator_WritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	g := NewGenerator(dir, nil)
	g.now = func() time.Time { return fixedNow }

	path, err := g.WriteEvaluation(sampleAggregate("demo", 0.5))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "evaluation_report_demo_20250607_080910.html"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<!DOCTYPE html>")

	path, err = g.WriteComparison(map[string]*evaluator.Aggregate{"m": sampleAggregate("demo", 0.5)})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model_comparison_report_20250607_080910.html"), path)
}

func TestPercentClamps(t *testing.T) {
	assert.Equal(t, "0.0", percent(-1))
	assert.Equal(t, "100.0", percent(2))
	assert.Equal(t, "33.3", percent(1.0/3))
}
