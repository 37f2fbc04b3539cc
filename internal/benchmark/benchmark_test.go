package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2sql/internal/adapter"
	"text2sql/internal/dataset"
	"text2sql/internal/evaluator"
	"text2sql/internal/llm"
)

// staticGenerator answers every question with the ground truth, or with
// fixed SQL when set
type staticGenerator struct {
	name    string
	answers map[string]string
	fixed   string
}

func (g staticGenerator) ModelName() string { return g.name }

func (g staticGenerator) Generate(_ context.Context, question, _ string) (*llm.Generation, error) {
	sql := g.fixed
	if sql == "" {
		sql = g.answers[question]
	}
	return &llm.Generation{Question: question, Model: g.name, SQL: sql}, nil
}

func generators() GeneratorSource {
	answers := map[string]string{}
	for _, q := range dataset.Demo().Questions {
		answers[q.Question] = q.SQL
	}
	return func(model string) (llm.SQLGenerator, error) {
		switch model {
		case "", "good":
			return staticGenerator{name: "good", answers: answers}, nil
		case "lazy":
			return staticGenerator{name: "lazy", fixed: "SELECT * FROM users"}, nil
		default:
			return nil, errors.New("unknown model " + model)
		}
	}
}

func newRunner(t *testing.T, details bool) *Runner {
	t.Helper()
	ctx := context.Background()
	db := adapter.NewSQLiteAdapter(&adapter.SQLiteConfig{FilePath: ":memory:"})
	require.NoError(t, db.Connect(ctx))
	t.Cleanup(func() { db.Close() })
	require.NoError(t, adapter.SeedDemo(ctx, db))

	ev, err := evaluator.New(evaluator.Options{DB: db})
	require.NoError(t, err)

	r, err := NewRunner(Config{
		ResultsDir:   filepath.Join(t.TempDir(), "results"),
		Evaluator:    ev,
		Loader:       dataset.NewLoader(t.TempDir()),
		Generators:   generators(),
		WriteDetails: details,
	})
	require.NoError(t, err)

	// each call is one second later so file names never collide
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r
}

func glob(t *testing.T, dir, pattern string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	return m
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	_, err := NewRunner(Config{})
	assert.Error(t, err)
}

func TestRun_WithFilters(t *testing.T) {
	r := newRunner(t, true)

	agg, err := r.Run(context.Background(), "demo", "good", Filter{Difficulty: "hard"})
	require.NoError(t, err)
	assert.Equal(t, 3, agg.TotalQuestions)
	assert.InDelta(t, 1.0, agg.AvgF1Score, 1e-9)

	agg, err = r.Run(context.Background(), "demo", "", Filter{Tags: []string{"join"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalQuestions)

	assert.Len(t, glob(t, r.ResultsDir(), "evaluation_demo_*.json"), 2)
	assert.Len(t, glob(t, r.ResultsDir(), "evaluation_report_demo_*.html"), 2)
	assert.Len(t, glob(t, r.ResultsDir(), "demo_*_good_*/results.json"), 2)
}

func TestRun_Errors(t *testing.T) {
	r := newRunner(t, false)
	_, err := r.Run(context.Background(), "nope", "good", Filter{})
	assert.Error(t, err)

	_, err = r.Run(context.Background(), "demo", "missing", Filter{})
	assert.Error(t, err)
}

func TestCompare_WritesJSONAndReport(t *testing.T) {
	r := newRunner(t, false)

	out, err := r.Compare(context.Background(), "demo", []string{"good", "lazy"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Greater(t, out["good"].AvgF1Score, out["lazy"].AvgF1Score)

	files := glob(t, r.ResultsDir(), "model_comparison_demo_*.json")
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var doc Comparison
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "demo", doc.Dataset)
	assert.Contains(t, doc.Models, "lazy")

	assert.Len(t, glob(t, r.ResultsDir(), "model_comparison_report_*.html"), 1)
}

func TestRegress(t *testing.T) {
	r := newRunner(t, false)
	ctx := context.Background()

	reg, err := r.Regress(ctx, "demo", "good", "lazy", 0)
	require.NoError(t, err)
	assert.False(t, reg.Passed)
	assert.Equal(t, DefaultThreshold, reg.Threshold)
	assert.Less(t, reg.Ratio, DefaultThreshold)

	reg, err = r.Regress(ctx, "demo", "lazy", "good", 0.95)
	require.NoError(t, err)
	assert.True(t, reg.Passed)
	assert.Greater(t, reg.Ratio, 1.0)

	_, err = r.Regress(ctx, "demo", "good", "good", 0.95)
	assert.Error(t, err)
}

func TestCheckRegression(t *testing.T) {
	tests := []struct {
		name              string
		baseline, current float64
		ratio             float64
		passed            bool
	}{
		{"equal", 0.8, 0.8, 1, true},
		{"at threshold", 1, 0.95, 0.95, true},
		{"below threshold", 1, 0.9, 0.9, false},
		{"zero baseline", 0, 0.7, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratio, passed := CheckRegression(tt.baseline, tt.current, 0.95)
			assert.InDelta(t, tt.ratio, ratio, 1e-9)
			assert.Equal(t, tt.passed, passed)
		})
	}
}

func TestRunSuite_RecordsFailures(t *testing.T) {
	r := newRunner(t, false)

	suite, err := r.RunSuite(context.Background(), []string{"demo", "nope"}, []string{"good", "missing"})
	require.NoError(t, err)
	assert.NotNil(t, suite.Results["demo"]["good"].Aggregate)
	assert.NotEmpty(t, suite.Results["demo"]["missing"].Error)
	assert.NotEmpty(t, suite.Results["nope"]["good"].Error)

	data, err := os.ReadFile(suite.Path)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	results := doc["results"].(map[string]interface{})
	demo := results["demo"].(map[string]interface{})
	assert.Contains(t, demo["good"], "avg_f1_score")
	assert.Contains(t, demo["missing"], "error")
}

func TestSummary(t *testing.T) {
	r := newRunner(t, false)

	s, err := r.Summary()
	require.NoError(t, err)
	assert.Equal(t, 0, s.TotalBenchmarks)
	assert.NotEmpty(t, s.Message)

	_, err = r.RunSuite(context.Background(), []string{"demo"}, []string{"good", "lazy"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(r.ResultsDir(), "evaluation_broken.json"), []byte("{"), 0o644))

	s, err = r.Summary()
	require.NoError(t, err)
	// two runs plus the broken file; the suite file is skipped
	assert.Equal(t, 3, s.TotalBenchmarks)
	require.Len(t, s.Benchmarks, 2)
	assert.Equal(t, "demo", s.Benchmarks[0].Dataset)
	assert.Equal(t, 10, s.Benchmarks[0].TotalQuestions)
	assert.NotEmpty(t, s.LatestBenchmark)
}
