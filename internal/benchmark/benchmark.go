// Package benchmark drives evaluator runs over named datasets and models and
// keeps their JSON and HTML artifacts in one results directory.
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"text2sql/internal/dataset"
	"text2sql/internal/evaluator"
	"text2sql/internal/llm"
	"text2sql/internal/report"
)

// DefaultThreshold is the minimum current/baseline F1 ratio a regression
// test accepts
const DefaultThreshold = 0.95

// GeneratorSource resolves a model name to a generator. An empty name means
// the configured default model.
type GeneratorSource func(model string) (llm.SQLGenerator, error)

// Config wires a Runner
type Config struct {
	ResultsDir string
	Evaluator  *evaluator.Evaluator
	Loader     *dataset.Loader
	Generators GeneratorSource
	Logger     *zap.Logger
	// WriteDetails streams per-question results.json, predict.sql and
	// inference.log into a run directory under ResultsDir
	WriteDetails bool
}

// Filter narrows a dataset before a run
type Filter struct {
	Difficulty string
	Tags       []string
	Limit      int
}

// Runner runs benchmarks
type Runner struct {
	cfg     Config
	reports *report.Generator
	logger  *zap.Logger
	now     func() time.Time
}

// NewRunner validates cfg and creates the results directory
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Evaluator == nil || cfg.Loader == nil || cfg.Generators == nil {
		return nil, fmt.Errorf("benchmark runner needs an evaluator, a loader and a generator source")
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = filepath.Join("results", "benchmarks")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return nil, err
	}
	log := cfg.Logger.Named("benchmark")
	log.Info("initialized benchmark runner", zap.String("results_dir", cfg.ResultsDir))
	return &Runner{
		cfg:     cfg,
		reports: report.NewGenerator(cfg.ResultsDir, cfg.Logger),
		logger:  log,
		now:     time.Now,
	}, nil
}

// ResultsDir is where every artifact is written
func (r *Runner) ResultsDir() string {
	return r.cfg.ResultsDir
}

func (r *Runner) load(name string, f Filter) (*dataset.Dataset, error) {
	d, err := r.cfg.Loader.Load(name)
	if err != nil {
		return nil, err
	}
	if f.Difficulty != "" {
		d = d.FilterByDifficulty(f.Difficulty)
		r.logger.Info("filtered by difficulty", zap.String("difficulty", f.Difficulty), zap.Int("questions", d.Len()))
	}
	if len(f.Tags) > 0 {
		d = d.FilterByTags(f.Tags)
		r.logger.Info("filtered by tags", zap.Strings("tags", f.Tags), zap.Int("questions", d.Len()))
	}
	if f.Limit > 0 {
		d = d.Head(f.Limit)
	}
	return d, nil
}

// Run evaluates model on the named dataset, then saves the aggregate JSON and
// the HTML report
func (r *Runner) Run(ctx context.Context, datasetName, model string, f Filter) (*evaluator.Aggregate, error) {
	r.logger.Info("starting benchmark", zap.String("dataset", datasetName), zap.String("model", model))
	d, err := r.load(datasetName, f)
	if err != nil {
		return nil, err
	}
	gen, err := r.cfg.Generators(model)
	if err != nil {
		return nil, err
	}
	agg, err := r.evaluate(ctx, d, gen)
	if err != nil {
		return nil, err
	}

	path, err := evaluator.SaveAggregate(r.cfg.ResultsDir, agg, r.now())
	if err != nil {
		return nil, fmt.Errorf("save results: %w", err)
	}
	r.logger.Info("results saved", zap.String("path", path))
	if _, err := r.reports.WriteEvaluation(agg); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return agg, nil
}

func (r *Runner) evaluate(ctx context.Context, d *dataset.Dataset, gen llm.SQLGenerator) (*evaluator.Aggregate, error) {
	if !r.cfg.WriteDetails {
		agg, _, err := r.cfg.Evaluator.EvaluateDataset(ctx, d, gen)
		return agg, err
	}
	w, err := evaluator.NewResultWriter(evaluator.RunDir(r.cfg.ResultsDir, d.Name, gen.ModelName(), r.now()))
	if err != nil {
		return nil, err
	}
	defer w.Close()
	agg, _, err := r.cfg.Evaluator.EvaluateDatasetTo(ctx, d, gen, w)
	if err == nil {
		r.logger.Info("details written", zap.String("dir", w.Dir()), zap.Int("results", w.Count()))
	}
	return agg, err
}

// Comparison is the JSON document written by Compare
type Comparison struct {
	Dataset   string                          `json:"dataset"`
	Timestamp string                          `json:"timestamp"`
	Models    map[string]*evaluator.Aggregate `json:"models"`
}

// Compare evaluates every model on the same dataset and writes
// model_comparison_<dataset>_<ts>.json plus the comparison HTML report
func (r *Runner) Compare(ctx context.Context, datasetName string, models []string) (map[string]*evaluator.Aggregate, error) {
	r.logger.Info("running model comparison", zap.String("dataset", datasetName), zap.Strings("models", models))
	d, err := r.load(datasetName, Filter{})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*evaluator.Aggregate, len(models))
	for _, model := range models {
		gen, err := r.cfg.Generators(model)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", model, err)
		}
		agg, err := r.evaluate(ctx, d, gen)
		if err != nil {
			return nil, err
		}
		out[model] = agg
	}

	ts := r.now().Format(evaluator.TimestampLayout)
	path := filepath.Join(r.cfg.ResultsDir, fmt.Sprintf("model_comparison_%s_%s.json", evaluator.FileSafe(datasetName), ts))
	if err := writeJSON(path, Comparison{Dataset: datasetName, Timestamp: ts, Models: out}); err != nil {
		return nil, err
	}
	r.logger.Info("comparison results saved", zap.String("path", path))
	if _, err := r.reports.WriteComparison(out); err != nil {
		return nil, fmt.Errorf("write comparison report: %w", err)
	}
	return out, nil
}

// Regression is the outcome of a regression test
type Regression struct {
	Baseline   string  `json:"baseline_model"`
	Current    string  `json:"current_model"`
	BaselineF1 float64 `json:"baseline_f1"`
	CurrentF1  float64 `json:"current_f1"`
	Ratio      float64 `json:"performance_ratio"`
	Threshold  float64 `json:"threshold"`
	Passed     bool    `json:"passed"`
}

// CheckRegression compares two F1 scores. A zero baseline yields ratio 0,
// which fails any positive threshold.
func CheckRegression(baselineF1, currentF1, threshold float64) (ratio float64, passed bool) {
	if baselineF1 > 0 {
		ratio = currentF1 / baselineF1
	}
	return ratio, ratio >= threshold
}

// Regress compares current against baseline on one dataset. threshold <= 0
// uses DefaultThreshold.
func (r *Runner) Regress(ctx context.Context, datasetName, baseline, current string, threshold float64) (*Regression, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	r.logger.Info("running regression test", zap.String("baseline", baseline), zap.String("current", current))
	if baseline == current {
		return nil, fmt.Errorf("baseline and current model are both %q", baseline)
	}
	results, err := r.Compare(ctx, datasetName, []string{baseline, current})
	if err != nil {
		return nil, err
	}

	reg := &Regression{
		Baseline:   baseline,
		Current:    current,
		BaselineF1: results[baseline].AvgF1Score,
		CurrentF1:  results[current].AvgF1Score,
		Threshold:  threshold,
	}
	reg.Ratio, reg.Passed = CheckRegression(reg.BaselineF1, reg.CurrentF1, threshold)

	status := "FAILED"
	if reg.Passed {
		status = "PASSED"
	}
	r.logger.Info("regression test "+status,
		zap.Float64("baseline_f1", reg.BaselineF1),
		zap.Float64("current_f1", reg.CurrentF1),
		zap.Float64("ratio", reg.Ratio),
		zap.Float64("threshold", threshold))
	return reg, nil
}

// SuiteEntry is one dataset/model cell of a suite: an aggregate or an error
type SuiteEntry struct {
	*evaluator.Aggregate
	Error string `json:"error,omitempty"`
}

// MarshalJSON writes {"error": ...} for failed cells and the aggregate otherwise
func (s SuiteEntry) MarshalJSON() ([]byte, error) {
	if s.Error != "" || s.Aggregate == nil {
		return json.Marshal(map[string]string{"error": s.Error})
	}
	return json.Marshal(s.Aggregate)
}

// Suite is the JSON document written by RunSuite
type Suite struct {
	Timestamp string                           `json:"timestamp"`
	Datasets  []string                         `json:"datasets"`
	Models    []string                         `json:"models"`
	Results   map[string]map[string]SuiteEntry `json:"results"`
	Path      string                           `json:"-"`
}

// RunSuite benchmarks every model on every dataset. A failing cell is recorded
// and the suite moves on; only cancellation stops it early.
func (r *Runner) RunSuite(ctx context.Context, datasets, models []string) (*Suite, error) {
	r.logger.Info("starting evaluation suite", zap.Strings("datasets", datasets), zap.Strings("models", models))
	suite := &Suite{
		Timestamp: r.now().Format(time.RFC3339),
		Datasets:  datasets,
		Models:    models,
		Results:   make(map[string]map[string]SuiteEntry, len(datasets)),
	}
	for _, ds := range datasets {
		suite.Results[ds] = make(map[string]SuiteEntry, len(models))
		for _, model := range models {
			agg, err := r.Run(ctx, ds, model, Filter{})
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				r.logger.Error("evaluation failed", zap.String("dataset", ds), zap.String("model", model), zap.Error(err))
				suite.Results[ds][model] = SuiteEntry{Error: err.Error()}
				continue
			}
			suite.Results[ds][model] = SuiteEntry{Aggregate: agg}
		}
	}

	suite.Path = filepath.Join(r.cfg.ResultsDir, fmt.Sprintf("evaluation_suite_%s.json", r.now().Format(evaluator.TimestampLayout)))
	if err := writeJSON(suite.Path, suite); err != nil {
		return nil, err
	}
	r.logger.Info("evaluation suite completed", zap.String("path", suite.Path))
	return suite, nil
}

// Entry summarizes one saved evaluation file
type Entry struct {
	File                 string  `json:"file"`
	Dataset              string  `json:"dataset"`
	Model                string  `json:"model,omitempty"`
	F1Score              float64 `json:"f1_score"`
	ExecutionSuccessRate float64 `json:"execution_success_rate"`
	TotalQuestions       int     `json:"total_questions"`
}

// Summary lists saved evaluations
type Summary struct {
	TotalBenchmarks int     `json:"total_benchmarks"`
	LatestBenchmark string  `json:"latest_benchmark,omitempty"`
	Benchmarks      []Entry `json:"benchmarks"`
	Message         string  `json:"message,omitempty"`
}

// Summary scans ResultsDir for evaluation_*.json files. Suite files share the
// prefix and are skipped; unreadable files are logged and skipped.
func (r *Runner) Summary() (*Summary, error) {
	matches, err := filepath.Glob(filepath.Join(r.cfg.ResultsDir, "evaluation_*.json"))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		if !strings.HasPrefix(filepath.Base(m), "evaluation_suite_") {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return &Summary{Benchmarks: []Entry{}, Message: "No evaluation files found"}, nil
	}
	sort.Strings(files)

	s := &Summary{TotalBenchmarks: len(files), Benchmarks: make([]Entry, 0, len(files))}
	var latest time.Time
	for _, path := range files {
		if info, err := os.Stat(path); err == nil && !info.ModTime().Before(latest) {
			latest = info.ModTime()
			s.LatestBenchmark = filepath.Base(path)
		}
		agg, err := evaluator.LoadAggregate(path)
		if err != nil {
			r.logger.Warn("could not read result file", zap.String("path", path), zap.Error(err))
			continue
		}
		name := agg.DatasetName
		if name == "" {
			name = "Unknown"
		}
		s.Benchmarks = append(s.Benchmarks, Entry{
			File:                 filepath.Base(path),
			Dataset:              name,
			Model:                agg.Model,
			F1Score:              agg.AvgF1Score,
			ExecutionSuccessRate: agg.ExecutionSuccessRate,
			TotalQuestions:       agg.TotalQuestions,
		})
	}
	return s, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
