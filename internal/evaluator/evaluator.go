// Package evaluator runs a generator over a dataset and scores every answer
// with the SQL-level, component and execution metrics.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"text2sql/internal/components"
	"text2sql/internal/dataset"
	"text2sql/internal/llm"
	"text2sql/internal/logger"
	"text2sql/internal/metrics"
	"text2sql/internal/safety"
)

// Error categories counted in Aggregate.ErrorTypes
const (
	ErrorSyntax     = "syntax_error"
	ErrorExecution  = "execution_error"
	ErrorEvaluation = "evaluation_error"
)

const generationFailed = "SQL generation failed"

// Result is the evaluation of one question
type Result struct {
	QuestionID       string                   `json:"question_id"`
	Question         string                   `json:"question"`
	PredictedSQL     string                   `json:"predicted_sql"`
	GroundTruthSQL   string                   `json:"ground_truth_sql"`
	Database         string                   `json:"db_id,omitempty"`
	SQLMetrics       metrics.SQLMetrics       `json:"sql_metrics"`
	ExecutionMetrics metrics.ExecutionMetrics `json:"execution_metrics"`
	ComponentMetrics metrics.ComponentMetrics `json:"component_metrics"`
	Safety           *safety.Report           `json:"safety,omitempty"`
	GenerationError  string                   `json:"generation_error,omitempty"`
	GenerationTime   float64                  `json:"generation_time"`
	TotalTime        float64                  `json:"total_time"`
}

// Aggregate summarizes a dataset run
type Aggregate struct {
	RunID                 string                   `json:"run_id"`
	DatasetName           string                   `json:"dataset_name"`
	Model                 string                   `json:"model"`
	TotalQuestions        int                      `json:"total_questions"`
	SuccessfulGenerations int                      `json:"successful_generations"`
	SuccessfulExecutions  int                      `json:"successful_executions"`
	AvgExactMatch         float64                  `json:"avg_exact_match"`
	AvgPrecision          float64                  `json:"avg_precision"`
	AvgRecall             float64                  `json:"avg_recall"`
	AvgF1Score            float64                  `json:"avg_f1_score"`
	ExecutionSuccessRate  float64                  `json:"execution_success_rate"`
	AvgExecutionTime      float64                  `json:"avg_execution_time"`
	AvgResultAccuracy     float64                  `json:"avg_result_accuracy"`
	ComponentScores       map[string]metrics.Score `json:"component_scores"`
	AvgGenerationTime     float64                  `json:"avg_generation_time"`
	TotalEvaluationTime   float64                  `json:"total_evaluation_time"`
	ErrorTypes            map[string]int           `json:"error_types"`
	FailedQuestions       []string                 `json:"failed_questions"`
}

// Options configures an Evaluator
type Options struct {
	DB          metrics.Querier
	Gate        *safety.Gate
	SQL         *metrics.SQLCalculator
	Exec        *metrics.ExecutionCalculator
	Logger      *zap.Logger
	// Concurrency bounds questions in flight; <= 1 runs sequentially
	Concurrency int
	// Progress, when set, receives one task per question
	Progress    *logger.Progress
	// Sink, when set, receives every result as soon as it is scored
	Sink        ResultSink
}

// ResultSink receives per-question results. Calls are serialized.
type ResultSink interface {
	Write(Result) error
}

// Evaluator scores generators against datasets. Safe for concurrent use
// when its Sink is.
type Evaluator struct {
	db          metrics.Querier
	gate        *safety.Gate
	sql         *metrics.SQLCalculator
	exec        *metrics.ExecutionCalculator
	logger      *zap.Logger
	concurrency int
	progress    *logger.Progress
	sink        ResultSink
}

// New creates an evaluator; nil calculators and gate get defaults. DB is
// required.
func New(opts Options) (*Evaluator, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("evaluator needs a database")
	}
	if opts.Gate == nil {
		g, err := safety.NewGate(safety.Config{}, opts.Logger)
		if err != nil {
			return nil, err
		}
		opts.Gate = g
	}
	if opts.SQL == nil {
		opts.SQL = metrics.NewSQLCalculator(nil, nil)
	}
	if opts.Exec == nil {
		opts.Exec = metrics.NewExecutionCalculator(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Evaluator{
		db:          opts.DB,
		gate:        opts.Gate,
		sql:         opts.SQL,
		exec:        opts.Exec,
		logger:      opts.Logger.Named("evaluator"),
		concurrency: opts.Concurrency,
		progress:    opts.Progress,
		sink:        opts.Sink,
	}, nil
}

// EvaluateQuestion generates SQL for q and scores it. A generation failure
// is recorded in the result, not returned.
func (e *Evaluator) EvaluateQuestion(ctx context.Context, gen llm.SQLGenerator, schema string, q dataset.Question) Result {
	start := time.Now()
	res := Result{
		QuestionID:     q.ID,
		Question:       q.Question,
		GroundTruthSQL: q.SQL,
		Database:       q.Database,
	}

	g, err := gen.Generate(ctx, q.Question, schema)
	res.GenerationTime = time.Since(start).Seconds()
	generated := err == nil && g != nil && g.SQL != ""
	if err != nil {
		res.GenerationError = err.Error()
		e.logger.Warn("generation failed", zap.String("question_id", q.ID), zap.Error(err))
	}
	if g != nil {
		res.PredictedSQL = g.SQL
	}

	sqlMetrics, componentMetrics := e.sql.EvaluateWithComponents(res.PredictedSQL, q.SQL, generated)
	res.ComponentMetrics = componentMetrics

	switch {
	case !generated:
		res.ExecutionMetrics = metrics.FailedExecution(q.ExpectedResultCount, generationFailed)
	default:
		report := e.gate.Check(res.PredictedSQL)
		res.Safety = &report
		if !report.Safe {
			res.ExecutionMetrics = metrics.FailedExecution(q.ExpectedResultCount,
				fmt.Sprintf("unsafe sql: %s", report.Reason))
		} else {
			res.ExecutionMetrics = e.exec.Evaluate(ctx, e.db, res.PredictedSQL, q.ExpectedResultCount)
		}
	}
	sqlMetrics.ExecutionSuccess = res.ExecutionMetrics.Success
	res.SQLMetrics = sqlMetrics
	res.TotalTime = time.Since(start).Seconds()
	return res
}

// EvaluateDataset evaluates every question and aggregates. Results come
// back in dataset order. The error is non-nil only when ctx is cancelled.
func (e *Evaluator) EvaluateDataset(ctx context.Context, d *dataset.Dataset, gen llm.SQLGenerator) (*Aggregate, []Result, error) {
	return e.EvaluateDatasetTo(ctx, d, gen, e.sink)
}

// EvaluateDatasetTo is EvaluateDataset with a per-run sink in place of the
// configured one. sink may be nil.
func (e *Evaluator) EvaluateDatasetTo(ctx context.Context, d *dataset.Dataset, gen llm.SQLGenerator, sink ResultSink) (*Aggregate, []Result, error) {
	start := time.Now()
	e.logger.Info("starting evaluation",
		zap.String("dataset", d.Name), zap.String("model", gen.ModelName()), zap.Int("questions", d.Len()))
	if e.progress != nil {
		e.progress.SetTotal(d.Len())
		e.progress.SetPhase(fmt.Sprintf("Evaluating %s with %s", d.Name, gen.ModelName()))
	}

	results := make([]*Result, d.Len())
	var (
		mu     sync.Mutex
		sinkMu sync.Mutex
		failed []string
	)
	emit := func(r Result) error {
		if sink == nil {
			return nil
		}
		sinkMu.Lock()
		defer sinkMu.Unlock()
		return sink.Write(r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, q := range d.Questions {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if e.progress != nil {
				e.progress.StartTask(q.ID)
			}
			res, err := e.safeEvaluate(gctx, gen, d.QuestionSchema(q), q)
			if err != nil {
				mu.Lock()
				failed = append(failed, q.ID)
				mu.Unlock()
				e.logger.Error("evaluation failed", zap.String("question_id", q.ID), zap.Error(err))
				if e.progress != nil {
					e.progress.FailTask(q.ID, err)
				}
				return nil
			}
			results[i] = &res
			if e.progress != nil {
				if res.ExecutionMetrics.Success {
					e.progress.CompleteTask(q.ID)
				} else {
					e.progress.FailTask(q.ID, fmt.Errorf("%s", res.ExecutionMetrics.ErrorMessage))
				}
			}
			if err := emit(res); err != nil {
				e.logger.Warn("result sink failed", zap.String("question_id", q.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	ordered := make([]Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			ordered = append(ordered, *r)
		}
	}
	sort.Strings(failed)

	agg := Summarize(d.Name, d.Len(), ordered, failed, time.Since(start).Seconds())
	agg.Model = gen.ModelName()
	e.logger.Info("evaluation completed",
		zap.String("dataset", d.Name),
		zap.Float64("avg_f1", agg.AvgF1Score),
		zap.Float64("execution_success_rate", agg.ExecutionSuccessRate),
		zap.Float64("seconds", agg.TotalEvaluationTime))
	if e.progress != nil {
		e.progress.PrintSummary()
	}
	return agg, ordered, nil
}

// safeEvaluate turns a panic inside one question into an evaluation error
func (e *Evaluator) safeEvaluate(ctx context.Context, gen llm.SQLGenerator, schema string, q dataset.Question) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.EvaluateQuestion(ctx, gen, schema, q), nil
}

// CompareModels evaluates each generator on the same dataset, keyed by model name
func (e *Evaluator) CompareModels(ctx context.Context, d *dataset.Dataset, gens []llm.SQLGenerator) (map[string]*Aggregate, error) {
	out := make(map[string]*Aggregate, len(gens))
	for _, gen := range gens {
		agg, _, err := e.EvaluateDataset(ctx, d, gen)
		if err != nil {
			return out, err
		}
		out[gen.ModelName()] = agg
	}
	return out, nil
}

// Summarize averages results into an Aggregate. Averages are over scored
// results; questions listed in failed count only toward ErrorTypes.
func Summarize(datasetName string, total int, results []Result, failed []string, seconds float64) *Aggregate {
	agg := &Aggregate{
		RunID:               uuid.NewString(),
		DatasetName:         datasetName,
		TotalQuestions:      total,
		ComponentScores:     map[string]metrics.Score{},
		TotalEvaluationTime: seconds,
		ErrorTypes:          map[string]int{},
		FailedQuestions:     failed,
	}
	if agg.FailedQuestions == nil {
		agg.FailedQuestions = []string{}
	}
	if len(failed) > 0 {
		agg.ErrorTypes[ErrorEvaluation] = len(failed)
	}
	if len(results) == 0 {
		return agg
	}

	compP := map[components.ClauseType]float64{}
	compR := map[components.ClauseType]float64{}
	compF := map[components.ClauseType]float64{}
	for _, r := range results {
		if r.GenerationError == "" {
			agg.SuccessfulGenerations++
		}
		if !r.SQLMetrics.SyntaxValid {
			agg.ErrorTypes[ErrorSyntax]++
		}
		if r.ExecutionMetrics.Success {
			agg.SuccessfulExecutions++
		} else {
			agg.ErrorTypes[ErrorExecution]++
		}
		agg.AvgExactMatch += r.SQLMetrics.ExactMatch
		agg.AvgPrecision += r.SQLMetrics.Precision
		agg.AvgRecall += r.SQLMetrics.Recall
		agg.AvgF1Score += r.SQLMetrics.F1Score
		agg.AvgExecutionTime += r.ExecutionMetrics.ExecutionTime
		agg.AvgResultAccuracy += r.ExecutionMetrics.ResultAccuracy
		agg.AvgGenerationTime += r.GenerationTime
		for ct, a := range r.ComponentMetrics.Components {
			compP[ct] += a.Precision
			compR[ct] += a.Recall
			compF[ct] += a.F1
		}
	}

	n := float64(len(results))
	agg.AvgExactMatch /= n
	agg.AvgPrecision /= n
	agg.AvgRecall /= n
	agg.AvgF1Score /= n
	agg.ExecutionSuccessRate = float64(agg.SuccessfulExecutions) / n
	agg.AvgExecutionTime /= n
	agg.AvgResultAccuracy /= n
	agg.AvgGenerationTime /= n
	for ct := range compP {
		agg.ComponentScores[string(ct)] = metrics.Score{
			Precision: compP[ct] / n,
			Recall:    compR[ct] / n,
			F1:        compF[ct] / n,
		}
	}
	return agg
}

// SaveAggregate writes agg to <dir>/evaluation_<dataset>_<YYYYmmdd_HHMMSS>.json
func SaveAggregate(dir string, agg *Aggregate, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("evaluation_%s_%s.json", FileSafe(agg.DatasetName), now.Format(TimestampLayout))
	path := filepath.Join(dir, name)
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

// LoadAggregate reads a file written by SaveAggregate
func LoadAggregate(path string) (*Aggregate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var agg Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &agg, nil
}
