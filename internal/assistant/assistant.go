// Package assistant answers one natural-language question end to end:
// schema lookup, generation, the safety gate and optional execution.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"text2sql/internal/adapter"
	"text2sql/internal/apperrors"
	"text2sql/internal/llm"
	"text2sql/internal/logger"
	"text2sql/internal/metrics"
	"text2sql/internal/safety"
)

// UnsafeMessage is the error reported when generated SQL is rejected
const UnsafeMessage = "Generated SQL failed safety checks."

// ErrEmptyQuestion rejects a blank question before any model call
var ErrEmptyQuestion = fmt.Errorf("%w: empty question", apperrors.ErrSQLGeneration)

// DefaultMaxRows caps the rows returned with an answer
const DefaultMaxRows = 50

// Answer is the outcome of one question. Rows is the full row count; Data
// holds at most MaxRows of them.
type Answer struct {
	RequestID      string                   `json:"request_id"`
	Question       string                   `json:"question"`
	SQL            string                   `json:"sql"`
	Rows           *int                     `json:"rows,omitempty"`
	Columns        []string                 `json:"columns,omitempty"`
	Data           []map[string]interface{} `json:"data,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Safety         *safety.Report           `json:"safety,omitempty"`
	GenerationTime float64                  `json:"generation_time"`
	ExecutionTime  float64                  `json:"execution_time,omitempty"`
}

// Executed reports whether the answer carries query results
func (a *Answer) Executed() bool {
	return a.Rows != nil
}

type requestIDKey struct{}

// WithRequestID attaches an id that Ask reports instead of minting one
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached to ctx, or a fresh UUID
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Config wires an Assistant
type Config struct {
	DB        adapter.DBAdapter
	Gate      *safety.Gate
	Generator llm.SQLGenerator
	Scorer    *metrics.SQLCalculator
	Logger    *zap.Logger
	// MaxRows caps Answer.Data; zero means DefaultMaxRows
	MaxRows int
	// QueryTimeout bounds execution; zero means no extra deadline
	QueryTimeout time.Duration
}

// Assistant is safe for concurrent use when its collaborators are
type Assistant struct {
	db        adapter.DBAdapter
	gate      *safety.Gate
	generator llm.SQLGenerator
	scorer    *metrics.SQLCalculator
	logger    *zap.Logger
	maxRows   int
	timeout   time.Duration
}

// New checks cfg and fills defaults. Generator may be nil, in which case
// Ask fails but Validate and Score still work.
func New(cfg Config) (*Assistant, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("%w: assistant needs a database", apperrors.ErrConfiguration)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gate == nil {
		g, err := safety.NewGate(safety.Config{}, cfg.Logger)
		if err != nil {
			return nil, err
		}
		cfg.Gate = g
	}
	if cfg.Scorer == nil {
		cfg.Scorer = metrics.NewSQLCalculator(nil, nil)
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &Assistant{
		db:        cfg.DB,
		gate:      cfg.Gate,
		generator: cfg.Generator,
		scorer:    cfg.Scorer,
		logger:    cfg.Logger.Named("assistant"),
		maxRows:   cfg.MaxRows,
		timeout:   cfg.QueryTimeout,
	}, nil
}

// ModelName names the generator, or "" without one
func (a *Assistant) ModelName() string {
	if a.generator == nil {
		return ""
	}
	return a.generator.ModelName()
}

// DatabaseVersion reports the engine and its version, such as "SQLite 3.46.0"
func (a *Assistant) DatabaseVersion(ctx context.Context) (string, error) {
	v, err := a.db.GetDatabaseVersion(ctx)
	if err != nil {
		return "", err
	}
	return a.db.GetDatabaseType() + " " + v, nil
}

// Schema introspects the connected database
func (a *Assistant) Schema(ctx context.Context) (*adapter.Schema, error) {
	return adapter.IntrospectSchema(ctx, a.db)
}

// Ask generates SQL for question, passes it through the gate and runs it when
// execute is set. Unsafe SQL and execution failures are reported in
// Answer.Error; the returned error covers schema and generation failures.
func (a *Assistant) Ask(ctx context.Context, question string, execute bool) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if a.generator == nil {
		return nil, fmt.Errorf("%w: no model configured", apperrors.ErrModelLoad)
	}
	ans := &Answer{RequestID: RequestID(ctx), Question: question}
	log := a.logger.With(zap.String("request_id", ans.RequestID))

	schema, err := a.Schema(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	gen, err := a.generator.Generate(ctx, question, schema.Compact())
	ans.GenerationTime = time.Since(start).Seconds()
	if err != nil {
		log.Warn("generation failed", zap.Error(err))
		return nil, err
	}

	verdict := a.gate.Prepare(gen.SQL)
	ans.SQL = verdict.SQL
	if !verdict.Safe {
		report := verdict.Report
		ans.Safety = &report
		ans.Error = UnsafeMessage
		log.Info("unsafe sql rejected",
			zap.String("reason", string(report.Reason)),
			zap.String("sql", logger.SanitizeQuery(verdict.SQL)))
		return ans, nil
	}
	if !execute {
		return ans, nil
	}

	result, err := a.run(ctx, verdict.SQL)
	if result != nil {
		ans.ExecutionTime = float64(result.ExecutionTime) / 1000
	}
	if err != nil {
		ans.Error = logger.SanitizeError(err)
		log.Info("query failed", zap.String("error", ans.Error))
		return ans, nil
	}
	rows := result.RowCount
	ans.Rows = &rows
	ans.Columns = result.Columns
	ans.Data = result.Head(a.maxRows)
	return ans, nil
}

// Validate caps and classifies sql without running it
func (a *Assistant) Validate(sql string) safety.Verdict {
	return a.gate.Prepare(sql)
}

// Score compares predicted against ground-truth SQL. Execution success is
// unknown here and reported false.
func (a *Assistant) Score(predicted, groundTruth string) (metrics.SQLMetrics, metrics.ComponentMetrics) {
	return a.scorer.EvaluateWithComponents(predicted, groundTruth, false)
}

func (a *Assistant) run(ctx context.Context, sql string) (*adapter.QueryResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	result, err := a.db.ExecuteQuery(ctx, sql)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("%w: query exceeded %s", apperrors.ErrTimeout, a.timeout)
	}
	return result, err
}
