package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"text2sql/internal/adapter"
	"text2sql/internal/assistant"
	"text2sql/internal/benchmark"
	"text2sql/internal/config"
	"text2sql/internal/dataset"
	"text2sql/internal/dialect"
	"text2sql/internal/evaluator"
	"text2sql/internal/llm"
	"text2sql/internal/logger"
	"text2sql/internal/metrics"
	"text2sql/internal/safety"
)

// app holds what every subcommand shares: config, logger and the model
// cache. It is built once in the root command's PersistentPreRunE.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	models *llm.Cache
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		log:    log,
		models: llm.NewCache(cfg.Model.EnableCaching, llm.NewModel, log),
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

// openDB connects to the configured database. A SQLite file that does not
// exist yet is created with the demo tables.
func (a *app) openDB(ctx context.Context) (adapter.DBAdapter, error) {
	dbCfg, err := a.cfg.DBConfig()
	if err != nil {
		return nil, err
	}
	if isSQLite(dbCfg.Type) && dbCfg.FilePath != ":memory:" {
		if _, err := os.Stat(dbCfg.FilePath); errors.Is(err, fs.ErrNotExist) {
			a.log.Info("creating demo database", zap.String("path", dbCfg.FilePath))
			if err := seedFile(ctx, dbCfg.FilePath); err != nil {
				return nil, err
			}
		}
	}

	db, err := adapter.NewAdapter(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	if sq, ok := db.(*adapter.SQLiteAdapter); ok && dbCfg.FilePath == ":memory:" {
		if err := adapter.SeedDemo(ctx, sq); err != nil {
			db.Close()
			return nil, err
		}
	}
	a.log.Info("database connected",
		zap.String("type", db.GetDatabaseType()),
		zap.String("url", logger.SanitizeConnectionString(a.cfg.Database.URL)))
	return db, nil
}

func (a *app) gate() (*safety.Gate, error) {
	return safety.NewGate(a.cfg.Gate(), a.log)
}

func (a *app) sqlCalculator() (*metrics.SQLCalculator, error) {
	parser, err := dialect.For(a.cfg.Gate().Dialect)
	if err != nil {
		return nil, err
	}
	return metrics.NewSQLCalculator(nil, parser), nil
}

// generator resolves a model reference of the form "name" or
// "provider:name" against the configured endpoint. Empty means the
// configured model.
func (a *app) generator(ref string) (llm.SQLGenerator, error) {
	mc := modelFromRef(a.cfg.LLM(), ref)
	model, err := a.models.Get(mc)
	if err != nil {
		return nil, err
	}
	gc := a.cfg.Generator()
	gc.Model = mc
	return llm.NewGenerator(model, a.cfg.Prompts(), gc, a.log), nil
}

func modelFromRef(base llm.ModelConfig, ref string) llm.ModelConfig {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return base
	}
	mc := base
	if provider, name, ok := strings.Cut(ref, ":"); ok && provider != "" {
		mc.Provider = llm.Provider(strings.ToLower(provider))
		mc.Name = name
		if mc.Provider != base.Provider {
			mc.BaseURL = ""
		}
		return mc
	}
	mc.Name = ref
	return mc
}

// assistant connects the database and builds the question pipeline. The
// generator is optional so check and score work without model credentials.
func (a *app) assistant(ctx context.Context, withModel bool) (*assistant.Assistant, func(), error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	gate, err := a.gate()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	calc, err := a.sqlCalculator()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	var gen llm.SQLGenerator
	if withModel {
		if gen, err = a.generator(""); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	asst, err := assistant.New(assistant.Config{
		DB:           db,
		Gate:         gate,
		Generator:    gen,
		Scorer:       calc,
		Logger:       a.log,
		MaxRows:      a.cfg.API.MaxRows,
		QueryTimeout: a.cfg.QueryTimeout(),
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return asst, func() { db.Close() }, nil
}

// runner builds the benchmark runner with a live progress display
func (a *app) runner(ctx context.Context, concurrency int) (*benchmark.Runner, func(), error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	gate, err := a.gate()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	calc, err := a.sqlCalculator()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if concurrency <= 0 {
		concurrency = a.cfg.Evaluation.Concurrency
	}
	eval, err := evaluator.New(evaluator.Options{
		DB:          db,
		Gate:        gate,
		SQL:         calc,
		Exec:        metrics.NewExecutionCalculator(a.cfg.QueryTimeout()),
		Logger:      a.log,
		Concurrency: concurrency,
		Progress:    logger.NewProgress(0),
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	r, err := benchmark.NewRunner(benchmark.Config{
		ResultsDir:   a.cfg.Evaluation.BenchmarksDir,
		Evaluator:    eval,
		Loader:       dataset.NewLoader(a.cfg.Evaluation.DatasetsDir),
		Generators:   a.generator,
		Logger:       a.log,
		WriteDetails: a.cfg.Evaluation.WriteDetails,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return r, func() { db.Close() }, nil
}

// evalContext applies the configured evaluation timeout
func (a *app) evalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t := a.cfg.EvaluationTimeout(); t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return context.WithCancel(ctx)
}

func seedFile(ctx context.Context, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return adapter.SeedDemoFile(ctx, path)
}

func isSQLite(t string) bool {
	switch strings.ToLower(t) {
	case string(adapter.SQLite), "sqlite3":
		return true
	}
	return false
}
