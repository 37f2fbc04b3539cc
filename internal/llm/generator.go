package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"text2sql/internal/apperrors"
	"text2sql/internal/logger"
)

// SQLGenerator turns a question into a candidate SQL string
type SQLGenerator interface {
	Generate(ctx context.Context, question, schema string) (*Generation, error)
	ModelName() string
}

// Generation is one question's generation record
type Generation struct {
	Question     string        `json:"question"`
	Model        string        `json:"model"`
	Prompt       string        `json:"-"`
	Response     string        `json:"-"`
	SQL          string        `json:"sql"`
	Attempts     int           `json:"attempts"`
	Repaired     bool          `json:"repaired"`
	PromptTokens int           `json:"prompt_tokens"`
	Duration     time.Duration `json:"duration"`
}

// GeneratorConfig tunes retries, rate limiting and repair
type GeneratorConfig struct {
	Model ModelConfig
	// MaxRetries is the number of extra calls after a failed one
	MaxRetries int
	// Backoff[i] is the wait before retry i+1; the last entry repeats
	Backoff []time.Duration
	// RatePerSecond limits model calls; <= 0 means unlimited
	RatePerSecond float64
	Burst         int
	// RepairAttempts re-prompts with the problem when QuickCheck rejects output
	RepairAttempts int
}

// DefaultGeneratorConfig retries twice after 1s and 3s and repairs once
func DefaultGeneratorConfig(model ModelConfig) GeneratorConfig {
	return GeneratorConfig{
		Model:          model,
		MaxRetries:     2,
		Backoff:        []time.Duration{time.Second, 3 * time.Second},
		RepairAttempts: 1,
	}
}

// Generator is the langchaingo-backed SQLGenerator
type Generator struct {
	model   llms.Model
	cfg     GeneratorConfig
	prompts *PromptBuilder
	limiter *rate.Limiter
	logger  *zap.Logger
	sleep   func(context.Context, time.Duration) error
}

var _ SQLGenerator = (*Generator)(nil)

// NewGenerator wires a model client to a prompt builder. A nil builder
// selects NewPromptBuilder.
func NewGenerator(model llms.Model, prompts *PromptBuilder, cfg GeneratorConfig, log *zap.Logger) *Generator {
	if prompts == nil {
		prompts = NewPromptBuilder()
	}
	if log == nil {
		log = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Generator{
		model:   model,
		cfg:     cfg,
		prompts: prompts,
		limiter: limiter,
		logger:  log.Named("generator").With(zap.String("model", cfg.Model.Name)),
		sleep:   sleepCtx,
	}
}

// ModelName returns the configured model name
func (g *Generator) ModelName() string {
	return g.cfg.Model.Name
}

// Generate builds the prompt, calls the model with retries and extracts the
// SQL. Output that fails QuickCheck is sent back with the problem attached
// up to RepairAttempts times; the last candidate is returned either way.
func (g *Generator) Generate(ctx context.Context, question, schema string) (*Generation, error) {
	start := time.Now()
	prompt := g.prompts.Build(schema, question)
	gen := &Generation{
		Question:     question,
		Model:        g.cfg.Model.Name,
		Prompt:       prompt,
		PromptTokens: g.prompts.TokenCount(prompt),
	}

	for repair := 0; ; repair++ {
		response, attempts, err := g.call(ctx, prompt)
		gen.Attempts += attempts
		if err != nil {
			return nil, err
		}
		gen.Response = response
		gen.SQL = ExtractSQL(response)

		checkErr := QuickCheck(gen.SQL)
		if gen.SQL != "" && checkErr == nil {
			break
		}
		if repair >= g.cfg.RepairAttempts {
			break
		}
		if checkErr == nil {
			checkErr = fmt.Errorf("no SQL statement found in the answer")
		}
		g.logger.Debug("repairing generated sql",
			zap.String("sql", logger.SanitizeQuery(gen.SQL)), zap.Error(checkErr))
		prompt = repairPrompt(gen.Prompt, gen.SQL, checkErr)
		gen.Repaired = true
	}

	gen.Duration = time.Since(start)
	if gen.SQL == "" {
		return gen, fmt.Errorf("%w: empty answer from %s", apperrors.ErrSQLGeneration, g.cfg.Model.Name)
	}
	g.logger.Info("sql generated",
		zap.Duration("duration", gen.Duration),
		zap.Int("attempts", gen.Attempts),
		zap.String("sql", logger.SanitizeQuery(gen.SQL)))
	return gen, nil
}

// call sends prompt with retry and backoff
func (g *Generator) call(ctx context.Context, prompt string) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt - 1)
			g.logger.Warn("model call failed, retrying",
				zap.Int("attempt", attempt), zap.Int("max_attempts", g.cfg.MaxRetries+1),
				zap.Duration("delay", delay), zap.String("error", logger.SanitizeError(lastErr)))
			if err := g.sleep(ctx, delay); err != nil {
				return "", attempt, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return "", attempt, fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}

		resp, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, g.cfg.Model.callOptions()...)
		if err == nil {
			return resp, attempt + 1, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", g.cfg.MaxRetries + 1, fmt.Errorf("%w: model call failed after %d attempts: %v",
		apperrors.ErrSQLGeneration, g.cfg.MaxRetries+1, lastErr)
}

func (g *Generator) backoff(i int) time.Duration {
	if len(g.cfg.Backoff) == 0 {
		return 0
	}
	if i >= len(g.cfg.Backoff) {
		i = len(g.cfg.Backoff) - 1
	}
	return g.cfg.Backoff[i]
}

func repairPrompt(prompt, sql string, problem error) string {
	return fmt.Sprintf("%s %s\n\nThat query is invalid: %v\nWrite a corrected query.\nSQL:", prompt, sql, problem)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
