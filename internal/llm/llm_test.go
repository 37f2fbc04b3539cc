package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"text2sql/internal/apperrors"
)

// scriptedModel answers with the queued responses in order
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (m *scriptedModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, textOf(msgs[len(msgs)-1]))
	i := len(m.prompts) - 1
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	resp := ""
	if i < len(m.responses) {
		resp = m.responses[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: resp}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func newTestGenerator(m llms.Model, cfg GeneratorConfig) *Generator {
	pb := NewPromptBuilder()
	pb.CountTokens = wordCount
	pb.MaxInputTokens = 0
	g := NewGenerator(m, pb, cfg, zap.NewNop())
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestPromptBuilder_Layout(t *testing.T) {
	pb := &PromptBuilder{Rules: "RULES", FewShots: "Q: a\nSQL: SELECT 1;", MaxSchemaChars: 10}
	got := pb.Build("tables:\n  users(id, name)", "how many users")
	assert.Equal(t, "RULES\n\nSchema:\ntables:\n  ...\n\nExamples:\nQ: a\nSQL: SELECT 1;\n\nQ: how many users\nSQL:", got)
}

func TestPromptBuilder_TokenBudget(t *testing.T) {
	pb := NewPromptBuilder()
	pb.CountTokens = wordCount
	pb.MaxSchemaChars = 0
	schema := "tables:\n  " + strings.Repeat("t(a, b) ", 50)

	pb.MaxInputTokens = 1000
	full := pb.Build(schema, "show me all users")
	assert.Contains(t, full, "top 5 skus by revenue")

	// few-shots alone are over budget so they go first
	pb.MaxInputTokens = wordCount(SystemRules) + 120
	reduced := pb.Build(schema, "show me all users")
	assert.NotContains(t, reduced, "top 5 skus by revenue")
	assert.LessOrEqual(t, wordCount(reduced), pb.MaxInputTokens)
	assert.Contains(t, reduced, "Q: show me all users\nSQL:")

	pb.MaxInputTokens = wordCount(SystemRules) + 20
	tight := pb.Build(schema, "show me all users")
	assert.LessOrEqual(t, wordCount(tight), pb.MaxInputTokens)
	assert.True(t, strings.HasSuffix(tight, "SQL:"))
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "SELECT id FROM users LIMIT 200;", "SELECT id FROM users LIMIT 200;"},
		{"fenced", "Here you go:\n```sql\nSELECT id\nFROM users;\n```\nHope it helps", "SELECT id\nFROM users;"},
		{"final answer", "Thought: done\nFinal Answer: SELECT 1", "SELECT 1"},
		{"inline backticks", "Use `SELECT name FROM users` for that.", "SELECT name FROM users"},
		{"label", "SQL: SELECT * FROM orders", "SELECT * FROM orders"},
		{"trailing prose", "SELECT * FROM orders\nWHERE total > 100\nThis query returns big orders.", "SELECT * FROM orders\nWHERE total > 100"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSQL(tt.in))
		})
	}
}

func TestQuickCheck(t *testing.T) {
	assert.NoError(t, QuickCheck("SELECT COUNT(*) AS n FROM users"))
	assert.ErrorContains(t, QuickCheck("SELECT COUNT(*) AS count(*) FROM users"), "illegal alias")
	assert.ErrorContains(t, QuickCheck("SELECT (1 FROM t"), "unclosed")
	assert.ErrorContains(t, QuickCheck("SELECT 1) FROM t"), "closing parenthesis")
}

func TestGenerator_Generate(t *testing.T) {
	m := &scriptedModel{responses: []string{"```sql\nSELECT id, name FROM users LIMIT 200;\n```"}}
	g := newTestGenerator(m, DefaultGeneratorConfig(ModelConfig{Name: "demo"}))

	gen, err := g.Generate(context.Background(), "show me all users", "tables:\n  users(id, name)")
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users LIMIT 200;", gen.SQL)
	assert.Equal(t, 1, gen.Attempts)
	assert.False(t, gen.Repaired)
	assert.Equal(t, "demo", g.ModelName())
	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], "Q: show me all users\nSQL:")
}

func TestGenerator_RetriesThenFails(t *testing.T) {
	boom := errors.New("503 upstream")
	m := &scriptedModel{errs: []error{boom, boom, boom}}
	g := newTestGenerator(m, DefaultGeneratorConfig(ModelConfig{Name: "demo"}))

	_, err := g.Generate(context.Background(), "q", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSQLGeneration)
	assert.Len(t, m.prompts, 3)
}

func TestGenerator_RetryRecovers(t *testing.T) {
	m := &scriptedModel{
		errs:      []error{errors.New("timeout"), nil},
		responses: []string{"", "SELECT 1"},
	}
	g := newTestGenerator(m, DefaultGeneratorConfig(ModelConfig{Name: "demo"}))
	gen, err := g.Generate(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, 2, gen.Attempts)
}

func TestGenerator_Repair(t *testing.T) {
	m := &scriptedModel{responses: []string{
		"SELECT COUNT(*) AS count(*) FROM users",
		"SELECT COUNT(*) AS n FROM users",
	}}
	g := newTestGenerator(m, DefaultGeneratorConfig(ModelConfig{Name: "demo"}))
	gen, err := g.Generate(context.Background(), "how many users", "")
	require.NoError(t, err)
	assert.True(t, gen.Repaired)
	assert.Equal(t, "SELECT COUNT(*) AS n FROM users", gen.SQL)
	require.Len(t, m.prompts, 2)
	assert.Contains(t, m.prompts[1], "illegal alias")
}

func TestGenerator_EmptyAnswer(t *testing.T) {
	m := &scriptedModel{responses: []string{"", ""}}
	g := newTestGenerator(m, DefaultGeneratorConfig(ModelConfig{Name: "demo"}))
	_, err := g.Generate(context.Background(), "q", "")
	assert.ErrorIs(t, err, apperrors.ErrSQLGeneration)
}

func TestGenerator_Cancelled(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("down")}}
	g := newTestGenerator(m, DefaultGeneratorConfig(ModelConfig{Name: "demo"}))
	g.sleep = sleepCtx
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, "q", "")
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	builds := 0
	factory := func(cfg ModelConfig) (llms.Model, error) {
		builds++
		return &scriptedModel{}, nil
	}
	c := NewCache(true, factory, nil)
	cfg := ModelConfig{Name: "a"}

	m1, err := c.Get(cfg)
	require.NoError(t, err)
	m2, err := c.Get(cfg)
	require.NoError(t, err)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, builds)

	_, err = c.Get(ModelConfig{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	c.Invalidate(cfg.ID())
	m3, err := c.Get(cfg)
	require.NoError(t, err)
	assert.NotSame(t, m1, m3)
	assert.Equal(t, 3, builds)

	c.Clear()
	assert.Equal(t, 0, c.Len())

	off := NewCache(false, factory, nil)
	_, _ = off.Get(cfg)
	_, _ = off.Get(cfg)
	assert.Equal(t, 0, off.Len())
	assert.Equal(t, 5, builds)
}

func TestCache_FactoryError(t *testing.T) {
	c := NewCache(true, func(ModelConfig) (llms.Model, error) { return nil, errors.New("no key") }, nil)
	_, err := c.Get(ModelConfig{Name: "x"})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestModelConfig(t *testing.T) {
	assert.Equal(t, "openai/gpt-4o", ModelConfig{Name: "gpt-4o"}.ID())
	assert.Equal(t, "anthropic/claude@http://x", ModelConfig{Provider: ProviderAnthropic, Name: "claude", BaseURL: "http://x"}.ID())
	assert.ErrorIs(t, ModelConfig{}.Validate(), apperrors.ErrConfiguration)
	assert.Error(t, ModelConfig{Name: "x", Provider: "cohere"}.Validate())

	m, err := NewModel(ModelConfig{Provider: ProviderAnthropic, Name: "claude-x", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicModel{}, m)

	m, err = NewModel(ModelConfig{Name: "deepseek-chat", APIKey: "k", BaseURL: "http://localhost:1/v1"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
