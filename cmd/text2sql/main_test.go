package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text2sql/internal/evaluator"
	"text2sql/internal/llm"
)

// setupEnv points every path setting at a temp dir
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_URL", fmt.Sprintf("sqlite:///%s", filepath.Join(dir, "demo.sqlite")))
	t.Setenv("EVALUATION_DATASETS_DIR", filepath.Join(dir, "datasets"))
	t.Setenv("EVALUATION_REPORTS_DIR", filepath.Join(dir, "reports"))
	t.Setenv("EVALUATION_BENCHMARKS_DIR", filepath.Join(dir, "benchmarks"))
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "check", "SELECT name FROM users")
	require.NoError(t, err)
	var v struct {
		SQL  string `json:"sql"`
		Safe bool   `json:"safe"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.True(t, v.Safe)
	assert.Equal(t, "SELECT name FROM users LIMIT 200;", v.SQL)

	out, err = run(t, "check", "DROP TABLE users")
	assert.ErrorContains(t, err, "statement rejected")
	assert.Contains(t, out, `"safe": false`)
}

func TestCheckCommand_Verify(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "check", "--verify", "SELECT country FROM users")
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)
	assert.Contains(t, out, "DISTINCT")

	_, err = run(t, "check", "--verify", "SELECT * FROM customers")
	assert.ErrorContains(t, err, "plan stage")
}

func TestScoreCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "score", "--predicted", "select id from users", "--truth", "SELECT id FROM users")
	require.NoError(t, err)
	var resp struct {
		SQL struct {
			ExactMatch float64 `json:"exact_match"`
		} `json:"sql_metrics"`
		Components map[string]json.RawMessage `json:"component_scores"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1.0, resp.SQL.ExactMatch)
	assert.Contains(t, resp.Components, "overall")

	_, err = run(t, "score", "--predicted", "SELECT 1")
	assert.Error(t, err)
}

func TestSeedCommand(t *testing.T) {
	dir := setupEnv(t)

	target := filepath.Join(dir, "nested", "shop.sqlite")
	_, err := run(t, "seed", target)
	require.NoError(t, err)
	assert.FileExists(t, target)

	_, err = run(t, "seed")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "demo.sqlite"))
}

func TestSeedCommand_RejectsNonSQLite(t *testing.T) {
	setupEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/shop")

	_, err := run(t, "seed")
	assert.ErrorContains(t, err, "SQLite")
}

func TestDatasetsCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "datasets", "demo")
	require.NoError(t, err)
	var resp struct {
		Name  string         `json:"dataset_name"`
		Stats map[string]any `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "demo", resp.Name)
	assert.NotEmpty(t, resp.Stats)
}

func TestReportCommand(t *testing.T) {
	dir := setupEnv(t)

	now := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	a, err := evaluator.SaveAggregate(dir, &evaluator.Aggregate{DatasetName: "demo", Model: "a", AvgF1Score: 0.9}, now)
	require.NoError(t, err)
	b, err := evaluator.SaveAggregate(dir, &evaluator.Aggregate{DatasetName: "demo", Model: "b", AvgF1Score: 0.7}, now.Add(time.Second))
	require.NoError(t, err)

	out := filepath.Join(dir, "html")
	_, err = run(t, "report", a, "--out", out)
	require.NoError(t, err)
	_, err = run(t, "report", a, b, "--out", out)
	require.NoError(t, err)

	single, _ := filepath.Glob(filepath.Join(out, "evaluation_report_demo_*.html"))
	comparison, _ := filepath.Glob(filepath.Join(out, "model_comparison_report_*.html"))
	assert.Len(t, single, 1)
	assert.Len(t, comparison, 1)
}

func TestOpenDB_SeedsMissingSQLiteFile(t *testing.T) {
	dir := setupEnv(t)
	a, err := newApp(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	defer a.close()

	db, err := a.openDB(t.Context())
	require.NoError(t, err)
	defer db.Close()

	res, err := db.ExecuteQuery(t.Context(), "SELECT COUNT(*) AS n FROM users")
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Rows[0]["n"])
	_, err = os.Stat(filepath.Join(dir, "demo.sqlite"))
	assert.NoError(t, err)
}

func TestModelFromRef(t *testing.T) {
	base := llm.ModelConfig{Provider: llm.ProviderOpenAI, Name: "gpt-4o-mini", BaseURL: "http://proxy", APIKey: "k"}

	tests := []struct {
		ref  string
		want llm.ModelConfig
	}{
		{"", base},
		{"  ", base},
		{"gpt-4o", llm.ModelConfig{Provider: llm.ProviderOpenAI, Name: "gpt-4o", BaseURL: "http://proxy", APIKey: "k"}},
		{"openai:qwen-max", llm.ModelConfig{Provider: llm.ProviderOpenAI, Name: "qwen-max", BaseURL: "http://proxy", APIKey: "k"}},
		{"Anthropic:claude-x", llm.ModelConfig{Provider: llm.ProviderAnthropic, Name: "claude-x", APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, modelFromRef(base, tt.ref))
		})
	}
}
