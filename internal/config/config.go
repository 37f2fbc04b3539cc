// Package config loads settings from an optional YAML file with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap/zapcore"

	"text2sql/internal/adapter"
	"text2sql/internal/apperrors"
	"text2sql/internal/dialect"
	"text2sql/internal/llm"
	"text2sql/internal/logger"
	"text2sql/internal/safety"
)

// DefaultPath is read when Load is given no path
const DefaultPath = "config.yaml"

// Config holds all configuration for text2sql.
// Environment variables override YAML values. Secrets (API keys, database
// passwords) only come from the environment.
type Config struct {
	AppName    string `yaml:"app_name" env:"APP_NAME" env-default:"Text-to-SQL Assistant"`
	AppVersion string `yaml:"app_version" env:"APP_VERSION" env-default:"1.0.0"`
	Debug      bool   `yaml:"debug" env:"DEBUG" env-default:"false"`

	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Model      ModelConfig      `yaml:"model"`
	API        APIConfig        `yaml:"api"`
	Safety     SafetyConfig     `yaml:"safety"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
}

// LogConfig selects level, encoding and an optional log file
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
	File   string `yaml:"file" env:"LOG_FILE" env-default:""`
}

// DatabaseConfig points at the database questions run against. URL wins
// unless Type is set, in which case the discrete fields are used.
type DatabaseConfig struct {
	URL      string `yaml:"url" env:"DATABASE_URL" env-default:"sqlite:///data/demo.sqlite"`
	Type     string `yaml:"type" env:"DATABASE_TYPE" env-default:""`
	Path     string `yaml:"path" env:"DATABASE_PATH" env-default:""`
	Host     string `yaml:"host" env:"DATABASE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DATABASE_PORT" env-default:"0"`
	Name     string `yaml:"name" env:"DATABASE_NAME" env-default:""`
	User     string `yaml:"user" env:"DATABASE_USER" env-default:""`
	Password string `yaml:"-" env:"DATABASE_PASSWORD"` // Secret - not in YAML

	MaxOpenConns           int `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS" env-default:"10"`
	MaxIdleConns           int `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" env:"DATABASE_CONN_MAX_LIFETIME_MINUTES" env-default:"30"`
}

// ModelConfig selects the language model and how it is called
type ModelConfig struct {
	Provider    string  `yaml:"provider" env:"MODEL_PROVIDER" env-default:"openai"`
	Name        string  `yaml:"name" env:"MODEL_NAME" env-default:"gpt-4o-mini"`
	BaseURL     string  `yaml:"base_url" env:"MODEL_BASE_URL" env-default:""`
	APIKey      string  `yaml:"-" env:"MODEL_API_KEY"` // Secret - not in YAML
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS" env-default:"128"`
	Temperature float64 `yaml:"temperature" env:"MODEL_TEMPERATURE" env-default:"0"`

	// MaxInputLength caps prompt tokens; MaxSchemaChars caps the schema snippet
	MaxInputLength int  `yaml:"max_input_length" env:"MAX_INPUT_LENGTH" env-default:"400"`
	MaxSchemaChars int  `yaml:"max_schema_chars" env:"MAX_SCHEMA_CHARS" env-default:"200"`
	EnableCaching  bool `yaml:"enable_caching" env:"ENABLE_MODEL_CACHING" env-default:"true"`

	MaxRetries     int     `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"2"`
	RepairAttempts int     `yaml:"repair_attempts" env:"LLM_REPAIR_ATTEMPTS" env-default:"1"`
	RatePerSecond  float64 `yaml:"rate_per_second" env:"LLM_RATE_PER_SECOND" env-default:"0"`
	Burst          int     `yaml:"burst" env:"LLM_BURST" env-default:"1"`
}

// APIConfig is the HTTP server
type APIConfig struct {
	Host      string `yaml:"host" env:"API_HOST" env-default:"0.0.0.0"`
	Port      int    `yaml:"port" env:"API_PORT" env-default:"8000"`
	GinMode   string `yaml:"gin_mode" env:"GIN_MODE" env-default:"release"`
	EnableMCP bool   `yaml:"enable_mcp" env:"API_ENABLE_MCP" env-default:"true"`
	// MaxRows caps the rows echoed back in a response
	MaxRows int `yaml:"max_rows" env:"API_MAX_ROWS" env-default:"50"`
}

// SafetyConfig is the SQL safety gate
type SafetyConfig struct {
	DefaultQueryLimit int  `yaml:"default_query_limit" env:"DEFAULT_QUERY_LIMIT" env-default:"200"`
	MaxQueryLimit     int  `yaml:"max_query_limit" env:"MAX_QUERY_LIMIT" env-default:"10000"`
	Enabled           bool `yaml:"enabled" env:"ENABLE_SAFETY_CHECKS" env-default:"true"`
	// Dialect defaults to the database's dialect
	Dialect string `yaml:"dialect" env:"SQL_DIALECT" env-default:""`
	// QueryTimeoutSeconds bounds every statement run against the database
	QueryTimeoutSeconds int `yaml:"query_timeout" env:"QUERY_TIMEOUT" env-default:"30"`
}

// EvaluationConfig is the evaluation framework
type EvaluationConfig struct {
	DatasetsDir    string `yaml:"datasets_dir" env:"EVALUATION_DATASETS_DIR" env-default:"eval/datasets"`
	ResultsDir     string `yaml:"results_dir" env:"EVALUATION_RESULTS_DIR" env-default:"results"`
	ReportsDir     string `yaml:"reports_dir" env:"EVALUATION_REPORTS_DIR" env-default:"results/reports"`
	BenchmarksDir  string `yaml:"benchmarks_dir" env:"EVALUATION_BENCHMARKS_DIR" env-default:"results/benchmarks"`
	TimeoutSeconds int    `yaml:"timeout" env:"EVALUATION_TIMEOUT" env-default:"300"`
	MaxQuestions   int    `yaml:"max_questions" env:"MAX_EVALUATION_QUESTIONS" env-default:"100"`
	Concurrency    int    `yaml:"concurrency" env:"EVALUATION_CONCURRENCY" env-default:"1"`
	WriteDetails   bool   `yaml:"write_details" env:"EVALUATION_WRITE_DETAILS" env-default:"true"`
}

// Load reads path (DefaultPath when empty) with environment overrides and
// validates the result. A missing file is not an error: defaults and the
// environment are used alone.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", apperrors.ErrConfiguration, path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to read environment: %v", apperrors.ErrConfiguration, err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, statErr)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and ranges
func (c *Config) Validate() error {
	var problems []string
	if err := c.LLM().Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.DBConfig(); err != nil {
		problems = append(problems, err.Error())
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.Log.Level))); err != nil {
		problems = append(problems, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}
	if c.Safety.DefaultQueryLimit <= 0 {
		problems = append(problems, "default_query_limit must be positive")
	}
	if c.Safety.MaxQueryLimit < 0 {
		problems = append(problems, "max_query_limit must not be negative")
	}
	if c.Safety.MaxQueryLimit > 0 && c.Safety.MaxQueryLimit < c.Safety.DefaultQueryLimit {
		problems = append(problems, "max_query_limit must be at least default_query_limit")
	}
	if c.Safety.Dialect != "" {
		if _, err := dialect.For(dialect.Name(strings.ToLower(c.Safety.Dialect))); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Evaluation.Concurrency < 1 {
		problems = append(problems, "evaluation concurrency must be at least 1")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("api port %d out of range", c.API.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// DBConfig builds the adapter config
func (c *Config) DBConfig() (*adapter.DBConfig, error) {
	d := c.Database
	var out *adapter.DBConfig
	if d.Type != "" {
		out = &adapter.DBConfig{
			Type:     d.Type,
			Host:     d.Host,
			Port:     d.Port,
			Database: d.Name,
			User:     d.User,
			Password: d.Password,
			FilePath: d.Path,
		}
		if _, err := adapter.NewAdapter(out); err != nil {
			return nil, err
		}
	} else {
		parsed, err := adapter.ParseURL(d.URL)
		if err != nil {
			return nil, err
		}
		if parsed.Password == "" {
			parsed.Password = d.Password
		}
		out = parsed
	}
	out.MaxOpenConns = d.MaxOpenConns
	out.MaxIdleConns = d.MaxIdleConns
	out.ConnMaxLifetime = time.Duration(d.ConnMaxLifetimeMinutes) * time.Minute
	return out, nil
}

// DatabaseType is the configured engine name
func (c *Config) DatabaseType() string {
	if db, err := c.DBConfig(); err == nil {
		return db.Type
	}
	return ""
}

// LLM is the model endpoint
func (c *Config) LLM() llm.ModelConfig {
	return llm.ModelConfig{
		Provider:    llm.Provider(strings.ToLower(c.Model.Provider)),
		Name:        c.Model.Name,
		APIKey:      c.Model.APIKey,
		BaseURL:     c.Model.BaseURL,
		MaxTokens:   c.Model.MaxTokens,
		Temperature: c.Model.Temperature,
	}
}

// Generator is the generator tuning for the configured model
func (c *Config) Generator() llm.GeneratorConfig {
	g := llm.DefaultGeneratorConfig(c.LLM())
	g.MaxRetries = c.Model.MaxRetries
	g.RepairAttempts = c.Model.RepairAttempts
	g.RatePerSecond = c.Model.RatePerSecond
	g.Burst = c.Model.Burst
	return g
}

// Prompts is the prompt builder for the configured limits
func (c *Config) Prompts() *llm.PromptBuilder {
	b := llm.NewPromptBuilder()
	b.MaxSchemaChars = c.Model.MaxSchemaChars
	b.MaxInputTokens = c.Model.MaxInputLength
	return b
}

// Gate is the safety gate config. The dialect follows the database unless
// set explicitly.
func (c *Config) Gate() safety.Config {
	name := dialect.Name(strings.ToLower(c.Safety.Dialect))
	if name == "" {
		name = dialect.FromDatabaseType(c.DatabaseType())
	}
	return safety.Config{
		Dialect:      name,
		DefaultLimit: c.Safety.DefaultQueryLimit,
		MaxLimit:     c.Safety.MaxQueryLimit,
		Disabled:     !c.Safety.Enabled,
	}
}

// QueryTimeout bounds one statement
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Safety.QueryTimeoutSeconds) * time.Second
}

// EvaluationTimeout bounds one whole evaluation run; zero means none
func (c *Config) EvaluationTimeout() time.Duration {
	return time.Duration(c.Evaluation.TimeoutSeconds) * time.Second
}

// LoggerConfig is the zap logger config; Debug forces the debug level
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.Config{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
	if c.Debug {
		lc.Level = "debug"
	}
	return lc
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}
