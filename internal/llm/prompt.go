package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// SystemRules is the instruction block that opens every prompt
const SystemRules = `Translate English to SQLite SELECT queries.
Rules:
- Only SELECT statements
- Use exact table and column names from schema
- No JOINs unless necessary
- Always add LIMIT 200
- Return complete, valid SQL only
- No partial or incomplete queries`

// FewShots are worked examples against the demo shop schema
const FewShots = `Q: show me all users
SQL: SELECT id, name, country FROM users LIMIT 200;

Q: top 5 skus by revenue
SQL: SELECT sku, SUM(price) as revenue FROM items GROUP BY sku ORDER BY revenue DESC LIMIT 5;

Q: orders over 100 dollars
SQL: SELECT id, user_id, total FROM orders WHERE total > 100 ORDER BY total DESC LIMIT 200;

Q: users from the US
SQL: SELECT id, name, country FROM users WHERE country = 'US' LIMIT 200;

Q: total revenue by country
SQL: SELECT u.country, SUM(o.total) as revenue FROM orders o JOIN users u ON o.user_id = u.id GROUP BY u.country ORDER BY revenue DESC LIMIT 200;`

const (
	DefaultMaxSchemaChars = 200
	DefaultMaxInputTokens = 400
	truncationMarker      = "..."
)

// PromptBuilder renders the generation prompt and keeps it inside the
// model's input budget.
type PromptBuilder struct {
	Rules    string
	FewShots string
	// MaxSchemaChars truncates the schema snippet; <= 0 disables it
	MaxSchemaChars int
	// MaxInputTokens caps the rendered prompt; <= 0 disables it. Few-shots
	// are dropped first, then the schema is shortened further.
	MaxInputTokens int
	// CountTokens defaults to the cl100k_base encoding
	CountTokens func(string) int
}

// NewPromptBuilder returns a builder with the default rules, examples and budgets
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		Rules:          SystemRules,
		FewShots:       FewShots,
		MaxSchemaChars: DefaultMaxSchemaChars,
		MaxInputTokens: DefaultMaxInputTokens,
	}
}

// Build renders the prompt for question against schema
func (b *PromptBuilder) Build(schema, question string) string {
	schema = truncate(schema, b.MaxSchemaChars)
	fewshots := b.FewShots
	prompt := b.render(schema, fewshots, question)
	if b.MaxInputTokens <= 0 {
		return prompt
	}

	count := b.counter()
	if count(prompt) <= b.MaxInputTokens {
		return prompt
	}
	if fewshots != "" {
		fewshots = ""
		prompt = b.render(schema, fewshots, question)
	}
	for count(prompt) > b.MaxInputTokens && schema != "" {
		keep := len(strings.TrimSuffix(schema, truncationMarker)) / 2
		if keep < len(truncationMarker) {
			schema = ""
		} else {
			schema = truncate(schema, keep)
		}
		prompt = b.render(schema, fewshots, question)
	}
	return prompt
}

// TokenCount reports the token count of text under the builder's counter
func (b *PromptBuilder) TokenCount(text string) int {
	return b.counter()(text)
}

func (b *PromptBuilder) render(schema, fewshots, question string) string {
	return fmt.Sprintf("%s\n\nSchema:\n%s\n\nExamples:\n%s\n\nQ: %s\nSQL:", b.Rules, schema, fewshots, question)
}

func (b *PromptBuilder) counter() func(string) int {
	if b.CountTokens != nil {
		return b.CountTokens
	}
	return countCL100K
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + truncationMarker
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// countCL100K counts tokens with cl100k_base. When the encoding cannot be
// loaded it falls back to roughly four bytes per token.
func countCL100K(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return (len(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
