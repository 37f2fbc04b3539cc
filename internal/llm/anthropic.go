package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/tmc/langchaingo/llms"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicModel adapts the Anthropic messages API to llms.Model
type AnthropicModel struct {
	client *anthropic.Client
	model  string
}

var _ llms.Model = (*AnthropicModel)(nil)

// NewAnthropicModel creates a client for cfg.Name
func NewAnthropicModel(cfg ModelConfig) *AnthropicModel {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicModel{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Name,
	}
}

// Call sends a single user prompt
func (m *AnthropicModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// GenerateContent maps system messages to the system prompt and everything
// else to user or assistant turns
func (m *AnthropicModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(m.model),
		MaxTokens: defaultAnthropicMaxTokens,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		req.Temperature = &t
	}

	var system []string
	for _, msg := range messages {
		text := textOf(msg)
		switch msg.Role {
		case llms.ChatMessageTypeSystem:
			system = append(system, text)
		case llms.ChatMessageTypeAI:
			req.Messages = append(req.Messages, anthropic.NewAssistantTextMessage(text))
		default:
			req.Messages = append(req.Messages, anthropic.NewUserTextMessage(text))
		}
	}
	req.System = strings.Join(system, "\n\n")
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: no user message")
	}

	resp, err := m.client.CreateMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			out.WriteString(*block.Text)
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    out.String(),
			StopReason: string(resp.StopReason),
			GenerationInfo: map[string]any{
				"InputTokens":  resp.Usage.InputTokens,
				"OutputTokens": resp.Usage.OutputTokens,
			},
		}},
	}, nil
}

func textOf(msg llms.MessageContent) string {
	var parts []string
	for _, p := range msg.Parts {
		if t, ok := p.(llms.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}
