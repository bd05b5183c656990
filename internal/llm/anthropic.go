package llm

import (
	"context"
	"fmt"
	"strings"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient implements Provider using the Anthropic Messages API.
// The system prompt goes in the top-level "system" field, never in messages.
type AnthropicClient struct {
	httpBackend
	model     string
	maxTokens int
}

// NewAnthropicClient creates a new Anthropic client with the given configuration.
// Defaults: BaseURL https://api.anthropic.com, model claude-haiku-4-5-20251001.
func NewAnthropicClient(cfg BackendConfig) *AnthropicClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-haiku-4-5-20251001"
	}
	return &AnthropicClient{
		httpBackend: newHTTPBackend("anthropic", "https://api.anthropic.com", cfg),
		model:       cfg.DefaultModel,
		maxTokens:   1024,
	}
}

// anthropicMessagesRequest is the request body for POST /v1/messages.
type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicMessagesResponse is the response body from POST /v1/messages.
type anthropicMessagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Name() string             { return c.name }
func (c *AnthropicClient) DefaultModel() string     { return c.model }
func (c *AnthropicClient) RequiresCredential() bool { return true }

// Complete sends the conversation to Anthropic and joins the text blocks of
// the reply.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	body := anthropicMessagesRequest{
		Model:     req.Model,
		MaxTokens: c.maxTokens,
		System:    req.SystemPrompt,
		Messages:  msgs,
	}
	headers := map[string]string{
		"x-api-key":         req.Credential,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicMessagesResponse
	if err := c.postJSON(ctx, c.baseURL+"/v1/messages", headers, body, &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &ProviderError{Provider: c.name, StatusCode: 200, Cause: fmt.Errorf("anthropic returned empty content: %w", ErrEmptyResponse)}
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Content:    text.String(),
		TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		Model:      model,
		Provider:   c.name,
	}, nil
}

// Compile-time assertion.
var _ Provider = (*AnthropicClient)(nil)
