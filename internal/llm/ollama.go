package llm

import (
	"context"
	"fmt"
)

// OllamaClient handles communication with the Ollama API for local LLM inference.
// It speaks the /api/chat endpoint with streaming disabled; the system prompt
// travels inline as the first message. No credential is needed.
type OllamaClient struct {
	httpBackend
	model string
}

// NewOllamaClient creates a new Ollama client with the given configuration.
// If configuration values are not provided, the following defaults are used:
//   - BaseURL: http://localhost:11434
//   - Model: qwen2.5:7b
//   - Timeout: 60 seconds
func NewOllamaClient(cfg BackendConfig) *OllamaClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "qwen2.5:7b"
	}
	return &OllamaClient{
		httpBackend: newHTTPBackend("ollama", "http://localhost:11434", cfg),
		model:       cfg.DefaultModel,
	}
}

// ollamaChatRequest represents the request body for the /api/chat endpoint
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse represents the response from the /api/chat endpoint.
// Token usage is split into prompt and generated counts.
type ollamaChatResponse struct {
	Model           string            `json:"model"`
	Message         ollamaChatMessage `json:"message"`
	Done            bool              `json:"done"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

func (c *OllamaClient) Name() string             { return c.name }
func (c *OllamaClient) DefaultModel() string     { return c.model }
func (c *OllamaClient) RequiresCredential() bool { return false }

// Complete sends a chat request to Ollama and returns the reply.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - req: The resolved request; Credential is ignored
//
// Returns:
//   - The normalized completion
//   - A *ProviderError if the request fails or the circuit breaker is open
func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	msgs := make([]ollamaChatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, ollamaChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}

	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   false, // We don't support streaming
	}

	var resp ollamaChatResponse
	if err := c.postJSON(ctx, c.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return nil, err
	}

	if resp.Message.Content == "" {
		return nil, &ProviderError{Provider: c.name, StatusCode: 200, Cause: fmt.Errorf("ollama returned empty message: %w", ErrEmptyResponse)}
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Content:    resp.Message.Content,
		TokensUsed: resp.PromptEvalCount + resp.EvalCount,
		Model:      model,
		Provider:   c.name,
	}, nil
}

// Compile-time assertion.
var _ Provider = (*OllamaClient)(nil)
