package llm

import (
	"context"
	"fmt"
)

// OpenAIClient implements Provider using the OpenAI chat completions API.
// The system prompt travels inline as the first message.
type OpenAIClient struct {
	httpBackend
	model string
}

// NewOpenAIClient creates a new OpenAI client with the given configuration.
// Defaults: BaseURL https://api.openai.com, model gpt-4o-mini.
func NewOpenAIClient(cfg BackendConfig) *OpenAIClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	return &OpenAIClient{
		httpBackend: newHTTPBackend("openai", "https://api.openai.com", cfg),
		model:       cfg.DefaultModel,
	}
}

// openAIChatRequest is the request body for POST /v1/chat/completions.
type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIChatResponse is the response body from POST /v1/chat/completions.
type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Name() string             { return c.name }
func (c *OpenAIClient) DefaultModel() string     { return c.model }
func (c *OpenAIClient) RequiresCredential() bool { return true }

// Complete sends the conversation to OpenAI and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	msgs := make([]openAIChatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openAIChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openAIChatMessage{Role: m.Role, Content: m.Content})
	}

	body := openAIChatRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: 0.7,
	}
	headers := map[string]string{"Authorization": "Bearer " + req.Credential}

	var resp openAIChatResponse
	if err := c.postJSON(ctx, c.baseURL+"/v1/chat/completions", headers, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, &ProviderError{Provider: c.name, StatusCode: 200, Cause: fmt.Errorf("openai returned no choices: %w", ErrEmptyResponse)}
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Content:    resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      model,
		Provider:   c.name,
	}, nil
}

// Compile-time assertion.
var _ Provider = (*OpenAIClient)(nil)
