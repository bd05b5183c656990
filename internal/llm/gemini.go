package llm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// GeminiClient implements Provider using the Gemini generateContent API.
// The system prompt goes in systemInstruction and the assistant role is
// renamed to "model".
type GeminiClient struct {
	httpBackend
	model string
}

// NewGeminiClient creates a new Gemini client with the given configuration.
// Defaults: BaseURL https://generativelanguage.googleapis.com, model gemini-2.0-flash.
func NewGeminiClient(cfg BackendConfig) *GeminiClient {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	return &GeminiClient{
		httpBackend: newHTTPBackend("gemini", "https://generativelanguage.googleapis.com", cfg),
		model:       cfg.DefaultModel,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiRequest is the request body for POST /v1beta/models/{model}:generateContent.
type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (c *GeminiClient) Name() string             { return c.name }
func (c *GeminiClient) DefaultModel() string     { return c.model }
func (c *GeminiClient) RequiresCredential() bool { return true }

// Complete sends the conversation to Gemini and joins the parts of the
// first candidate.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	body := geminiRequest{Contents: make([]geminiContent, 0, len(req.Messages))}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	for _, m := range req.Messages {
		body.Contents = append(body.Contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(req.Model))
	headers := map[string]string{"x-goog-api-key": req.Credential}

	var resp geminiResponse
	if err := c.postJSON(ctx, endpoint, headers, body, &resp); err != nil {
		return nil, err
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &ProviderError{Provider: c.name, StatusCode: 200, Cause: fmt.Errorf("gemini returned no candidates: %w", ErrEmptyResponse)}
	}

	model := resp.ModelVersion
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Content:    text.String(),
		TokensUsed: resp.UsageMetadata.TotalTokenCount,
		Model:      model,
		Provider:   c.name,
	}, nil
}

func geminiRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return role
}

// Compile-time assertion.
var _ Provider = (*GeminiClient)(nil)
