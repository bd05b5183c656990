package llm

import "context"

// ChatMessage is one turn in the backend-neutral request.
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is the uniform completion request handed to a Provider. The
// gateway has already resolved the model and credential.
type Request struct {
	Model        string
	Credential   string
	SystemPrompt string
	Messages     []ChatMessage
}

// Completion is the normalized result of a completion call.
type Completion struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used,omitempty"` // 0 when the backend does not report usage
	Model      string `json:"model"`
	Provider   string `json:"provider"`
}

// Provider translates a Request into one backend's wire shape and back.
// Implementations return *ProviderError for every failure.
type Provider interface {
	Name() string
	DefaultModel() string
	// RequiresCredential is false for backends reachable without an API key.
	RequiresCredential() bool
	Complete(ctx context.Context, req Request) (*Completion, error)
}
