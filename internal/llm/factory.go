package llm

import (
	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/metrics"
)

// Config selects endpoints and default models for the built-in backends.
type Config struct {
	OpenAI    BackendConfig
	Anthropic BackendConfig
	Gemini    BackendConfig
	Ollama    BackendConfig
}

// NewDefaultGateway creates a gateway with all four built-in backends
// registered.
func NewDefaultGateway(cfg Config, creds CredentialResolver, logger *zap.Logger, m *metrics.Metrics) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	withLogger := func(b BackendConfig) BackendConfig {
		if b.Logger == nil {
			b.Logger = logger
		}
		return b
	}
	return NewGateway(creds, logger, m,
		NewOpenAIClient(withLogger(cfg.OpenAI)),
		NewAnthropicClient(withLogger(cfg.Anthropic)),
		NewGeminiClient(withLogger(cfg.Gemini)),
		NewOllamaClient(withLogger(cfg.Ollama)),
	)
}
