// Package llm is the provider gateway: it translates one backend-neutral
// completion request into the wire shape of each supported backend
// (OpenAI, Anthropic, Gemini, Ollama) and normalizes the replies.
//
// The gateway never retries. Fallback between providers is the caller's
// decision, driven by the typed errors returned here.
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/metrics"
	"github.com/scrypster/bizdna/pkg/types"
)

// CredentialResolver supplies API credentials by provider name. An empty
// string with a nil error means "not configured".
type CredentialResolver interface {
	Resolve(ctx context.Context, provider string) (string, error)
}

// StaticCredentials resolves credentials from a fixed map.
type StaticCredentials map[string]string

// Resolve implements CredentialResolver.
func (s StaticCredentials) Resolve(_ context.Context, provider string) (string, error) {
	return s[provider], nil
}

// CredentialFunc adapts a function to CredentialResolver.
type CredentialFunc func(ctx context.Context, provider string) (string, error)

// Resolve implements CredentialResolver.
func (f CredentialFunc) Resolve(ctx context.Context, provider string) (string, error) {
	return f(ctx, provider)
}

// Gateway dispatches completions to registered providers.
type Gateway struct {
	mu        sync.RWMutex
	providers map[string]Provider
	creds     CredentialResolver
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewGateway creates a gateway with the given providers registered. A nil
// resolver means only credentials carried in ProviderConfig are used.
func NewGateway(creds CredentialResolver, logger *zap.Logger, m *metrics.Metrics, providers ...Provider) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if creds == nil {
		creds = StaticCredentials{}
	}
	g := &Gateway{
		providers: make(map[string]Provider, len(providers)),
		creds:     creds,
		logger:    logger,
		metrics:   m,
	}
	for _, p := range providers {
		g.Register(p)
	}
	return g
}

// Register adds (or replaces) a provider under its Name.
func (g *Gateway) Register(p Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[strings.ToLower(p.Name())] = p
}

// Providers returns the registered provider names, sorted.
func (g *Gateway) Providers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BreakerStates reports the circuit breaker state of each HTTP provider.
func (g *Gateway) BreakerStates() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.providers))
	for name, p := range g.providers {
		if b, ok := p.(interface{ BreakerState() string }); ok {
			out[name] = b.BreakerState()
		}
	}
	return out
}

func (g *Gateway) lookup(name string) (Provider, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[strings.ToLower(name)]
	return p, ok
}

// Complete sends systemPrompt and msgs to the provider selected by cfg.
//
// Configuration problems (unknown provider, missing credential) return
// *ConfigurationError before any network call. Backend failures return
// *ProviderError. Cancelling ctx cancels the in-flight request.
func (g *Gateway) Complete(ctx context.Context, cfg types.ProviderConfig, systemPrompt string, msgs []types.Message) (*Completion, error) {
	p, ok := g.lookup(cfg.Provider)
	if !ok {
		return nil, &ConfigurationError{Provider: cfg.Provider, Reason: "unknown provider"}
	}

	credential := cfg.Credential
	if credential == "" {
		resolved, err := g.creds.Resolve(ctx, p.Name())
		if err != nil {
			return nil, &ConfigurationError{Provider: p.Name(), Reason: fmt.Sprintf("credential lookup failed: %v", err)}
		}
		credential = resolved
	}
	if credential == "" && p.RequiresCredential() {
		return nil, &ConfigurationError{Provider: p.Name(), Reason: "credential not set"}
	}

	model := cfg.Model
	if model == "" {
		model = p.DefaultModel()
	}

	req := Request{
		Model:        model,
		Credential:   credential,
		SystemPrompt: systemPrompt,
		Messages:     make([]ChatMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	g.logger.Debug("provider call",
		zap.String("provider", p.Name()),
		zap.String("model", model),
		zap.String("credential", types.MaskCredential(credential)),
		zap.Int("messages", len(req.Messages)),
	)

	start := time.Now()
	completion, err := p.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		g.metrics.RecordProviderCall(p.Name(), "error", 0, elapsed)
		g.logger.Warn("provider call failed",
			zap.String("provider", p.Name()),
			zap.String("model", model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		if IsProviderError(err) {
			return nil, err
		}
		return nil, &ProviderError{Provider: p.Name(), Cause: err}
	}

	g.metrics.RecordProviderCall(p.Name(), "ok", completion.TokensUsed, elapsed)
	return completion, nil
}
