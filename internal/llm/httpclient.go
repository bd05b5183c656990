package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxErrorBody       = 2048
)

// httpBackend is the transport shared by the HTTP providers: one client,
// one breaker, one base URL.
type httpBackend struct {
	name    string
	baseURL string
	client  *http.Client
	breaker *CircuitBreaker
}

// BackendConfig configures one HTTP provider.
type BackendConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration // default: 60s
	// HTTPClient overrides the client built from Timeout. Tests use it.
	HTTPClient *http.Client
	Breaker    CircuitBreakerConfig
	Logger     *zap.Logger
}

func newHTTPBackend(name, defaultBase string, cfg BackendConfig) httpBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker = DefaultCircuitBreakerConfig()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return httpBackend{
		name:    name,
		baseURL: cfg.BaseURL,
		client:  client,
		breaker: NewCircuitBreaker(name, cfg.Breaker, cfg.Logger),
	}
}

// postJSON sends body to url through the breaker and decodes a 2xx
// response into out. Every failure comes back as *ProviderError.
func (b *httpBackend) postJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	_, err := b.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, b.do(ctx, url, headers, body, out)
	})
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Provider: b.name, Cause: err}
}

func (b *httpBackend) do(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return &ProviderError{Provider: b.name, Cause: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return &ProviderError{Provider: b.name, Cause: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: b.name, Cause: fmt.Errorf("failed to send request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProviderError{
			Provider:   b.name,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s returned status %d: %s", b.name, resp.StatusCode, bytes.TrimSpace(snippet)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: b.name, StatusCode: resp.StatusCode, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// BreakerState returns the breaker state for health reporting.
func (b *httpBackend) BreakerState() string {
	return b.breaker.State()
}
