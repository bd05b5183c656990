package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/llm"
	"github.com/scrypster/bizdna/pkg/types"
)

// captured records the last request a mock backend received.
type captured struct {
	mu      sync.Mutex
	hits    int32
	path    string
	headers http.Header
	body    map[string]interface{}
}

func (c *captured) snapshot() (string, http.Header, map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.headers, c.body
}

// mockBackend creates a test server that records the request and replies
// with status and a JSON payload.
func mockBackend(t *testing.T, status int, payload interface{}) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&c.hits, 1)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)

		c.mu.Lock()
		c.path = r.URL.Path
		c.headers = r.Header.Clone()
		c.body = body
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func conversation() []types.Message {
	return []types.Message{
		{Role: types.RoleUser, Content: "How are my reviews?"},
		{Role: types.RoleAssistant, Content: "Mostly positive."},
		{Role: types.RoleUser, Content: "What should I improve?"},
	}
}

func TestGateway_UnknownProvider(t *testing.T) {
	g := llm.NewGateway(nil, nil, nil)

	_, err := g.Complete(context.Background(), types.ProviderConfig{Provider: "mystery"}, "sys", conversation())

	var ce *llm.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "mystery", ce.Provider)
	assert.False(t, llm.IsProviderError(err))
}

func TestGateway_MissingCredentialFailsBeforeNetwork(t *testing.T) {
	srv, c := mockBackend(t, http.StatusOK, map[string]interface{}{})
	g := llm.NewGateway(nil, nil, nil, llm.NewOpenAIClient(llm.BackendConfig{BaseURL: srv.URL}))

	_, err := g.Complete(context.Background(), types.ProviderConfig{Provider: "openai"}, "sys", conversation())

	require.True(t, llm.IsConfigurationError(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&c.hits), "no request may be sent without a credential")
}

func TestGateway_CredentialResolver(t *testing.T) {
	srv, c := mockBackend(t, http.StatusOK, map[string]interface{}{
		"choices": []map[string]interface{}{{"message": map[string]string{"content": "hi"}}},
	})
	resolver := llm.CredentialFunc(func(_ context.Context, provider string) (string, error) {
		if provider == "openai" {
			return "sk-resolved", nil
		}
		return "", nil
	})
	g := llm.NewGateway(resolver, nil, nil, llm.NewOpenAIClient(llm.BackendConfig{BaseURL: srv.URL}))

	_, err := g.Complete(context.Background(), types.ProviderConfig{Provider: "openai"}, "", conversation())
	require.NoError(t, err)

	_, headers, _ := c.snapshot()
	assert.Equal(t, "Bearer sk-resolved", headers.Get("Authorization"))
}

func TestGateway_ResolverErrorIsConfiguration(t *testing.T) {
	resolver := llm.CredentialFunc(func(context.Context, string) (string, error) {
		return "", errors.New("vault sealed")
	})
	g := llm.NewGateway(resolver, nil, nil, llm.NewOpenAIClient(llm.BackendConfig{BaseURL: "http://127.0.0.1:1"}))

	_, err := g.Complete(context.Background(), types.ProviderConfig{Provider: "openai"}, "", conversation())
	assert.True(t, llm.IsConfigurationError(err))
}

func TestGateway_OpenAIWireShape(t *testing.T) {
	srv, c := mockBackend(t, http.StatusOK, map[string]interface{}{
		"model":   "gpt-4o-mini-2024",
		"choices": []map[string]interface{}{{"message": map[string]string{"content": "Reply quickly to the 2 open reviews."}}},
		"usage":   map[string]int{"total_tokens": 87},
	})
	g := llm.NewGateway(nil, nil, nil, llm.NewOpenAIClient(llm.BackendConfig{BaseURL: srv.URL}))

	out, err := g.Complete(context.Background(),
		types.ProviderConfig{Provider: "openai", Credential: "sk-test"}, "You are helpful.", conversation())
	require.NoError(t, err)

	assert.Equal(t, "Reply quickly to the 2 open reviews.", out.Content)
	assert.Equal(t, 87, out.TokensUsed)
	assert.Equal(t, "gpt-4o-mini-2024", out.Model)
	assert.Equal(t, "openai", out.Provider)

	path, headers, body := c.snapshot()
	assert.Equal(t, "/v1/chat/completions", path)
	assert.Equal(t, "Bearer sk-test", headers.Get("Authorization"))
	assert.Equal(t, "gpt-4o-mini", body["model"])

	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 4)
	first := msgs[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "You are helpful.", first["content"])
	assert.Equal(t, "assistant", msgs[2].(map[string]interface{})["role"])
}

func TestGateway_AnthropicWireShape(t *testing.T) {
	srv, c := mockBackend(t, http.StatusOK, map[string]interface{}{
		"content": []map[string]string{{"type": "text", "text": "Part one. "}, {"type": "text", "text": "Part two."}},
		"usage":   map[string]int{"input_tokens": 30, "output_tokens": 12},
	})
	g := llm.NewGateway(nil, nil, nil, llm.NewAnthropicClient(llm.BackendConfig{BaseURL: srv.URL}))

	out, err := g.Complete(context.Background(),
		types.ProviderConfig{Provider: "anthropic", Model: "claude-test", Credential: "sk-ant"}, "System rules.", conversation())
	require.NoError(t, err)

	assert.Equal(t, "Part one. Part two.", out.Content)
	assert.Equal(t, 42, out.TokensUsed)
	assert.Equal(t, "claude-test", out.Model)

	path, headers, body := c.snapshot()
	assert.Equal(t, "/v1/messages", path)
	assert.Equal(t, "sk-ant", headers.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", headers.Get("anthropic-version"))
	assert.Equal(t, "System rules.", body["system"])

	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 3, "system prompt must not be sent as a message")
	for _, m := range msgs {
		assert.NotEqual(t, "system", m.(map[string]interface{})["role"])
	}
}

func TestGateway_GeminiWireShape(t *testing.T) {
	srv, c := mockBackend(t, http.StatusOK, map[string]interface{}{
		"candidates": []map[string]interface{}{{
			"content": map[string]interface{}{"role": "model", "parts": []map[string]string{{"text": "Hola"}}},
		}},
		"usageMetadata": map[string]int{"totalTokenCount": 19},
	})
	g := llm.NewGateway(nil, nil, nil, llm.NewGeminiClient(llm.BackendConfig{BaseURL: srv.URL}))

	out, err := g.Complete(context.Background(),
		types.ProviderConfig{Provider: "gemini", Model: "gemini-test", Credential: "g-key"}, "Be brief.", conversation())
	require.NoError(t, err)

	assert.Equal(t, "Hola", out.Content)
	assert.Equal(t, 19, out.TokensUsed)

	path, headers, body := c.snapshot()
	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", path)
	assert.Equal(t, "g-key", headers.Get("x-goog-api-key"))

	sys := body["systemInstruction"].(map[string]interface{})
	assert.Equal(t, "Be brief.", sys["parts"].([]interface{})[0].(map[string]interface{})["text"])

	contents := body["contents"].([]interface{})
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].(map[string]interface{})["role"])
	assert.Equal(t, "model", contents[1].(map[string]interface{})["role"], "assistant must be renamed to model")
}

func TestGateway_OllamaNeedsNoCredential(t *testing.T) {
	srv, c := mockBackend(t, http.StatusOK, map[string]interface{}{
		"model":             "qwen2.5:7b",
		"message":           map[string]string{"role": "assistant", "content": "Local answer"},
		"done":              true,
		"prompt_eval_count": 10,
		"eval_count":        5,
	})
	g := llm.NewGateway(nil, nil, nil, llm.NewOllamaClient(llm.BackendConfig{BaseURL: srv.URL}))

	out, err := g.Complete(context.Background(), types.ProviderConfig{Provider: "ollama"}, "sys", conversation())
	require.NoError(t, err)

	assert.Equal(t, "Local answer", out.Content)
	assert.Equal(t, 15, out.TokensUsed)

	path, _, body := c.snapshot()
	assert.Equal(t, "/api/chat", path)
	assert.Equal(t, false, body["stream"])
	assert.Equal(t, "system", body["messages"].([]interface{})[0].(map[string]interface{})["role"])
}

func TestGateway_Non2xxIsProviderError(t *testing.T) {
	srv, _ := mockBackend(t, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
	g := llm.NewGateway(nil, nil, nil, llm.NewOpenAIClient(llm.BackendConfig{BaseURL: srv.URL}))

	_, err := g.Complete(context.Background(), types.ProviderConfig{Provider: "openai", Credential: "k"}, "", conversation())

	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "openai", pe.Provider)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Contains(t, pe.Error(), "rate limited")
}

func TestGateway_EmptyReplyIsProviderError(t *testing.T) {
	srv, _ := mockBackend(t, http.StatusOK, map[string]interface{}{"choices": []interface{}{}})
	g := llm.NewGateway(nil, nil, nil, llm.NewOpenAIClient(llm.BackendConfig{BaseURL: srv.URL}))

	_, err := g.Complete(context.Background(), types.ProviderConfig{Provider: "openai", Credential: "k"}, "", conversation())

	require.True(t, llm.IsProviderError(err))
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestGateway_InvalidJSONIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{invalid json"))
	}))
	defer srv.Close()
	g := llm.NewGateway(nil, nil, nil, llm.NewAnthropicClient(llm.BackendConfig{BaseURL: srv.URL}))

	_, err := g.Complete(context.Background(), types.ProviderConfig{Provider: "anthropic", Credential: "k"}, "", conversation())
	assert.True(t, llm.IsProviderError(err))
}

func TestGateway_TimeoutIsProviderError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	g := llm.NewGateway(nil, nil, nil, llm.NewOllamaClient(llm.BackendConfig{BaseURL: srv.URL}))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Complete(ctx, types.ProviderConfig{Provider: "ollama"}, "", conversation())

	require.True(t, llm.IsProviderError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second, "deadline must cancel the in-flight request")
}

func TestGateway_BreakerOpensAfterFailures(t *testing.T) {
	srv, c := mockBackend(t, http.StatusInternalServerError, map[string]string{"error": "down"})
	g := llm.NewGateway(nil, nil, nil, llm.NewOllamaClient(llm.BackendConfig{BaseURL: srv.URL}))
	cfg := types.ProviderConfig{Provider: "ollama"}

	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), cfg, "", conversation())
		require.True(t, llm.IsProviderError(err))
	}
	assert.Equal(t, "open", g.BreakerStates()["ollama"])

	_, err := g.Complete(context.Background(), cfg, "", conversation())
	require.True(t, llm.IsProviderError(err))
	assert.ErrorIs(t, err, llm.ErrCircuitOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&c.hits), "open breaker must not reach the backend")
}

func TestNewDefaultGateway_RegistersAllBackends(t *testing.T) {
	g := llm.NewDefaultGateway(llm.Config{}, nil, nil, nil)
	assert.Equal(t, []string{"anthropic", "gemini", "ollama", "openai"}, g.Providers())
}
