package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/api/mcp"
	"github.com/scrypster/bizdna/internal/assistant"
	"github.com/scrypster/bizdna/internal/llm"
	"github.com/scrypster/bizdna/internal/memory"
	"github.com/scrypster/bizdna/internal/profile"
	"github.com/scrypster/bizdna/internal/storage/sqlite"
	"github.com/scrypster/bizdna/pkg/types"
)

type stubCompleter struct {
	reply string
	err   error
}

func (c stubCompleter) Complete(_ context.Context, cfg types.ProviderConfig, _ string, _ []types.Message) (*llm.Completion, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Completion{Content: c.reply, Model: "test-model", Provider: cfg.Provider}, nil
}

func newServer(t *testing.T, c assistant.Completer) *mcp.Server {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.NewStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.PutIdentity(ctx, &types.OperatorIdentity{OperatorID: "op-1", Name: "Café Luna", Category: "cafe"}))
	_, err = store.PutRecords(ctx, "op-1", "", []types.RawRecord{
		{Kind: types.RecordFeedback, ID: "f1", Rating: 5, Body: "best espresso in town", CreatedAt: "2026-09-01T09:00:00Z"},
		{Kind: types.RecordFeedback, ID: "f2", Rating: 4, Body: "cozy place", CreatedAt: "2026-09-02T09:00:00Z"},
	})
	require.NoError(t, err)

	profiles := profile.NewService(store, store, profile.DefaultConfig())
	memories := memory.NewStore(store, nil)
	cfg := assistant.DefaultConfig()
	cfg.DefaultProvider = types.ProviderConfig{Provider: "openai", Credential: "sk-test-0000"}
	orch := assistant.New(c, profiles, memories, store, cfg)
	return mcp.NewServer(orch, profiles, memories, mcp.WithVersion("1.2.3"))
}

type rpcResponse struct {
	Result json.RawMessage   `json:"result"`
	Error  *mcp.JSONRPCError `json:"error"`
	ID     interface{}       `json:"id"`
}

func rpc(t *testing.T, srv *mcp.Server, body string) rpcResponse {
	t.Helper()
	raw, err := srv.HandleRequest(context.Background(), []byte(body))
	require.NoError(t, err)
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

// callTool invokes a tool and returns its text payload and error flag.
func callTool(t *testing.T, srv *mcp.Server, name string, args interface{}) (string, bool) {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	require.NoError(t, err)
	resp := rpc(t, srv, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":`+string(params)+`}`)
	require.Nil(t, resp.Error)
	var res mcp.MCPToolCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.Len(t, res.Content, 1)
	return res.Content[0].Text, res.IsError
}

func TestHandleRequest_Protocol(t *testing.T) {
	srv := newServer(t, stubCompleter{reply: "ok"})

	resp := rpc(t, srv, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Nil(t, resp.Error)
	var init mcp.MCPInitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &init))
	assert.Equal(t, "bizdna", init.ServerInfo.Name)
	assert.Equal(t, "1.2.3", init.ServerInfo.Version)
	assert.Equal(t, mcp.ProtocolVersion, init.ProtocolVersion)

	resp = rpc(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	var list mcp.MCPToolsListResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"get_profile", "refresh_profile", "send_message", "get_history", "remember", "recall"}, names)

	resp = rpc(t, srv, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrCodeMethodNotFound, resp.Error.Code)

	resp = rpc(t, srv, `{"jsonrpc":"1.0","id":4,"method":"tools/list"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrCodeInvalidRequest, resp.Error.Code)

	resp = rpc(t, srv, `{not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrCodeParseError, resp.Error.Code)
}

func TestTools_ProfileAndMemories(t *testing.T) {
	srv := newServer(t, stubCompleter{reply: "ok"})

	text, isErr := callTool(t, srv, "get_profile", map[string]string{"operator_id": "op-1"})
	require.False(t, isErr, text)
	var p types.BehavioralProfile
	require.NoError(t, json.Unmarshal([]byte(text), &p))
	assert.Equal(t, "Café Luna", p.Name)
	assert.InDelta(t, 4.5, p.AverageRating, 0.001)

	text, isErr = callTool(t, srv, "refresh_profile", map[string]string{"operator_id": "op-1"})
	require.False(t, isErr, text)

	text, isErr = callTool(t, srv, "get_profile", map[string]string{"operator_id": "ghost"})
	assert.True(t, isErr)
	assert.NotEmpty(t, text)

	text, isErr = callTool(t, srv, "remember", map[string]interface{}{
		"operator_id": "op-1", "kind": "fact", "content": "closed on Mondays", "importance": 90,
	})
	require.False(t, isErr, text)

	text, isErr = callTool(t, srv, "recall", map[string]string{"operator_id": "op-1"})
	require.False(t, isErr, text)
	var recall mcp.RecallResult
	require.NoError(t, json.Unmarshal([]byte(text), &recall))
	require.Equal(t, 1, recall.Total)
	assert.Equal(t, "closed on Mondays", recall.Memories[0].Content)

	_, isErr = callTool(t, srv, "recall", map[string]string{})
	assert.True(t, isErr, "operator_id is required")

	text, isErr = callTool(t, srv, "teleport", nil)
	assert.True(t, isErr)
	assert.Contains(t, text, "unknown tool")
}

func TestTools_SendMessageAndHistory(t *testing.T) {
	srv := newServer(t, stubCompleter{reply: "Your rating is 4.5. I suggest you reply to the review from yesterday."})

	text, isErr := callTool(t, srv, "send_message", map[string]string{"operator_id": "op-1", "message": "how am I doing?"})
	require.False(t, isErr, text)
	var res assistant.SendResult
	require.NoError(t, json.Unmarshal([]byte(text), &res))
	require.NotEmpty(t, res.ConversationID)
	assert.Contains(t, res.Content, "4.5")

	text, isErr = callTool(t, srv, "get_history", map[string]string{"operator_id": "op-1", "conversation_id": res.ConversationID})
	require.False(t, isErr, text)
	var hist mcp.GetHistoryResult
	require.NoError(t, json.Unmarshal([]byte(text), &hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, types.RoleUser, hist.Messages[0].Role)

	_, isErr = callTool(t, srv, "get_history", map[string]string{"operator_id": "someone-else", "conversation_id": res.ConversationID})
	assert.True(t, isErr, "history is owner-only")
}

func TestTools_SendMessageFailureIsLabelled(t *testing.T) {
	srv := newServer(t, stubCompleter{err: &llm.ProviderError{Provider: "openai", StatusCode: 500, Cause: errors.New("boom")}})

	text, isErr := callTool(t, srv, "send_message", map[string]string{"operator_id": "op-1", "message": "hello"})
	require.True(t, isErr)
	assert.Contains(t, text, "retryable=true")
	assert.Contains(t, text, "conversation ")
}

func TestStdioTransport(t *testing.T) {
	srv := newServer(t, stubCompleter{reply: "ok"})
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"nope"}`,
	}, "\n"))
	var out bytes.Buffer

	require.NoError(t, mcp.NewStdioTransport(srv, in, &out, nil).Serve(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, "blank lines are skipped")
	for i, line := range lines {
		var resp rpcResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		assert.EqualValues(t, i+1, resp.ID)
	}
	assert.Contains(t, lines[2], `"error"`)
}

func TestStdioTransport_CancelledContext(t *testing.T) {
	srv := newServer(t, stubCompleter{reply: "ok"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := mcp.NewStdioTransport(srv, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &bytes.Buffer{}, nil).Serve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
