package mcp

import (
	"encoding/json"

	"github.com/scrypster/bizdna/pkg/types"
)

// GetProfileArgs are the arguments of get_profile and refresh_profile.
type GetProfileArgs struct {
	OperatorID string `json:"operator_id"`
	Scope      string `json:"scope,omitempty"`
}

// SendMessageArgs are the arguments of send_message.
type SendMessageArgs struct {
	OperatorID     string `json:"operator_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Scope          string `json:"scope,omitempty"`
}

// GetHistoryArgs are the arguments of get_history.
type GetHistoryArgs struct {
	OperatorID     string `json:"operator_id"`
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit,omitempty"`
}

// GetHistoryResult lists the messages of one conversation, oldest first.
type GetHistoryResult struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []*types.Message `json:"messages"`
}

// RememberArgs are the arguments of remember.
type RememberArgs struct {
	OperatorID string           `json:"operator_id"`
	Kind       types.MemoryKind `json:"kind"`
	Content    string           `json:"content"`
	Importance int              `json:"importance,omitempty"`
	Context    string           `json:"context,omitempty"`
}

// RecallArgs are the arguments of recall.
type RecallArgs struct {
	OperatorID string `json:"operator_id"`
	Limit      int    `json:"limit,omitempty"`
}

// RecallResult holds memories ordered by importance then recency.
type RecallResult struct {
	Memories []*types.MemoryRecord `json:"memories"`
	Total    int                   `json:"total"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeServerError    = -32000
)

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via tools/list.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}
