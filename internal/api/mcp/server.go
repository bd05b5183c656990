// Package mcp exposes bizdna to MCP clients: profile lookup, assistant turns
// and operator memories as tools over line-delimited JSON-RPC 2.0.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/assistant"
	"github.com/scrypster/bizdna/pkg/types"
)

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Assistant runs conversation turns and forced profile rebuilds.
type Assistant interface {
	Send(ctx context.Context, req assistant.SendRequest) (*assistant.SendResult, error)
	ForceRefreshProfile(ctx context.Context, operatorID, scope string) (*types.BehavioralProfile, error)
	History(ctx context.Context, operatorID, conversationID string, limit int) ([]*types.Message, error)
}

// Profiles returns cached or freshly built profiles.
type Profiles interface {
	GetOrBuild(ctx context.Context, operatorID, scope string, forceRefresh bool) (*types.BehavioralProfile, error)
}

// Memories reads and writes operator memories.
type Memories interface {
	Append(ctx context.Context, operatorID string, kind types.MemoryKind, content string, importance int, memCtx string) (*types.MemoryRecord, error)
	TopK(ctx context.Context, operatorID string, k int) ([]*types.MemoryRecord, error)
}

type toolFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Server handles MCP JSON-RPC requests.
type Server struct {
	assistant Assistant
	profiles  Profiles
	memories  Memories
	logger    *zap.Logger
	version   string

	tools    []MCPTool
	handlers map[string]toolFunc
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version reported by initialize.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer creates a Server over the assistant, profile and memory services.
func NewServer(a Assistant, p Profiles, m Memories, opts ...ServerOption) *Server {
	s := &Server{
		assistant: a,
		profiles:  p,
		memories:  m,
		logger:    zap.NewNop(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.register()
	return s
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the encoded
// response. Tool failures are reported inside the tool result, not as
// JSON-RPC errors.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	switch req.Method {
	case "initialize":
		result = MCPInitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
			ServerInfo:      MCPServerInfo{Name: "bizdna", Version: s.version},
		}
	case "initialized", "notifications/initialized":
		result = map[string]interface{}{}
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result = MCPToolsListResult{Tools: s.tools}
	case "tools/call":
		var p MCPToolCallParams
		if err := s.unmarshalParams(req.Params, &p); err != nil {
			return s.errorResponse(req.ID, ErrCodeInvalidParams, err.Error(), nil)
		}
		result = s.callTool(ctx, p)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) callTool(ctx context.Context, p MCPToolCallParams) *MCPToolCallResult {
	fn, ok := s.handlers[p.Name]
	if !ok {
		return toolError(fmt.Sprintf("unknown tool: %s", p.Name))
	}

	args := p.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	out, err := fn(ctx, args)
	if err != nil {
		s.logger.Debug("mcp tool failed", zap.String("tool", p.Name), zap.Error(err))
		return toolError(describe(err))
	}

	text, err := json.Marshal(out)
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: string(text)}}}
}

func toolError(msg string) *MCPToolCallResult {
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: msg}},
		IsError: true,
	}
}

// describe prefixes turn failures with their user-facing label.
func describe(err error) string {
	var te *assistant.TurnError
	if errors.As(err, &te) {
		return fmt.Sprintf("%s (conversation %s, retryable=%t): %v", te.FailureLabel(), te.ConversationID, te.Retryable(), err)
	}
	return err.Error()
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}

func requireOperator(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("operator_id is required")
	}
	return nil
}

func (s *Server) register() {
	s.handlers = make(map[string]toolFunc)
	add := func(t MCPTool, fn toolFunc) {
		s.tools = append(s.tools, t)
		s.handlers[t.Name] = fn
	}

	operatorProp := map[string]interface{}{"type": "string", "description": "Operator (business) ID"}
	scopeProp := map[string]interface{}{"type": "string", "description": "Optional profile scope, e.g. one location"}

	add(MCPTool{
		Name:        "get_profile",
		Description: "Return the operator's behavioral profile: ratings, sentiment, topics, reply style and timing. Served from cache while fresh.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"required":   []string{"operator_id"},
			"properties": map[string]interface{}{"operator_id": operatorProp, "scope": scopeProp},
		},
	}, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		args, err := decode[GetProfileArgs](raw)
		if err != nil {
			return nil, err
		}
		if err := requireOperator(args.OperatorID); err != nil {
			return nil, err
		}
		return s.profiles.GetOrBuild(ctx, args.OperatorID, args.Scope, false)
	})

	add(MCPTool{
		Name:        "refresh_profile",
		Description: "Rebuild the operator's behavioral profile from the latest interaction records, bypassing the cache.",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"required":   []string{"operator_id"},
			"properties": map[string]interface{}{"operator_id": operatorProp, "scope": scopeProp},
		},
	}, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		args, err := decode[GetProfileArgs](raw)
		if err != nil {
			return nil, err
		}
		return s.assistant.ForceRefreshProfile(ctx, args.OperatorID, args.Scope)
	})

	add(MCPTool{
		Name:        "send_message",
		Description: "Ask the business assistant a question. Omit conversation_id to start a new conversation; the reply includes the conversation_id to continue it.",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"operator_id", "message"},
			"properties": map[string]interface{}{
				"operator_id":     operatorProp,
				"conversation_id": map[string]interface{}{"type": "string", "description": "Existing conversation to continue"},
				"message":         map[string]interface{}{"type": "string", "description": "The operator's message"},
				"scope":           scopeProp,
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		args, err := decode[SendMessageArgs](raw)
		if err != nil {
			return nil, err
		}
		return s.assistant.Send(ctx, assistant.SendRequest{
			OperatorID:     args.OperatorID,
			ConversationID: args.ConversationID,
			Message:        args.Message,
			Scope:          args.Scope,
		})
	})

	add(MCPTool{
		Name:        "get_history",
		Description: "List the messages of a conversation, oldest first, including failed turns.",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"operator_id", "conversation_id"},
			"properties": map[string]interface{}{
				"operator_id":     operatorProp,
				"conversation_id": map[string]interface{}{"type": "string"},
				"limit":           map[string]interface{}{"type": "integer", "description": "Max messages (default 50)"},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		args, err := decode[GetHistoryArgs](raw)
		if err != nil {
			return nil, err
		}
		msgs, err := s.assistant.History(ctx, args.OperatorID, args.ConversationID, args.Limit)
		if err != nil {
			return nil, err
		}
		return GetHistoryResult{ConversationID: args.ConversationID, Messages: msgs}, nil
	})

	add(MCPTool{
		Name:        "remember",
		Description: "Store a long-term note about the business (preference, fact, goal or correction). Notes are immutable and shape future answers.",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"operator_id", "kind", "content"},
			"properties": map[string]interface{}{
				"operator_id": operatorProp,
				"kind":        map[string]interface{}{"type": "string", "enum": types.ValidMemoryKinds},
				"content":     map[string]interface{}{"type": "string"},
				"importance":  map[string]interface{}{"type": "integer", "description": "0-100, default 50"},
				"context":     map[string]interface{}{"type": "string", "description": "Where the note came from"},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		args, err := decode[RememberArgs](raw)
		if err != nil {
			return nil, err
		}
		if err := requireOperator(args.OperatorID); err != nil {
			return nil, err
		}
		importance := args.Importance
		if importance == 0 {
			importance = 50
		}
		return s.memories.Append(ctx, args.OperatorID, args.Kind, args.Content, importance, args.Context)
	})

	add(MCPTool{
		Name:        "recall",
		Description: "List the operator's most important notes, most important and most recent first.",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"operator_id"},
			"properties": map[string]interface{}{
				"operator_id": operatorProp,
				"limit":       map[string]interface{}{"type": "integer", "description": "Max notes (default 10, max 100)"},
			},
		},
	}, func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		args, err := decode[RecallArgs](raw)
		if err != nil {
			return nil, err
		}
		if err := requireOperator(args.OperatorID); err != nil {
			return nil, err
		}
		mems, err := s.memories.TopK(ctx, args.OperatorID, args.Limit)
		if err != nil {
			return nil, err
		}
		return RecallResult{Memories: mems, Total: len(mems)}, nil
	})
}

func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
		ID:      id,
	})
}
