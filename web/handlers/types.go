package handlers

import (
	"time"

	"github.com/scrypster/bizdna/internal/notify"
	"github.com/scrypster/bizdna/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// TurnFailureResponse is returned when a conversation turn fails. Label is
// safe to show to the end user in place of an answer.
type TurnFailureResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	Label          string `json:"label"`
	ConversationID string `json:"conversation_id"`
	State          string `json:"state"`
	Retryable      bool   `json:"retryable"`
}

// RefreshProfileRequest is the body of POST /api/profiles/refresh.
type RefreshProfileRequest struct {
	OperatorID string `json:"operator_id"`
	Scope      string `json:"scope,omitempty"`
}

// CreateMemoryRequest is the body of POST /api/memories.
type CreateMemoryRequest struct {
	OperatorID string           `json:"operator_id"`
	Kind       types.MemoryKind `json:"kind"`
	Content    string           `json:"content"`
	Importance int              `json:"importance"`
	Context    string           `json:"context,omitempty"`
}

// MessagesResponse is returned by GET /api/conversations/{id}/messages.
type MessagesResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []*types.Message `json:"messages"`
}

// MemoriesResponse is returned by GET /api/memories.
type MemoriesResponse struct {
	OperatorID string                `json:"operator_id"`
	Memories   []*types.MemoryRecord `json:"memories"`
}

// Event is pushed to WebSocket clients.
type Event struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// WebSocket event types
const (
	EventProfileBuilt  = notify.EventProfileBuilt
	EventProfileFailed = notify.EventProfileFailed
	EventTurnState     = "turn.state"
)
