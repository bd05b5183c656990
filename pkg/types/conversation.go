package types

import "time"

// Role is the author of a conversation message.
type Role string

// Message roles
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus records the outcome of the turn a message belongs to.
type MessageStatus string

// Message status constants
const (
	MessageOK     MessageStatus = "ok"
	MessageFailed MessageStatus = "failed"
)

// ActionType is one of the fixed suggested-action vocabulary.
type ActionType string

// Suggested action types
const (
	ActionDraftReply     ActionType = "draft_reply"
	ActionCreatePost     ActionType = "create_post"
	ActionShowAnalytics  ActionType = "show_analytics"
	ActionAnswerQuestion ActionType = "answer_question"
	ActionUpdateHours    ActionType = "update_hours"
)

// SuggestedAction is a structured, non-authoritative recommendation extracted
// from assistant output.
type SuggestedAction struct {
	Type  ActionType             `json:"type"`
	Label string                 `json:"label"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// Conversation is an ordered, append-only sequence of messages owned by
// exactly one operator.
type Conversation struct {
	ID         string    `json:"id"`
	OperatorID string    `json:"operator_id"`
	Scope      string    `json:"scope,omitempty"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message is a single turn entry. Messages are never mutated or reordered
// after they are appended; Seq is assigned by the store and strictly
// increases within a conversation.
type Message struct {
	ID               string            `json:"id"`
	ConversationID   string            `json:"conversation_id"`
	Seq              int64             `json:"seq"`
	Role             Role              `json:"role"`
	Content          string            `json:"content"`
	CreatedAt        time.Time         `json:"created_at"`
	ModelUsed        string            `json:"model_used,omitempty"`
	TokensUsed       int               `json:"tokens_used,omitempty"`
	Confidence       int               `json:"confidence,omitempty"`
	SuggestedActions []SuggestedAction `json:"suggested_actions,omitempty"`
	Status           MessageStatus     `json:"status"`
	Retryable        bool              `json:"retryable,omitempty"`
	Error            string            `json:"error,omitempty"`
}
