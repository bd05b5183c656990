// Package storage provides composable storage interfaces for the bizdna system.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Profiles, memories and
// conversations are owned here; interaction records are read-only and come
// from tables the ingestion pipeline populates.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/bizdna/pkg/types"
)

// ProfileRepository persists one BehavioralProfile per (operator, scope).
type ProfileRepository interface {
	// GetProfile returns the cached profile.
	// Returns ErrNotFound if none has been built yet.
	GetProfile(ctx context.Context, operatorID, scope string) (*types.BehavioralProfile, error)

	// UpsertProfile replaces the profile keyed by (OperatorID, Scope).
	UpsertProfile(ctx context.Context, profile *types.BehavioralProfile) error
}

// MemoryRepository is an append-only store of operator memories.
type MemoryRepository interface {
	// AppendMemory inserts a new record. Records are never updated.
	AppendMemory(ctx context.Context, memory *types.MemoryRecord) error

	// ListMemories returns up to limit records for the operator ordered by
	// importance descending, then creation time descending.
	ListMemories(ctx context.Context, operatorID string, limit int) ([]*types.MemoryRecord, error)
}

// ConversationRepository stores conversations and their append-only
// message log.
type ConversationRepository interface {
	// CreateConversation inserts a new conversation.
	CreateConversation(ctx context.Context, conv *types.Conversation) error

	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)

	// AppendMessages inserts msgs in order within a single transaction,
	// assigning each a Seq one greater than the conversation's last message,
	// and bumps the conversation's UpdatedAt. Existing rows are never modified.
	AppendMessages(ctx context.Context, conversationID string, msgs ...*types.Message) error

	// ListMessages returns the most recent limit messages, oldest first.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*types.Message, error)
}

// RecordSource is the read side of the ingestion pipeline. Every List
// method returns records newest first, already normalized. An empty scope
// means every scope of the operator.
type RecordSource interface {
	// GetIdentity returns the operator's primary identity record.
	// Returns ErrNotFound if the operator is unknown.
	GetIdentity(ctx context.Context, operatorID string) (*types.OperatorIdentity, error)

	ListFeedback(ctx context.Context, operatorID, scope string, limit int) ([]types.InteractionRecord, error)
	ListPosts(ctx context.Context, operatorID, scope string, limit int) ([]types.InteractionRecord, error)
	ListQuestions(ctx context.Context, operatorID, scope string, limit int) ([]types.InteractionRecord, error)
}

// RecordWriter loads raw records into the record tables. The ingestion
// pipeline owns these tables in production; the import command and tests
// write through this interface.
type RecordWriter interface {
	PutIdentity(ctx context.Context, identity *types.OperatorIdentity) error
	PutRecords(ctx context.Context, operatorID, scope string, records []types.RawRecord) (int, error)
}

// OperatorScope identifies one profile key.
type OperatorScope struct {
	OperatorID string `json:"operator_id"`
	Scope      string `json:"scope"`
}

// ActivityLister reports which profile keys had conversation activity
// recently. The background refresher uses it.
type ActivityLister interface {
	ListActiveOperators(ctx context.Context, since time.Time) ([]OperatorScope, error)
}

// DataPurger removes everything stored for an operator.
type DataPurger interface {
	DeleteOperatorData(ctx context.Context, operatorID string) error
}

// Store is the full persistence surface implemented by the SQL backends.
type Store interface {
	ProfileRepository
	MemoryRepository
	ConversationRepository
	RecordSource
	RecordWriter
	ActivityLister
	DataPurger

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
