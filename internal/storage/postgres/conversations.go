package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// CreateConversation inserts a new conversation row.
func (s *Store) CreateConversation(ctx context.Context, c *types.Conversation) error {
	if c == nil || c.ID == "" || c.OperatorID == "" {
		return fmt.Errorf("%w: conversation ID and operator ID are required", storage.ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, operator_id, scope, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.OperatorID, c.Scope, c.Title, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: failed to create conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	var c types.Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, operator_id, scope, title, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.OperatorID, &c.Scope, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get conversation: %w", err)
	}
	return &c, nil
}

// AppendMessages inserts msgs after the conversation's last message in one
// transaction. The conversation row is locked so concurrent appends to the
// same conversation serialise on seq assignment.
func (s *Store) AppendMessages(ctx context.Context, conversationID string, msgs ...*types.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	err = tx.QueryRowContext(ctx, "SELECT id FROM conversations WHERE id = $1 FOR UPDATE", conversationID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to lock conversation: %w", err)
	}

	var last int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = $1", conversationID,
	).Scan(&last); err != nil {
		return fmt.Errorf("postgres: failed to read last seq: %w", err)
	}

	var newest time.Time
	for _, m := range msgs {
		if m == nil || m.ID == "" || m.Content == "" {
			return fmt.Errorf("%w: message ID and content are required", storage.ErrInvalidInput)
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now().UTC()
		}
		if m.Status == "" {
			m.Status = types.MessageOK
		}
		last++

		var actions sql.NullString
		if len(m.SuggestedActions) > 0 {
			data, err := json.Marshal(m.SuggestedActions)
			if err != nil {
				return fmt.Errorf("postgres: failed to encode suggested actions: %w", err)
			}
			actions = sql.NullString{String: string(data), Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (
				id, conversation_id, seq, role, content, created_at,
				model_used, tokens_used, confidence, suggested_actions,
				status, retryable, error
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, m.ID, conversationID, last, string(m.Role), m.Content, m.CreatedAt.UTC(),
			m.ModelUsed, m.TokensUsed, m.Confidence, actions,
			string(m.Status), m.Retryable, m.Error)
		if err != nil {
			return fmt.Errorf("postgres: failed to append message: %w", err)
		}

		m.ConversationID = conversationID
		m.Seq = last
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = $1 WHERE id = $2", newest.UTC(), conversationID,
	); err != nil {
		return fmt.Errorf("postgres: failed to touch conversation: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns the latest limit messages in ascending seq order.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]*types.Message, error) {
	limit = storage.NormalizeLimit(limit, storage.DefaultHistoryLimit, storage.MaxListLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq, role, content, created_at,
			model_used, tokens_used, confidence, suggested_actions,
			status, retryable, error
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) AS recent
		ORDER BY seq ASC
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list messages: %w", err)
	}
	defer rows.Close()

	out := make([]*types.Message, 0, limit)
	for rows.Next() {
		var m types.Message
		var role, status string
		var actions []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &role, &m.Content, &m.CreatedAt,
			&m.ModelUsed, &m.TokensUsed, &m.Confidence, &actions,
			&status, &m.Retryable, &m.Error); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan message: %w", err)
		}
		m.Role = types.Role(role)
		m.Status = types.MessageStatus(status)
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &m.SuggestedActions); err != nil {
				return nil, fmt.Errorf("postgres: failed to decode suggested actions: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ListActiveOperators returns the (operator, scope) keys of conversations
// updated at or after since.
func (s *Store) ListActiveOperators(ctx context.Context, since time.Time) ([]storage.OperatorScope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT operator_id, scope FROM conversations
		WHERE updated_at >= $1
		ORDER BY operator_id, scope
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list active operators: %w", err)
	}
	defer rows.Close()

	var out []storage.OperatorScope
	for rows.Next() {
		var os storage.OperatorScope
		if err := rows.Scan(&os.OperatorID, &os.Scope); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan operator: %w", err)
		}
		out = append(out, os)
	}
	return out, rows.Err()
}
