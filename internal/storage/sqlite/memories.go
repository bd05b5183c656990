package sqlite

import (
	"context"
	"fmt"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// AppendMemory inserts a memory record. The caller assigns ID and CreatedAt.
func (s *Store) AppendMemory(ctx context.Context, m *types.MemoryRecord) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if m.ID == "" || m.OperatorID == "" {
		return fmt.Errorf("%w: memory ID and operator ID are required", storage.ErrInvalidInput)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	if m.ImportanceScore < 0 || m.ImportanceScore > 100 {
		return fmt.Errorf("%w: importance %d out of range", storage.ErrInvalidInput, m.ImportanceScore)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, operator_id, kind, content, importance, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.OperatorID, string(m.Kind), m.Content, m.ImportanceScore, m.Context, m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append memory: %w", err)
	}
	return nil
}

// ListMemories returns the operator's highest-ranked memories. Ties on
// importance go to the most recent; insertion order breaks exact
// timestamp ties.
func (s *Store) ListMemories(ctx context.Context, operatorID string, limit int) ([]*types.MemoryRecord, error) {
	limit = storage.NormalizeLimit(limit, 10, storage.MaxListLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operator_id, kind, content, importance, context, created_at
		FROM memories
		WHERE operator_id = ?
		ORDER BY importance DESC, created_at DESC, seq DESC
		LIMIT ?
	`, operatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	out := make([]*types.MemoryRecord, 0, limit)
	for rows.Next() {
		var m types.MemoryRecord
		var kind string
		if err := rows.Scan(&m.ID, &m.OperatorID, &kind, &m.Content, &m.ImportanceScore, &m.Context, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.Kind = types.MemoryKind(kind)
		out = append(out, &m)
	}
	return out, rows.Err()
}
