package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// GetProfile returns the cached profile for (operatorID, scope).
func (s *Store) GetProfile(ctx context.Context, operatorID, scope string) (*types.BehavioralProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM profiles WHERE operator_id = ? AND scope = ?",
		operatorID, scope,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var p types.BehavioralProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile replaces the profile row keyed by (OperatorID, Scope).
func (s *Store) UpsertProfile(ctx context.Context, p *types.BehavioralProfile) error {
	if p == nil || p.OperatorID == "" {
		return fmt.Errorf("%w: profile operator ID is required", storage.ErrInvalidInput)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (operator_id, scope, data, last_computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(operator_id, scope) DO UPDATE SET
			data = excluded.data,
			last_computed_at = excluded.last_computed_at
	`, p.OperatorID, p.Scope, string(data), p.LastComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
