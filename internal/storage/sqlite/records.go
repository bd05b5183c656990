package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// GetIdentity returns the operator's identity record.
func (s *Store) GetIdentity(ctx context.Context, operatorID string) (*types.OperatorIdentity, error) {
	var id types.OperatorIdentity
	err := s.db.QueryRowContext(ctx,
		"SELECT operator_id, name, category FROM operators WHERE operator_id = ?", operatorID,
	).Scan(&id.OperatorID, &id.Name, &id.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &id, nil
}

// PutIdentity inserts or replaces an operator identity.
func (s *Store) PutIdentity(ctx context.Context, id *types.OperatorIdentity) error {
	if id == nil || id.OperatorID == "" || strings.TrimSpace(id.Name) == "" {
		return fmt.Errorf("%w: operator ID and name are required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (operator_id, name, category, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(operator_id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category
	`, id.OperatorID, id.Name, id.Category, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to put identity: %w", err)
	}
	return nil
}

// PutRecords stores raw records as received. Records that fail normalization
// are skipped; the returned error joins every rejection and the count is the
// number of rows written.
func (s *Store) PutRecords(ctx context.Context, operatorID, scope string, records []types.RawRecord) (int, error) {
	if operatorID == "" {
		return 0, fmt.Errorf("%w: operator ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO interaction_records (
			operator_id, scope, kind, id, rating, body, response,
			published_at, created_at, sort_ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(operator_id, kind, id) DO UPDATE SET
			scope = excluded.scope,
			rating = excluded.rating,
			body = excluded.body,
			response = excluded.response,
			published_at = excluded.published_at,
			created_at = excluded.created_at,
			sort_ts = excluded.sort_ts
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	var rejected []error
	written := 0
	for _, raw := range records {
		rec, err := types.NormalizeRecord(raw)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			operatorID, scope, string(raw.Kind), raw.ID, storage.RatingText(raw.Rating),
			raw.Body, raw.Response, raw.PublishedAt, raw.CreatedAt, storage.SortKey(rec),
		); err != nil {
			return 0, fmt.Errorf("failed to store record %s: %w", raw.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit records: %w", err)
	}
	return written, errors.Join(rejected...)
}

// ListFeedback returns the operator's feedback records, newest first.
func (s *Store) ListFeedback(ctx context.Context, operatorID, scope string, limit int) ([]types.InteractionRecord, error) {
	return s.listRecords(ctx, types.RecordFeedback, operatorID, scope, limit)
}

// ListPosts returns the operator's posts, newest first.
func (s *Store) ListPosts(ctx context.Context, operatorID, scope string, limit int) ([]types.InteractionRecord, error) {
	return s.listRecords(ctx, types.RecordPost, operatorID, scope, limit)
}

// ListQuestions returns the operator's questions, newest first.
func (s *Store) ListQuestions(ctx context.Context, operatorID, scope string, limit int) ([]types.InteractionRecord, error) {
	return s.listRecords(ctx, types.RecordQuestion, operatorID, scope, limit)
}

func (s *Store) listRecords(ctx context.Context, kind types.RecordKind, operatorID, scope string, limit int) ([]types.InteractionRecord, error) {
	limit = storage.NormalizeLimit(limit, storage.MaxListLimit, storage.MaxListLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rating, body, response, published_at, created_at
		FROM interaction_records
		WHERE operator_id = ? AND kind = ? AND (? = '' OR scope = ?)
		ORDER BY sort_ts DESC, id DESC
		LIMIT ?
	`, operatorID, string(kind), scope, scope, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	defer rows.Close()

	out := make([]types.InteractionRecord, 0)
	for rows.Next() {
		raw := types.RawRecord{Kind: kind}
		var rating sql.NullString
		if err := rows.Scan(&raw.ID, &rating, &raw.Body, &raw.Response, &raw.PublishedAt, &raw.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if rating.Valid {
			raw.Rating = rating.String
		}
		rec, err := types.NormalizeRecord(raw)
		if err != nil {
			s.logger.Warn("sqlite: skipping invalid record",
				zap.String("operator", operatorID),
				zap.String("kind", string(kind)),
				zap.String("id", raw.ID),
				zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
