package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// PutRecords stores raw records as received. Records that fail normalization
// are skipped and reported in the joined error.
func (s *Store) PutRecords(ctx context.Context, operatorID, scope string, records []types.RawRecord) (int, error) {
	if operatorID == "" {
		return 0, fmt.Errorf("%w: operator ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO interaction_records (
			operator_id, scope, kind, id, rating, body, response,
			published_at, created_at, sort_ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (operator_id, kind, id) DO UPDATE SET
			scope = EXCLUDED.scope,
			rating = EXCLUDED.rating,
			body = EXCLUDED.body,
			response = EXCLUDED.response,
			published_at = EXCLUDED.published_at,
			created_at = EXCLUDED.created_at,
			sort_ts = EXCLUDED.sort_ts
	`)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to prepare record insert: %w", err)
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
			return 0, fmt.Errorf("postgres: failed to store record %s: %w", raw.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: failed to commit records: %w", err)
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
		WHERE operator_id = $1 AND kind = $2 AND ($3 = '' OR scope = $3)
		ORDER BY sort_ts DESC, id DESC
		LIMIT $4
	`, operatorID, string(kind), scope, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list %s records: %w", kind, err)
	}
	defer rows.Close()

	out := make([]types.InteractionRecord, 0)
	for rows.Next() {
		raw := types.RawRecord{Kind: kind}
		var rating sql.NullString
		if err := rows.Scan(&raw.ID, &rating, &raw.Body, &raw.Response, &raw.PublishedAt, &raw.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan record: %w", err)
		}
		if rating.Valid {
			raw.Rating = rating.String
		}
		rec, err := types.NormalizeRecord(raw)
		if err != nil {
			s.logger.Warn("postgres: skipping invalid record",
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
