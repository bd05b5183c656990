// Package memory stores short, ranked notes about an operator. Notes are
// append-only; a correction is a new note that references the one it
// supersedes.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

const (
	// DefaultK is used when TopK is called with k <= 0.
	DefaultK = 10
	// MaxK caps TopK.
	MaxK = 100

	correctionBoost  = 10
	supersedesPrefix = "supersedes:"
)

// Store ranks memories by importance, then recency.
type Store struct {
	repo   storage.MemoryRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewStore wraps a memory repository.
func NewStore(repo storage.MemoryRepository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, logger: logger, now: time.Now}
}

// Append records a new memory. Importance is clamped to 0..100; unknown
// kinds default to fact.
func (s *Store) Append(ctx context.Context, operatorID string, kind types.MemoryKind, content string, importance int, memCtx string) (*types.MemoryRecord, error) {
	content = strings.TrimSpace(content)
	if operatorID == "" || content == "" {
		return nil, fmt.Errorf("%w: operator ID and content are required", storage.ErrInvalidInput)
	}
	if !types.IsValidMemoryKind(kind) {
		kind = types.MemoryFact
	}

	m := &types.MemoryRecord{
		ID:              uuid.NewString(),
		OperatorID:      operatorID,
		Kind:            kind,
		Content:         content,
		ImportanceScore: types.ClampInt(importance, 0, 100),
		Context:         memCtx,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.AppendMemory(ctx, m); err != nil {
		return nil, fmt.Errorf("append memory: %w", err)
	}

	s.logger.Debug("memory appended",
		zap.String("operator", operatorID),
		zap.String("kind", string(kind)),
		zap.Int("importance", m.ImportanceScore))
	return m, nil
}

// TopK returns at most k memories ordered by importance descending, then
// creation time descending.
func (s *Store) TopK(ctx context.Context, operatorID string, k int) ([]*types.MemoryRecord, error) {
	if k <= 0 {
		k = DefaultK
	}
	if k > MaxK {
		k = MaxK
	}
	mems, err := s.repo.ListMemories(ctx, operatorID, k)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	if len(mems) > k {
		mems = mems[:k]
	}
	return mems, nil
}

// Correct appends a correction of previous. The new note ranks above the
// old one (importance +10, capped at 100) and its Context names the
// superseded ID.
func (s *Store) Correct(ctx context.Context, previous *types.MemoryRecord, content string) (*types.MemoryRecord, error) {
	if previous == nil || previous.ID == "" {
		return nil, fmt.Errorf("%w: previous memory is required", storage.ErrInvalidInput)
	}
	return s.Append(ctx, previous.OperatorID, types.MemoryCorrection, content,
		min(previous.ImportanceScore+correctionBoost, 100), supersedesPrefix+previous.ID)
}

// Supersedes returns the ID a correction replaces, or "" for other notes.
func Supersedes(m *types.MemoryRecord) string {
	if m == nil || !strings.HasPrefix(m.Context, supersedesPrefix) {
		return ""
	}
	return strings.TrimPrefix(m.Context, supersedesPrefix)
}
