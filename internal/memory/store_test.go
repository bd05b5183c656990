package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/memory"
	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/internal/storage/sqlite"
	"github.com/scrypster/bizdna/pkg/types"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	db, err := sqlite.NewStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return memory.NewStore(db, nil)
}

func TestAppend_ClampsImportanceAndAssignsID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	hi, err := s.Append(ctx, "op-1", types.MemoryPreference, "prefers formal replies", 250, "")
	require.NoError(t, err)
	assert.Equal(t, 100, hi.ImportanceScore)
	assert.NotEmpty(t, hi.ID)
	assert.False(t, hi.CreatedAt.IsZero())

	lo, err := s.Append(ctx, "op-1", types.MemoryFact, "closed mondays", -5, "")
	require.NoError(t, err)
	assert.Equal(t, 0, lo.ImportanceScore)
	assert.NotEqual(t, hi.ID, lo.ID)

	odd, err := s.Append(ctx, "op-1", "rumour", "new chef", 10, "")
	require.NoError(t, err)
	assert.Equal(t, types.MemoryFact, odd.Kind)
}

func TestAppend_Validation(t *testing.T) {
	s := newStore(t)
	_, err := s.Append(context.Background(), "op-1", types.MemoryFact, "   ", 10, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
	_, err = s.Append(context.Background(), "", types.MemoryFact, "x", 10, "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestTopK_OrderingAndBounds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		_, err := s.Append(ctx, "op-1", types.MemoryFact, fmt.Sprintf("note %d", i), (i%3)*30, "")
		require.NoError(t, err)
	}

	top, err := s.TopK(ctx, "op-1", 5)
	require.NoError(t, err)
	require.Len(t, top, 5)
	for i := 1; i < len(top); i++ {
		prev, cur := top[i-1], top[i]
		require.GreaterOrEqual(t, prev.ImportanceScore, cur.ImportanceScore)
		if prev.ImportanceScore == cur.ImportanceScore {
			assert.False(t, prev.CreatedAt.Before(cur.CreatedAt), "ties broken by recency")
		}
	}
	assert.Equal(t, "note 14", top[0].Content, "newest of the highest importance first")

	def, err := s.TopK(ctx, "op-1", 0)
	require.NoError(t, err)
	assert.Len(t, def, memory.DefaultK)

	all, err := s.TopK(ctx, "op-1", 1000)
	require.NoError(t, err)
	assert.Len(t, all, 15)

	none, err := s.TopK(ctx, "op-2", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCorrect_RanksAboveOriginal(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	orig, err := s.Append(ctx, "op-1", types.MemoryFact, "opens at 8", 60, "")
	require.NoError(t, err)
	_, err = s.Append(ctx, "op-1", types.MemoryFact, "has parking", 65, "")
	require.NoError(t, err)

	fix, err := s.Correct(ctx, orig, "opens at 9")
	require.NoError(t, err)
	assert.Equal(t, types.MemoryCorrection, fix.Kind)
	assert.Equal(t, 70, fix.ImportanceScore)
	assert.Equal(t, orig.ID, memory.Supersedes(fix))
	assert.Empty(t, memory.Supersedes(orig))

	top, err := s.TopK(ctx, "op-1", 1)
	require.NoError(t, err)
	assert.Equal(t, fix.ID, top[0].ID)

	capped, err := s.Correct(ctx, &types.MemoryRecord{ID: "x", OperatorID: "op-1", ImportanceScore: 95}, "again")
	require.NoError(t, err)
	assert.Equal(t, 100, capped.ImportanceScore)

	_, err = s.Correct(ctx, nil, "nope")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
