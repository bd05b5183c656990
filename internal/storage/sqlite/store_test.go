package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/internal/storage/storagetest"
	"github.com/scrypster/bizdna/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSuite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return newTestStore(t) })
}

func TestMessagesAreAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, &types.Conversation{ID: "c", OperatorID: "op"}))
	require.NoError(t, store.AppendMessages(ctx, "c", &types.Message{ID: "m", Role: types.RoleUser, Content: "hi"}))

	_, err := store.db.ExecContext(ctx, "UPDATE messages SET content = 'edited' WHERE id = 'm'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	msgs, err := store.ListMessages(ctx, "c", 10)
	require.NoError(t, err)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestMemoriesAreAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMemory(ctx, &types.MemoryRecord{
		ID: "m", OperatorID: "op", Kind: types.MemoryFact, Content: "closes at 9", ImportanceScore: 50, CreatedAt: time.Now(),
	}))

	_, err := store.db.ExecContext(ctx, "UPDATE memories SET importance = 99 WHERE id = 'm'")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestMessageRoleConstraint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, &types.Conversation{ID: "c", OperatorID: "op"}))
	err := store.AppendMessages(ctx, "c",
		&types.Message{ID: "ok", Role: types.RoleUser, Content: "hi"},
		&types.Message{ID: "bad", Role: "system", Content: "nope"},
	)
	require.Error(t, err)

	msgs, err := store.ListMessages(ctx, "c", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "a failed batch leaves no partial turn behind")
}

func TestFileStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bizdna.db")
	ctx := context.Background()

	store, err := NewStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.PutIdentity(ctx, &types.OperatorIdentity{OperatorID: "op", Name: "Cafe"}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	id, err := reopened.GetIdentity(ctx, "op")
	require.NoError(t, err)
	assert.Equal(t, "Cafe", id.Name)
	require.NoError(t, reopened.Ping(ctx))
}

func TestDBPathFromDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ""},
		{"", ""},
		{"/var/lib/bizdna.db", "/var/lib/bizdna.db"},
		{"file:/var/lib/bizdna.db?mode=rwc", "/var/lib/bizdna.db"},
		{"file::memory:?cache=shared", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dbPathFromDSN(tt.dsn), tt.dsn)
	}
}

func TestIsWALStale_NoFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.db")
	assert.False(t, isWALStale(path))

	require.NoError(t, os.WriteFile(path+"-wal", nil, 0o600))
	removeStaleWAL(path, zap.NewNop())
	assert.False(t, fileExists(path+"-wal"))
}
