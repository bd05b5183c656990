package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/backup"
	"github.com/scrypster/bizdna/internal/storage/sqlite"
	"github.com/scrypster/bizdna/pkg/types"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bizdna.db")
	store, err := sqlite.NewStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.PutIdentity(context.Background(), &types.OperatorIdentity{OperatorID: "op-1", Name: "Café Luna"}))
	require.NoError(t, store.Close())
	return path
}

func clock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

func TestSnapshotAndRestore(t *testing.T) {
	ctx := context.Background()
	dbPath := seedDB(t)
	dir := filepath.Join(t.TempDir(), "backups")

	res, err := backup.Snapshot(ctx, dbPath, dir, backup.Options{})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Positive(t, res.Size)
	assert.FileExists(t, res.Path)

	target := filepath.Join(t.TempDir(), "restored.db")
	require.NoError(t, backup.Restore(ctx, res.Path, target))

	store, err := sqlite.NewStore(target, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	id, err := store.GetIdentity(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "Café Luna", id.Name)
}

func TestSnapshot_MissingDatabase(t *testing.T) {
	_, err := backup.Snapshot(context.Background(), filepath.Join(t.TempDir(), "nope.db"), t.TempDir(), backup.Options{})
	assert.Error(t, err)
}

func TestSnapshot_PrunesOldest(t *testing.T) {
	ctx := context.Background()
	dbPath := seedDB(t)
	dir := t.TempDir()
	now := clock(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))

	var paths []string
	for i := 0; i < 4; i++ {
		res, err := backup.Snapshot(ctx, dbPath, dir, backup.Options{Keep: 2, SkipVerify: true, Now: now})
		require.NoError(t, err)
		paths = append(paths, res.Path)
	}

	snaps, err := backup.List(dir)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, paths[3], snaps[0].Path, "newest first")
	assert.Equal(t, paths[2], snaps[1].Path)
	assert.NoFileExists(t, paths[0])
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.db"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bizdna-20261001-120000.000000.db"), []byte("abc"), 0o600))

	snaps, err := backup.List(dir)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	usage, err := backup.DiskUsage(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), usage)

	_, err = backup.List(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestPrune_RejectsZeroKeep(t *testing.T) {
	_, err := backup.Prune(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestVerify_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bizdna-garbage.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite, padded to look like a page......"), 0o600))
	assert.Error(t, backup.Verify(context.Background(), path))
	assert.Error(t, backup.Restore(context.Background(), path, filepath.Join(t.TempDir(), "x.db")))
}
