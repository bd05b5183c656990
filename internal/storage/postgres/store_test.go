package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/internal/storage/postgres"
	"github.com/scrypster/bizdna/internal/storage/storagetest"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database and empties every table so
// each subtest starts clean.
func newTestStore(t *testing.T) storage.Store {
	t.Helper()

	store, err := postgres.NewStore(postgresTestDSN(t), nil)
	require.NoError(t, err, "NewStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSuite(t *testing.T) {
	storagetest.Run(t, newTestStore)
}

func TestNewStore_BadDSN(t *testing.T) {
	_, err := postgres.NewStore("postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1", nil)
	require.Error(t, err)
}
