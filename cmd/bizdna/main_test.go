package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/backup"
	"github.com/scrypster/bizdna/pkg/types"
)

// isolate points the CLI at a fresh data directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BIZDNA_CONFIG", "")
	t.Setenv("BIZDNA_STORAGE_ENGINE", "sqlite")
	t.Setenv("BIZDNA_DATA_PATH", dir)
	t.Setenv("BIZDNA_LOG_LEVEL", "error")
	t.Setenv("BIZDNA_OPENAI_API_KEY", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeImport(t *testing.T) string {
	t.Helper()
	doc := importFile{
		Identity: types.OperatorIdentity{OperatorID: "op-1", Name: "Café Luna", Category: "cafe"},
		Records: []types.RawRecord{
			{Kind: types.RecordFeedback, ID: "f1", Rating: "FIVE", Body: "lovely flat white", Response: "thank you!", CreatedAt: "2026-09-01T10:00:00Z"},
			{Kind: types.RecordFeedback, ID: "f2", Rating: 3, Body: "a bit slow on weekends", CreatedAt: "2026-09-05T18:30:00Z"},
			{Kind: types.RecordPost, ID: "p1", Body: "new pastries every Friday", PublishedAt: "2026-09-03T08:00:00Z"},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "luna.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestImportAndRefresh(t *testing.T) {
	isolate(t)

	out, err := run(t, "import", writeImport(t))
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 of 3 records for op-1")

	out, err = run(t, "refresh", "--operator", "op-1")
	require.NoError(t, err)
	var p types.BehavioralProfile
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "Café Luna", p.Name)
	assert.Equal(t, 2, p.FeedbackCount)
	assert.Equal(t, 1, p.PostCount)
	assert.InDelta(t, 4.0, p.AverageRating, 0.001)
}

func TestImport_Validation(t *testing.T) {
	isolate(t)

	_, err := run(t, "import", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"identity":{}}`), 0o600))
	_, err = run(t, "import", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator_id")
}

func TestRefresh_UnknownOperator(t *testing.T) {
	isolate(t)
	_, err := run(t, "refresh", "--operator", "ghost")
	assert.Error(t, err)

	_, err = run(t, "refresh")
	assert.Error(t, err, "--operator is required")
}

func TestSend_ConfigurationFailure(t *testing.T) {
	isolate(t)
	_, err := run(t, "send", "--operator", "op-1", "how were last week's reviews?")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "conversation "), err.Error())
}

func TestPurge(t *testing.T) {
	isolate(t)
	_, err := run(t, "import", writeImport(t))
	require.NoError(t, err)

	_, err = run(t, "purge", "--operator", "op-1")
	assert.Error(t, err, "purge requires --yes")

	out, err := run(t, "purge", "--operator", "op-1", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "purged op-1")
}

func TestBackupListRestore(t *testing.T) {
	data := isolate(t)
	_, err := run(t, "import", writeImport(t))
	require.NoError(t, err)

	out, err := run(t, "backup", "--keep", "2")
	require.NoError(t, err)
	var res backup.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Verified)
	assert.Equal(t, filepath.Join(data, "backups"), filepath.Dir(res.Path))

	out, err = run(t, "backup", "list")
	require.NoError(t, err)
	var snaps []backup.Info
	require.NoError(t, json.Unmarshal([]byte(out), &snaps))
	require.Len(t, snaps, 1)

	out, err = run(t, "backup", "restore", res.Path)
	require.NoError(t, err)
	assert.Contains(t, out, "restored")

	out, err = run(t, "refresh", "--operator", "op-1")
	require.NoError(t, err, "restored store is readable")
	assert.Contains(t, out, "Café Luna")
}

func TestBackup_RejectsPostgres(t *testing.T) {
	isolate(t)
	t.Setenv("BIZDNA_STORAGE_ENGINE", "postgres")
	t.Setenv("BIZDNA_POSTGRES_DSN", "postgres://localhost/bizdna")
	_, err := run(t, "backup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestMCP_ServesOverStdio(t *testing.T) {
	isolate(t)
	_, err := run(t, "import", writeImport(t))
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetIn(strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_profile","arguments":{"operator_id":"op-1"}}}`,
	}, "\n")))
	cmd.SetArgs([]string{"mcp"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"serverInfo"`)
	assert.Contains(t, lines[1], `Café Luna`)
}
