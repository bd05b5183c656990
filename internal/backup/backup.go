// Package backup takes verified point-in-time copies of the SQLite store
// and prunes old copies.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// filePrefix and fileSuffix frame every snapshot file name so List can tell
// snapshots apart from anything else in the directory.
const (
	filePrefix = "bizdna-"
	fileSuffix = ".db"
)

// Info describes one snapshot on disk.
type Info struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Result is the outcome of Snapshot.
type Result struct {
	Info
	Duration time.Duration `json:"duration"`
	Verified bool          `json:"verified"`
	Pruned   []string      `json:"pruned,omitempty"`
}

// Options controls Snapshot.
type Options struct {
	// Keep is how many snapshots survive pruning, newest first. Zero keeps
	// everything.
	Keep int
	// SkipVerify disables the integrity check of the new snapshot.
	SkipVerify bool
	Logger     *zap.Logger
	Now        func() time.Time
}

// Snapshot copies the database at dbPath into dir with VACUUM INTO, which
// produces a consistent copy even while the store is open in WAL mode.
func Snapshot(ctx context.Context, dbPath, dir string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	start := now()
	dest := filepath.Join(dir, filePrefix+start.UTC().Format("20060102-150405.000000")+fileSuffix)
	if err := vacuumInto(ctx, dbPath, dest); err != nil {
		return nil, err
	}

	st, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}
	res := &Result{Info: Info{Path: dest, CreatedAt: start, Size: st.Size()}}

	if !opts.SkipVerify {
		if err := Verify(ctx, dest); err != nil {
			return res, fmt.Errorf("backup verification failed: %w", err)
		}
		res.Verified = true
	}
	res.Duration = now().Sub(start)

	if opts.Keep > 0 {
		pruned, err := Prune(dir, opts.Keep)
		if err != nil {
			// The snapshot itself succeeded.
			logger.Warn("backup retention failed", zap.Error(err))
		}
		res.Pruned = pruned
	}

	logger.Info("backup created",
		zap.String("path", dest),
		zap.Int64("size", res.Size),
		zap.Bool("verified", res.Verified),
		zap.Int("pruned", len(res.Pruned)))
	return res, nil
}

func vacuumInto(ctx context.Context, src, dest string) error {
	db, err := sql.Open("sqlite", "file:"+src+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open source database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping source database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// Verify runs SQLite's integrity check against the file at path.
func Verify(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Restore verifies the snapshot at src and copies it over target. The store
// at target must not be open.
func Restore(ctx context.Context, src, target string) error {
	if err := Verify(ctx, src); err != nil {
		return fmt.Errorf("backup verification failed: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmp := target + ".restore"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("copy backup: %w", err)
	}
	if err := errors.Join(out.Sync(), out.Close()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sync target: %w", err)
	}

	// Stale WAL files would be replayed over the restored pages.
	for _, ext := range []string{"-wal", "-shm"} {
		if err := os.Remove(target + ext); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", ext, err)
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace target: %w", err)
	}
	return Verify(ctx, target)
}

func isSnapshot(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}
