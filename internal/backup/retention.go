package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// List returns the snapshots in dir, newest first.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() || !isSnapshot(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{
			Path:      filepath.Join(dir, e.Name()),
			CreatedAt: fi.ModTime(),
			Size:      fi.Size(),
		})
	}

	// Names embed the UTC timestamp, so they order the same as creation
	// time even when mtimes collide.
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out, nil
}

// Prune deletes all but the newest keep snapshots in dir and returns the
// removed paths.
func Prune(dir string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	snaps, err := List(dir)
	if err != nil {
		return nil, err
	}
	if len(snaps) <= keep {
		return nil, nil
	}

	var removed []string
	for _, s := range snaps[keep:] {
		if err := os.Remove(s.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", s.Path, err)
		}
		removed = append(removed, s.Path)
	}
	return removed, nil
}

// DiskUsage sums the size of every snapshot in dir.
func DiskUsage(dir string) (int64, error) {
	snaps, err := List(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range snaps {
		total += s.Size
	}
	return total, nil
}
