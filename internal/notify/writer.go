package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/profile"
	"github.com/scrypster/bizdna/pkg/types"
)

const (
	eventDir    = "events"
	eventSuffix = ".event"
)

// Writer writes event files under {dataPath}/events. It implements
// profile.Listener so a profile service in a short-lived process can report
// builds to the server.
type Writer struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

var _ profile.Listener = (*Writer)(nil)

// NewWriter creates a writer for dataPath.
func NewWriter(dataPath string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{dir: filepath.Join(dataPath, eventDir), logger: logger, now: time.Now}
}

// Write stores e as a new event file. Safe for concurrent use.
func (w *Writer) Write(e Event) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}

	// Write under a temporary name and rename so the watcher never reads a
	// partial file.
	name := fmt.Sprintf("%d-%s", e.Time.UnixNano(), sanitize(e.Type))
	tmp, err := os.CreateTemp(w.dir, name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("notify: create event file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: write event file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: close event file: %w", err)
	}
	final := strings.TrimSuffix(tmp.Name(), ".tmp") + eventSuffix
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: publish event file: %w", err)
	}
	return nil
}

// ProfileBuilt implements profile.Listener.
func (w *Writer) ProfileBuilt(p *types.BehavioralProfile) {
	if err := w.Write(ProfileBuilt(p, w.now())); err != nil {
		w.logger.Warn("notify: profile event not written", zap.Error(err))
	}
}

// ProfileBuildFailed implements profile.Listener.
func (w *Writer) ProfileBuildFailed(operatorID, scope string, err error) {
	if werr := w.Write(ProfileFailed(operatorID, scope, err, w.now())); werr != nil {
		w.logger.Warn("notify: profile event not written", zap.Error(werr))
	}
}

// sanitize replaces characters unsafe for filenames.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?':
			return '_'
		}
		return r
	}, s)
}
