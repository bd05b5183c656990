package notify

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher consumes event files written by other processes.
type Watcher struct {
	dir      string
	callback func(Event)
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher for {dataPath}/events. callback runs on the
// watcher goroutine, once per event file.
func NewWatcher(dataPath string, callback func(Event), logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      filepath.Join(dataPath, eventDir),
		callback: callback,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Event files left by earlier runs are consumed
// first. Call Stop to release the watcher.
func (w *Watcher) Start() error {
	if w.watcher != nil {
		return errors.New("notify: watcher already started")
	}
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	w.drainExisting()
	go w.loop()
	w.logger.Debug("notify: watching for events", zap.String("dir", w.dir))
	return nil
}

// Stop shuts down the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	_ = w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Writers publish with a rename, which surfaces as Create.
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && strings.HasSuffix(evt.Name, eventSuffix) {
				w.processFile(evt.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("notify: watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) drainExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), eventSuffix) {
			w.processFile(filepath.Join(w.dir, e.Name()))
		}
	}
}

func (w *Watcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed already
	}
	_ = os.Remove(path)

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		w.logger.Warn("notify: invalid event file", zap.String("file", filepath.Base(path)), zap.Error(err))
		return
	}
	if e.Type != "" && w.callback != nil {
		w.callback(e)
	}
}
