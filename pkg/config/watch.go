package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads file-backed layers when they change on disk and
// notifies subscribers after each successful refresh.
type Watcher struct {
	settings *Settings
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	onChange func()
}

// NewWatcher watches the YAML layer files behind settings. onChange
// may be nil; when set it runs after every successful refresh.
func NewWatcher(settings *Settings, logger *slog.Logger, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &ConfigError{Message: "cannot create file watcher", Err: err}
	}

	w := &Watcher{settings: settings, watcher: fw, logger: logger, onChange: onChange}
	for _, src := range settings.Sources() {
		if src.Path == "" {
			continue
		}
		// Watch the directory so we catch editors that replace the
		// file instead of writing it in place.
		dir := filepath.Dir(src.Path)
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("cannot watch config directory", "dir", dir, "error", err)
		}
	}
	return w, nil
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.handleChange(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) handleChange(path string) {
	for _, src := range w.settings.Sources() {
		if src.Path == "" || filepath.Clean(src.Path) != filepath.Clean(path) {
			continue
		}
		fresh, err := readLayerFile(src.Path)
		if err != nil {
			w.logger.Warn("config file changed but failed to parse; keeping previous layer",
				"path", src.Path, "error", err)
			return
		}
		// Refresh the layer mapping in place so the DCM picks it up
		// on Reload without reindexing layers.
		for k := range src.Data {
			delete(src.Data, k)
		}
		for k, v := range fresh {
			src.Data[k] = v
		}
		if err := w.settings.Refresh(); err != nil {
			w.logger.Warn("reloaded config failed validation; typed view unchanged",
				"path", src.Path, "error", err)
			return
		}
		w.logger.Info("configuration reloaded", "path", src.Path, "layer", string(src.Name))
		if w.onChange != nil {
			w.onChange()
		}
		return
	}
}
