package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spkeasy-social/spkeasy/internal/logger"
)

// reloadDebounce collapses the burst of filesystem events most editors
// emit per save into a single reload.
const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk. Only
// settings that are safe to change at runtime are applied: the log level
// is updated directly, everything else goes through the apply hook.
//
// The parent directory is watched rather than the file itself because
// editors and deployment tools replace config files by rename, which
// would orphan a watch on the old inode.
type Watcher struct {
	path  string
	apply func(*Config)

	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	stopped chan struct{} // closed when the watch goroutine exits
}

// NewWatcher watches the configuration file at path. An empty path
// watches the default location. The apply hook, if non-nil, runs after
// every successful reload with the freshly loaded configuration.
func NewWatcher(path string, apply func(*Config)) (*Watcher, error) {
	if path == "" {
		path = GetDefaultConfigPath()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		path:    path,
		apply:   apply,
		fsw:     fsw,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
	logger.Info("Config watcher started", "path", w.path)
}

// Stop signals the watch goroutine to stop and waits for it to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		// Already stopped
		return
	default:
		close(w.stopCh)
	}
	<-w.stopped
	logger.Debug("Config watcher stopped")
}

func (w *Watcher) run() {
	defer close(w.stopped)
	defer w.fsw.Close()

	var reload <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reload = time.After(reloadDebounce)

		case <-reload:
			reload = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Config watcher error", logger.Err(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn("Config reload failed, keeping previous configuration",
			"path", w.path, logger.Err(err))
		return
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.Info("Configuration reloaded", "path", w.path, "log_level", cfg.Logging.Level)

	if w.apply != nil {
		w.apply(cfg)
	}
}
