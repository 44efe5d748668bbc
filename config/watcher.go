package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadFunc is invoked with the freshly loaded configuration whenever
// the watched file changes. Load errors are reported through err with a
// nil config; the previous configuration stays in effect.
type ReloadFunc func(cfg *Config, err error)

// Watcher polls a configuration file and reloads it on modification.
// Polling keeps the watcher portable; config files change rarely enough
// that filesystem events buy nothing here.
type Watcher struct {
	mu sync.Mutex

	loader       *Loader
	pollInterval time.Duration
	logger       *zap.Logger

	running  bool
	stopChan chan struct{}
	lastMod  time.Time

	callbacks []ReloadFunc
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the file is checked for changes.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher creates a watcher for the loader's configuration file.
func NewWatcher(loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.configPath == "" {
		return nil, fmt.Errorf("watcher requires a loader with a config path")
	}

	w := &Watcher{
		loader:       loader,
		pollInterval: time.Second,
		logger:       zap.NewNop(),
		stopChan:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if info, err := os.Stat(loader.configPath); err == nil {
		w.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	} else {
		w.logger.Warn("config file does not exist, watching for creation",
			zap.String("path", loader.configPath))
	}

	return w, nil
}

// OnReload registers a callback invoked after each reload attempt.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins polling. It returns an error if already running.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	go w.pollLoop(ctx)

	w.logger.Info("config watcher started",
		zap.String("path", w.loader.configPath),
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop stops the watcher. Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopChan)
	w.running = false
	w.logger.Info("config watcher stopped")
}

// IsRunning reports whether the watcher is polling.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkFile()
		}
	}
}

func (w *Watcher) checkFile() {
	info, err := os.Stat(w.loader.configPath)
	if err != nil {
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.lastMod)
	if changed {
		w.lastMod = info.ModTime()
	}
	callbacks := make([]ReloadFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if !changed {
		return
	}

	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous configuration",
			zap.String("path", w.loader.configPath),
			zap.Error(err))
		cfg = nil
	} else {
		w.logger.Info("configuration reloaded",
			zap.String("path", w.loader.configPath))
	}

	for _, fn := range callbacks {
		fn(cfg, err)
	}
}
