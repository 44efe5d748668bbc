package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reloadRecorder captures reload callbacks for assertions.
type reloadRecorder struct {
	mu      sync.Mutex
	configs []*Config
	errs    []error
}

func (r *reloadRecorder) record(cfg *Config, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
	r.errs = append(r.errs, err)
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.configs)
}

func (r *reloadRecorder) last() (*Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.configs) == 0 {
		return nil, nil
	}
	return r.configs[len(r.configs)-1], r.errs[len(r.errs)-1]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func touchConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	// Push the mtime forward so coarse filesystem clocks still register
	// the change.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestNewWatcher_RequiresConfigPath(t *testing.T) {
	_, err := NewWatcher(nil)
	assert.Error(t, err)

	_, err = NewWatcher(NewLoader())
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := writeConfigFile(t, "log:\n  level: info\n")
	loader := NewLoader().WithConfigPath(path)

	watcher, err := NewWatcher(loader, WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	recorder := &reloadRecorder{}
	watcher.OnReload(recorder.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	touchConfig(t, path, "log:\n  level: debug\n")

	waitFor(t, 3*time.Second, func() bool { return recorder.count() > 0 })
	cfg, reloadErr := recorder.last()
	require.NoError(t, reloadErr)
	require.NotNil(t, cfg)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestWatcher_KeepsPreviousConfigOnReloadError(t *testing.T) {
	path := writeConfigFile(t, "log:\n  level: info\n")
	loader := NewLoader().WithConfigPath(path)

	watcher, err := NewWatcher(loader, WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	recorder := &reloadRecorder{}
	watcher.OnReload(recorder.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	touchConfig(t, path, "log:\n  level: [unclosed")

	waitFor(t, 3*time.Second, func() bool { return recorder.count() > 0 })
	cfg, reloadErr := recorder.last()
	assert.Error(t, reloadErr)
	assert.Nil(t, cfg, "callback reports the failure without a config")
}

func TestWatcher_StartTwiceFails(t *testing.T) {
	path := writeConfigFile(t, "log:\n  level: info\n")
	watcher, err := NewWatcher(NewLoader().WithConfigPath(path))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	assert.Error(t, watcher.Start(ctx))
	assert.True(t, watcher.IsRunning())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeConfigFile(t, "log:\n  level: info\n")
	watcher, err := NewWatcher(NewLoader().WithConfigPath(path))
	require.NoError(t, err)

	require.NoError(t, watcher.Start(context.Background()))
	watcher.Stop()
	watcher.Stop()
	assert.False(t, watcher.IsRunning())
}

func TestWatcher_WatchesForFileCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	loader := NewLoader().WithConfigPath(path)

	watcher, err := NewWatcher(loader, WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	recorder := &reloadRecorder{}
	watcher.OnReload(recorder.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	touchConfig(t, path, "log:\n  level: warn\n")

	waitFor(t, 3*time.Second, func() bool { return recorder.count() > 0 })
	cfg, reloadErr := recorder.last()
	require.NoError(t, reloadErr)
	assert.Equal(t, "warn", cfg.Log.Level)
}
