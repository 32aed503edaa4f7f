package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxhollow/sibyl/internal/config"
)

func writeConfig(t *testing.T, path, text string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

// changeRecorder collects onChange invocations.
type changeRecorder struct {
	mu    sync.Mutex
	calls []*config.Config
}

func (r *changeRecorder) onChange(_, new *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, new)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *changeRecorder) last() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sibyl.yaml")
	writeConfig(t, path, minimalYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.VoiceListen; got != ":10400" {
		t.Errorf("initial config voice_listen = %q", got)
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sibyl.yaml")
	writeConfig(t, path, "logging:\n  level: loud\n")

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("watcher accepted an invalid initial config")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sibyl.yaml")
	writeConfig(t, path, minimalYAML)

	rec := &changeRecorder{}
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, minimalYAML+"logging:\n  level: debug\n")
	waitFor(t, func() bool { return rec.count() >= 1 }, "reload callback")

	if got := rec.last().Logging.Level; got != config.LogDebug {
		t.Errorf("reloaded level = %v, want debug", got)
	}
	if got := w.Current().Logging.Level; got != config.LogDebug {
		t.Errorf("Current() level = %v, want debug", got)
	}
}

func TestWatcher_InvalidEditKeepsPrevious(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sibyl.yaml")
	writeConfig(t, path, minimalYAML)

	rec := &changeRecorder{}
	w, err := config.NewWatcher(path, rec.onChange, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, "logging:\n  level: loud\n")

	// Give the poller several cycles to (not) pick it up.
	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("invalid edit triggered %d callbacks", rec.count())
	}
	if got := w.Current().Logging.Level; got != config.LogInfo {
		t.Errorf("Current() level = %v, want the previous info", got)
	}
}
