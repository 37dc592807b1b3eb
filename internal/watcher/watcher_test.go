package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runs struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *runs) record(_ context.Context, changed []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, changed)
	return nil
}

func (r *runs) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func startWatcher(t *testing.T, opts Options, r *runs) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(opts, r.record)
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// fsnotify.Add happens inside Run.
	time.Sleep(100 * time.Millisecond)
}

func TestWatcherDebouncesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	r := &runs{}
	startWatcher(t, Options{Folder: dir, Extensions: []string{".PDF", ".pptx"}, QuietPeriod: 150 * time.Millisecond}, r)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pptx"), []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	require.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"a.pdf", "b.pptx"}, r.snapshot()[0])

	time.Sleep(300 * time.Millisecond)
	assert.Len(t, r.snapshot(), 1)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	r := &runs{}
	startWatcher(t, Options{Folder: dir, Extensions: []string{".pdf"}, QuietPeriod: 50 * time.Millisecond}, r)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$lock.pdf"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, r.snapshot())
}

func TestWatcherRunOnStart(t *testing.T) {
	dir := t.TempDir()
	r := &runs{}
	startWatcher(t, Options{Folder: dir, RunOnStart: true, QuietPeriod: time.Second}, r)

	require.Eventually(t, func() bool { return len(r.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, r.snapshot()[0])
}

func TestWatcherMissingFolder(t *testing.T) {
	w := New(Options{Folder: filepath.Join(t.TempDir(), "missing")}, func(context.Context, []string) error { return nil })
	assert.Error(t, w.Run(context.Background()))
}

func TestRelevant(t *testing.T) {
	w := New(Options{Extensions: []string{".pdf"}}, nil)
	assert.True(t, w.relevant(fsnotify.Event{Name: "/x/a.pdf", Op: fsnotify.Create}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/x/A.PDF", Op: fsnotify.Write}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/x/a.pdf", Op: fsnotify.Remove}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/x/a.pdf", Op: fsnotify.Chmod}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/x/.a.pdf", Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/x/a.txt", Op: fsnotify.Create}))
}
