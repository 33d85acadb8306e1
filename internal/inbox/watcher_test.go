package inbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notesrag/internal/ingest"
	"github.com/starford/notesrag/internal/tenant"
	"github.com/starford/notesrag/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events map[string]ingest.Result
}

func (r *recorder) record(path string, res ingest.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string]ingest.Result{}
	}
	r.events[filepath.ToSlash(path)] = res
}

func (r *recorder) get(path string) (ingest.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.events[path]
	return res, ok
}

func newEnv(t *testing.T) (string, *Watcher, *recorder) {
	t.Helper()
	dir, store := testutil.TestInbox(t)
	db := testutil.TestDB(t)
	key, err := tenant.DeriveKey("inbox-owner")
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	p := ingest.NewPipeline(nil, &testutil.Embedder{}, db, ingest.Config{}, logger)
	rec := &recorder{}
	w := New(dir, store, p, key, logger, rec.record)
	w.debounce = 20 * time.Millisecond
	return dir, w, rec
}

func TestWatcher_ExistingFilesIngestedOnStart(t *testing.T) {
	dir, w, rec := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.md"), []byte("# Early\n\nbird"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.Eventually(t, func() bool {
		res, ok := rec.get("early.md")
		return ok && res.Status == ingest.StatusProcessed
	}, 5*time.Second, 20*time.Millisecond, "existing file not ingested")

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ArchiveDir, "early.md"))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond, "ingested file not archived")
	assert.NoFileExists(t, filepath.Join(dir, "early.md"))
}

func TestWatcher_NewFileIngested(t *testing.T) {
	dir, w, rec := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("fresh note"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.pdf"), []byte("binary"), 0o644))

	assert.Eventually(t, func() bool {
		res, ok := rec.get("new.txt")
		return ok && res.Status == ingest.StatusProcessed && res.DocumentID != ""
	}, 5*time.Second, 20*time.Millisecond, "new file not ingested by watcher")

	time.Sleep(100 * time.Millisecond)
	_, ok := rec.get("ignored.pdf")
	assert.False(t, ok, "file with unaccepted extension was ingested")
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir, w, rec := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(dir, "journal")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "day.md"), []byte("rainy"), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := rec.get("journal/day.md")
		return ok
	}, 5*time.Second, 20*time.Millisecond, "file in new subdirectory not ingested")
}

func TestWatcher_EmptyFileSkipped(t *testing.T) {
	dir, w, rec := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blank.md"), nil, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.Eventually(t, func() bool {
		res, ok := rec.get("blank.md")
		return ok && res.Status == ingest.StatusSkipped
	}, 5*time.Second, 20*time.Millisecond, "empty file not reported as skipped")
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	_, w, _ := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
