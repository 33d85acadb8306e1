// Package inbox watches a drop folder and ingests notes written into it.
package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notesrag/internal/ingest"
	"github.com/starford/notesrag/internal/parser"
	"github.com/starford/notesrag/internal/storage"
	"github.com/starford/notesrag/internal/tenant"
)

// ArchiveDir receives files once they have been ingested. It is hidden so
// listing and watching skip it.
const ArchiveDir = ".processed"

const defaultDebounce = 200 * time.Millisecond

// Ingester is the part of the ingestion pipeline the inbox drives.
type Ingester interface {
	Ingest(ctx context.Context, key tenant.Key, files []ingest.File, onProgress ingest.ProgressFunc) []ingest.Result
}

// Callback is told about every ingested file.
type Callback func(path string, res ingest.Result)

// Watcher ingests new or rewritten files under root for one tenant. Every
// write produces a new document; successfully ingested files are moved into
// ArchiveDir.
type Watcher struct {
	root     string
	store    storage.Provider
	ingester Ingester
	key      tenant.Key
	logger   *slog.Logger
	debounce time.Duration
	onIngest Callback

	mu      sync.Mutex
	pending map[string]struct{}
}

// New creates a watcher. cb may be nil.
func New(root string, store storage.Provider, ingester Ingester, key tenant.Key, logger *slog.Logger, cb Callback) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:     root,
		store:    store,
		ingester: ingester,
		key:      key,
		logger:   logger,
		debounce: defaultDebounce,
		onIngest: cb,
		pending:  make(map[string]struct{}),
	}
}

// Run ingests files already in the folder, then processes change events
// until ctx is cancelled. Writes are debounced so a file is read once its
// writer goes quiet.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("inbox: started", slog.String("root", w.root))

	w.scan(ctx)

	var flushTimer *time.Timer
	var flushCh <-chan time.Time
	schedule := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(w.debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			w.logger.Info("inbox: stopped")
			return nil

		case <-flushCh:
			w.flush(ctx)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
				if hidden(ev.Name) {
					continue
				}
				if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
					w.logger.Warn("inbox: add new dir failed", slog.String("path", ev.Name), slog.String("error", addErr.Error()))
				}
				w.scan(ctx)
				continue
			}
			rel, relErr := filepath.Rel(w.root, ev.Name)
			if relErr != nil || !w.store.Accepts(rel) || inArchive(rel) {
				continue
			}
			w.mu.Lock()
			w.pending[rel] = struct{}{}
			w.mu.Unlock()
			schedule()

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox: watch error", slog.String("error", watchErr.Error()))
		}
	}
}

// scan queues every accepted file outside the archive and ingests them.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := w.store.List("")
	if err != nil {
		w.logger.Warn("inbox: list failed", slog.String("error", err.Error()))
		return
	}
	w.mu.Lock()
	for _, e := range entries {
		w.pending[e.Path] = struct{}{}
	}
	w.mu.Unlock()
	w.flush(ctx)
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	w.mu.Unlock()

	var files []ingest.File
	var sources []string
	for _, rel := range paths {
		data, err := w.store.Read(rel)
		if err != nil {
			// removed or moved before we got to it
			w.logger.Debug("inbox: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		files = append(files, ingest.File{
			Name:     filepath.Base(rel),
			MimeType: mimeFor(rel),
			Text:     string(data),
		})
		sources = append(sources, rel)
	}
	if len(files) == 0 {
		return
	}

	results := w.ingester.Ingest(ctx, w.key, files, nil)
	for i, res := range results {
		rel := sources[i]
		w.logger.Info("inbox: ingested",
			slog.String("path", rel),
			slog.String("status", string(res.Status)),
			slog.Int("chunks", res.ChunkCount))
		if res.Status != ingest.StatusError {
			if err := w.store.Move(rel, filepath.Join(ArchiveDir, rel)); err != nil {
				w.logger.Warn("inbox: archive failed", slog.String("path", rel), slog.String("error", err.Error()))
			}
		}
		if w.onIngest != nil {
			w.onIngest(rel, res)
		}
	}
}

func mimeFor(path string) string {
	if parser.IsMarkdown(path, "") {
		return "text/markdown"
	}
	return ingest.DefaultMimeType
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func inArchive(rel string) bool {
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return strings.HasPrefix(first, ".")
}

// addDirsRecursive watches root and every non-hidden subdirectory.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(path) {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
