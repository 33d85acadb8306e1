// Package ingest turns uploaded note text into embedded, stored chunks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/notesrag/internal/apperr"
	"github.com/starford/notesrag/internal/checksum"
	"github.com/starford/notesrag/internal/chunker"
	"github.com/starford/notesrag/internal/models"
	"github.com/starford/notesrag/internal/parser"
	"github.com/starford/notesrag/internal/tenant"
)

// Defaults applied to files that arrive without a name or type.
const (
	DefaultFileName = "Untitled.txt"
	DefaultMimeType = "text/plain"
)

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the write side of document storage.
type Store interface {
	InsertDocument(ctx context.Context, doc models.Document) (string, error)
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, reason string) error
}

// File is one decoded upload.
type File struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	Text     string `json:"content"`
}

// Status is the per-file outcome of an ingestion.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusError     Status = "error"
)

// Result reports what happened to one file.
type Result struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	ChunkCount int    `json:"chunkCount,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Progress counts embedded chunks out of the batch total.
type Progress struct {
	Embedded int `json:"embedded"`
	Total    int `json:"total"`
}

// ProgressFunc observes progress. Calls are serialized and Embedded never
// decreases between calls.
type ProgressFunc func(Progress)

// Config bounds ingestion parallelism.
type Config struct {
	DocumentWorkers int
	ChunkWorkers    int
}

// Pipeline chunks, embeds and stores documents.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder Embedder
	store    Store
	cfg      Config
	logger   *slog.Logger

	// dim is fixed by the first embedding the pipeline accepts.
	dim atomic.Int64
}

// NewPipeline creates a pipeline. Worker counts below 1 are treated as 1.
func NewPipeline(c *chunker.Chunker, embedder Embedder, store Store, cfg Config, logger *slog.Logger) *Pipeline {
	if c == nil {
		c = chunker.Default()
	}
	cfg.DocumentWorkers = max(cfg.DocumentWorkers, 1)
	cfg.ChunkWorkers = max(cfg.ChunkWorkers, 1)
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{chunker: c, embedder: embedder, store: store, cfg: cfg, logger: logger}
}

type progressCounter struct {
	mu   sync.Mutex
	p    Progress
	emit ProgressFunc
}

func (pc *progressCounter) add(n int) {
	if pc.emit == nil {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.p.Embedded += n
	pc.emit(pc.p)
}

type plannedFile struct {
	file   File
	pieces []chunker.Piece
}

// Ingest processes files independently and returns one result per file in
// input order. A failing file never aborts the others.
func (p *Pipeline) Ingest(ctx context.Context, key tenant.Key, files []File, onProgress ProgressFunc) []Result {
	plans := make([]plannedFile, len(files))
	total := 0
	for i, f := range files {
		f = normalize(f)
		plans[i] = plannedFile{file: f, pieces: p.chunker.Split(f.Text)}
		total += len(plans[i].pieces)
	}
	counter := &progressCounter{p: Progress{Total: total}, emit: onProgress}

	results := make([]Result, len(files))
	var g errgroup.Group
	g.SetLimit(p.cfg.DocumentWorkers)
	for i := range plans {
		g.Go(func() error {
			results[i] = p.ingestOne(ctx, key, plans[i], counter)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("ingest: batch finished",
		slog.String("tenant", key.String()),
		slog.Int("files", len(files)),
		slog.Int("chunks", total))
	return results
}

func (p *Pipeline) ingestOne(ctx context.Context, key tenant.Key, plan plannedFile, counter *progressCounter) Result {
	f := plan.file
	res := Result{Name: f.Name}
	if len(plan.pieces) == 0 {
		res.Status = StatusSkipped
		res.Reason = "empty content"
		return res
	}

	docID, err := p.store.InsertDocument(ctx, models.Document{
		TenantKey: key.String(),
		Title:     parser.DisplayTitle(f.Name, f.MimeType, f.Text),
		FileName:  f.Name,
		MimeType:  f.MimeType,
		SizeBytes: int64(len(f.Text)),
		Checksum:  checksum.String(f.Text),
		Status:    models.StatusUploaded,
	})
	if err != nil {
		p.logger.Warn("ingest: create document failed", slog.String("name", f.Name), slog.String("error", err.Error()))
		res.Status = StatusError
		res.Reason = err.Error()
		return res
	}
	res.DocumentID = docID

	chunks, err := p.embedChunks(ctx, key, docID, plan.pieces, counter)
	if err == nil {
		err = p.store.InsertChunks(ctx, chunks)
	}
	if err == nil {
		err = p.store.UpdateDocumentStatus(ctx, docID, models.StatusProcessed, "")
	}
	if err != nil {
		p.fail(ctx, docID, f.Name, err)
		res.Status = StatusError
		res.Reason = err.Error()
		return res
	}

	p.logger.Debug("ingest: document processed",
		slog.String("document_id", docID),
		slog.String("name", f.Name),
		slog.Int("chunks", len(chunks)))
	res.Status = StatusProcessed
	res.ChunkCount = len(chunks)
	return res
}

// embedChunks embeds every piece concurrently and pairs each vector back with
// its chunk index. The first failure cancels the remaining calls.
func (p *Pipeline) embedChunks(ctx context.Context, key tenant.Key, docID string, pieces []chunker.Piece, counter *progressCounter) ([]models.Chunk, error) {
	chunks := make([]models.Chunk, len(pieces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ChunkWorkers)
	for _, piece := range pieces {
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, piece.Content)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", piece.Index, err)
			}
			if err := p.checkDim(vec); err != nil {
				return fmt.Errorf("chunk %d: %w", piece.Index, err)
			}
			chunks[piece.Index] = models.Chunk{
				DocumentID: docID,
				TenantKey:  key.String(),
				Index:      piece.Index,
				Content:    piece.Content,
				Embedding:  vec,
			}
			counter.add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// checkDim rejects empty vectors and vectors whose dimension differs from
// the one already in use.
func (p *Pipeline) checkDim(vec []float32) error {
	n := int64(len(vec))
	if n == 0 {
		return fmt.Errorf("empty embedding: %w", apperr.ErrEmbedding)
	}
	if p.dim.CompareAndSwap(0, n) {
		return nil
	}
	if want := p.dim.Load(); want != n {
		return fmt.Errorf("embedding has %d dimensions, want %d: %w", n, want, apperr.ErrEmbedding)
	}
	return nil
}

// fail records the error status even when ctx has been cancelled, so an
// abandoned request never leaves a document looking complete.
func (p *Pipeline) fail(ctx context.Context, docID, name string, cause error) {
	p.logger.Warn("ingest: document failed",
		slog.String("document_id", docID),
		slog.String("name", name),
		slog.String("error", cause.Error()))
	if err := p.store.UpdateDocumentStatus(context.WithoutCancel(ctx), docID, models.StatusError, cause.Error()); err != nil {
		p.logger.Error("ingest: mark document failed", slog.String("document_id", docID), slog.String("error", err.Error()))
	}
}

func normalize(f File) File {
	if strings.TrimSpace(f.Name) == "" {
		f.Name = DefaultFileName
	}
	if strings.TrimSpace(f.MimeType) == "" {
		f.MimeType = DefaultMimeType
	}
	return f
}
