// Package noteservice is the application layer shared by the HTTP API, the
// MCP server and the CLI. It turns a caller-supplied tenant seed into a
// tenant key and delegates to ingestion, answering and storage.
package noteservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/notesrag/internal/apperr"
	"github.com/starford/notesrag/internal/index"
	"github.com/starford/notesrag/internal/ingest"
	"github.com/starford/notesrag/internal/rag"
	"github.com/starford/notesrag/internal/tenant"
)

// DocumentStore is the part of storage the service reads directly.
type DocumentStore interface {
	ListDocuments(ctx context.Context, tenantKey string) ([]index.DocumentRow, error)
	GetDocument(ctx context.Context, tenantKey, id string) (*index.DocumentRow, error)
	Ping(ctx context.Context) error
}

// Service coordinates ingestion, answering and document listing.
type Service struct {
	docs     DocumentStore
	pipeline *ingest.Pipeline
	jobs     *ingest.Jobs
	answers  *rag.Orchestrator
}

// NewService creates a new note service.
func NewService(docs DocumentStore, pipeline *ingest.Pipeline, jobs *ingest.Jobs, answers *rag.Orchestrator) *Service {
	return &Service{docs: docs, pipeline: pipeline, jobs: jobs, answers: answers}
}

func resolve(seed string) (tenant.Key, error) {
	key, err := tenant.DeriveKey(seed)
	if err != nil {
		return "", fmt.Errorf("tenant seed is required: %w", apperr.ErrInvalidInput)
	}
	return key, nil
}

func checkFiles(files []ingest.File) error {
	if len(files) == 0 {
		return fmt.Errorf("no files provided: %w", apperr.ErrInvalidInput)
	}
	return nil
}

// Ingest processes files synchronously and returns one result per file.
func (s *Service) Ingest(ctx context.Context, seed string, files []ingest.File) ([]ingest.Result, error) {
	key, err := resolve(seed)
	if err != nil {
		return nil, err
	}
	if err := checkFiles(files); err != nil {
		return nil, err
	}
	return s.pipeline.Ingest(ctx, key, files, nil), nil
}

// StartIngest launches a background ingestion and returns its handle.
func (s *Service) StartIngest(ctx context.Context, seed string, files []ingest.File) (*ingest.Job, error) {
	key, err := resolve(seed)
	if err != nil {
		return nil, err
	}
	if err := checkFiles(files); err != nil {
		return nil, err
	}
	return s.jobs.Start(ctx, key, files), nil
}

// Job returns a background ingestion by id.
func (s *Service) Job(id string) (*ingest.Job, error) {
	job, err := s.jobs.Get(id)
	if errors.Is(err, ingest.ErrJobNotFound) {
		return nil, fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	return job, err
}

// Ask answers a question from the tenant's notes. matchCount <= 0 uses the
// configured match limit.
func (s *Service) Ask(ctx context.Context, seed, question string, matchCount int) (*rag.Answer, error) {
	key, err := resolve(seed)
	if err != nil {
		return nil, err
	}
	return s.answers.Answer(ctx, key, question, matchCount)
}

// ListDocuments returns the tenant's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, seed string) ([]index.DocumentRow, error) {
	key, err := resolve(seed)
	if err != nil {
		return nil, err
	}
	return s.docs.ListDocuments(ctx, key.String())
}

// Document returns one of the tenant's documents. Documents of other tenants
// are reported as not found.
func (s *Service) Document(ctx context.Context, seed, id string) (*index.DocumentRow, error) {
	key, err := resolve(seed)
	if err != nil {
		return nil, err
	}
	return s.docs.GetDocument(ctx, key.String(), id)
}

// Ready reports whether storage is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.docs.Ping(ctx)
}
