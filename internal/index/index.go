package index

import (
	"context"

	"github.com/starford/notesrag/internal/models"
)

// Store is the storage contract consumed by ingestion and retrieval.
// Consumers should depend on the narrower interfaces they need; Store exists
// so the concrete *DB is checked against all of them at compile time.
type Store interface {
	InsertDocument(ctx context.Context, doc models.Document) (string, error)
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, reason string) error
	GetTitles(ctx context.Context, tenantKey string, ids []string) (map[string]string, error)
	Search(ctx context.Context, tenantKey string, query []float32, k int) ([]models.Match, error)
	ListDocuments(ctx context.Context, tenantKey string) ([]DocumentRow, error)
	GetDocument(ctx context.Context, tenantKey, id string) (*DocumentRow, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
