// Package rag answers questions from a tenant's notes: it retrieves the most
// similar chunks, assembles them into grounding context and citations, and
// hands a prompt to the text generator.
package rag

import (
	"context"
	"fmt"

	"github.com/starford/notesrag/internal/apperr"
	"github.com/starford/notesrag/internal/models"
	"github.com/starford/notesrag/internal/tenant"
)

// DefaultMatchLimit is the number of chunks requested per question.
const DefaultMatchLimit = 8

// Searcher is the vector-similarity query exposed by storage.
type Searcher interface {
	Search(ctx context.Context, tenantKey string, query []float32, k int) ([]models.Match, error)
}

// Retriever returns the top-k chunks of one tenant for a query vector.
type Retriever struct {
	searcher Searcher
}

// NewRetriever creates a Retriever over s.
func NewRetriever(s Searcher) *Retriever {
	return &Retriever{searcher: s}
}

// Retrieve returns at most k matches ordered by descending similarity. A
// tenant without chunks yields an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, key tenant.Key, query []float32, k int) ([]models.Match, error) {
	if key == "" {
		return nil, fmt.Errorf("rag: retrieve: empty tenant key: %w", apperr.ErrInvalidInput)
	}
	if k <= 0 {
		k = DefaultMatchLimit
	}
	matches, err := r.searcher.Search(ctx, key.String(), query, k)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve: %w", wrapSentinel(err, apperr.ErrRetrieval))
	}
	if matches == nil {
		matches = []models.Match{}
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
