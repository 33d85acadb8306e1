package api

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notesrag/internal/index"
	"github.com/starford/notesrag/internal/ingest"
	"github.com/starford/notesrag/internal/models"
)

// FileDTO is one decoded file in an ingestion request.
type FileDTO struct {
	Name    string `json:"name" example:"groceries.md"`
	Type    string `json:"type" example:"text/markdown"`
	Content string `json:"content" example:"# Groceries\nmilk"`
}

// IngestRequest is the body of POST /api/ingest and POST /api/ingest/jobs.
type IngestRequest struct {
	TenantSeed string    `json:"tenantSeed" example:"browser-client-42"`
	Files      []FileDTO `json:"files"`
}

// Validate validates the ingestion request.
func (r IngestRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TenantSeed, validation.Required, validation.By(notBlank)),
		validation.Field(&r.Files, validation.Required),
	)
}

func (r IngestRequest) files() []ingest.File {
	out := make([]ingest.File, len(r.Files))
	for i, f := range r.Files {
		out[i] = ingest.File{Name: f.Name, MimeType: f.Type, Text: f.Content}
	}
	return out
}

// IngestResponse carries one result per submitted file, in order.
type IngestResponse struct {
	Results []ingest.Result `json:"results"`
}

// JobAccepted is returned by POST /api/ingest/jobs.
type JobAccepted struct {
	JobID string `json:"jobId"`
}

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	TenantSeed string `json:"tenantSeed" example:"browser-client-42"`
	Question   string `json:"question" example:"What did I plan for the trip?"`
	MatchCount int    `json:"matchCount,omitempty" example:"8"`
}

// Validate validates the question request.
func (r AskRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TenantSeed, validation.Required, validation.By(notBlank)),
		validation.Field(&r.Question, validation.Required, validation.By(notBlank)),
		validation.Field(&r.MatchCount, validation.Min(0)),
	)
}

// AskResponse is the answer with its de-duplicated sources.
type AskResponse struct {
	Answer  string            `json:"answer"`
	Sources []models.Citation `json:"sources"`
}

// DocumentItem is one entry of GET /api/documents.
type DocumentItem struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	FileName   string                `json:"fileName"`
	MimeType   string                `json:"type"`
	SizeBytes  int64                 `json:"size"`
	Status     models.DocumentStatus `json:"status"`
	Reason     string                `json:"reason,omitempty"`
	ChunkCount int                   `json:"chunkCount"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// DocumentListResponse wraps the documents listing.
type DocumentListResponse struct {
	Documents []DocumentItem `json:"documents"`
}

func toDocumentItem(r index.DocumentRow) DocumentItem {
	return DocumentItem{
		ID:         r.ID,
		Title:      r.Title,
		FileName:   r.FileName,
		MimeType:   r.MimeType,
		SizeBytes:  r.SizeBytes,
		Status:     r.Status,
		Reason:     r.Reason,
		ChunkCount: r.ChunkCount,
		CreatedAt:  r.CreatedAt,
	}
}

func toDocumentItems(rows []index.DocumentRow) []DocumentItem {
	out := make([]DocumentItem, len(rows))
	for i, r := range rows {
		out[i] = toDocumentItem(r)
	}
	return out
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return validation.ErrRequired
	}
	return nil
}
