// Package models defines the domain types for notesrag.
package models

import "time"

// DocumentStatus is the lifecycle state of an uploaded document.
type DocumentStatus string

// Document lifecycle. Transitions only go uploaded -> processed or uploaded -> error.
const (
	StatusUploaded  DocumentStatus = "uploaded"
	StatusProcessed DocumentStatus = "processed"
	StatusError     DocumentStatus = "error"
)

// Document is one uploaded unit of text.
type Document struct {
	ID        string         `json:"id" db:"id"`
	TenantKey string         `json:"-" db:"tenant_key"`
	Title     string         `json:"title" db:"title"`
	FileName  string         `json:"file_name" db:"file_name"`
	MimeType  string         `json:"mime_type" db:"mime_type"`
	SizeBytes int64          `json:"size_bytes" db:"size_bytes"`
	Checksum  string         `json:"checksum" db:"checksum"`
	Status    DocumentStatus `json:"status" db:"status"`
	Reason    string         `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Chunk is one overlapping text window belonging to a document.
// Index defines reading order within the document, not similarity order.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	TenantKey  string    `json:"-"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// Match is a retrieved chunk with its similarity to the query vector.
type Match struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// Citation is a de-duplicated, user-facing reference to a source document.
type Citation struct {
	NoteID  string `json:"noteId"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ContextBlock is one grounding passage handed to the text generator.
type ContextBlock struct {
	Title   string
	Content string
}
