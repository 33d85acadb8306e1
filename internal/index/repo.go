package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/starford/notesrag/internal/apperr"
	"github.com/starford/notesrag/internal/models"
	"github.com/starford/notesrag/internal/vector"
)

// DocumentRow is a document plus the number of chunks stored for it.
type DocumentRow struct {
	models.Document
	ChunkCount int `json:"chunk_count" db:"chunk_count"`
}

type chunkRow struct {
	DocumentID string `db:"document_id"`
	ChunkIndex int    `db:"chunk_index"`
	Content    string `db:"content"`
	Embedding  []byte `db:"embedding"`
}

// InsertDocument stores a new document and returns its id. An id is
// generated when doc.ID is empty; the status defaults to uploaded.
func (db *DB) InsertDocument(ctx context.Context, doc models.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.StatusUploaded
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = doc.CreatedAt

	_, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO documents (id, tenant_key, title, file_name, mime_type, size_bytes, checksum, status, reason, created_at, updated_at)
		VALUES (:id, :tenant_key, :title, :file_name, :mime_type, :size_bytes, :checksum, :status, :reason, :created_at, :updated_at)
	`, doc)
	if err != nil {
		return "", fmt.Errorf("index: insert document: %w", err)
	}
	return doc.ID, nil
}

// InsertChunks stores all chunks in one transaction: either every chunk is
// written or none is.
func (db *DB) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO chunks (document_id, tenant_key, chunk_index, content, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.DocumentID, c.TenantKey, c.Index, c.Content, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("index: insert chunk %d of %s: %w", c.Index, c.DocumentID, err)
		}
	}
	return tx.Commit()
}

// UpdateDocumentStatus moves a document out of the uploaded state. Status
// transitions are one-way; a document that already left uploaded is a conflict.
func (db *DB) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, reason string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE documents SET status = ?, reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, reason, time.Now().UTC(), id, models.StatusUploaded)
	if err != nil {
		return fmt.Errorf("index: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("index: update status: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = db.conn.GetContext(ctx, &current, `SELECT status FROM documents WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("index: document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("index: update status: %w", err)
	}
	return fmt.Errorf("index: document %s is %s, cannot become %s: %w", id, current, status, apperr.ErrConflict)
}

// GetTitles resolves display titles for ids in one query. Documents without
// a title fall back to their file name; unknown ids are absent from the map.
func (db *DB) GetTitles(ctx context.Context, tenantKey string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, CASE WHEN title != '' THEN title ELSE file_name END AS title
		FROM documents
		WHERE tenant_key = ? AND id IN (?)
	`, tenantKey, ids)
	if err != nil {
		return nil, fmt.Errorf("index: build titles query: %w", err)
	}
	var rows []struct {
		ID    string `db:"id"`
		Title string `db:"title"`
	}
	if err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("index: titles: %w", err)
	}
	for _, r := range rows {
		if r.Title != "" {
			out[r.ID] = r.Title
		}
	}
	return out, nil
}

// Search ranks the tenant's chunks by cosine similarity to query and returns
// at most k matches. Only chunks of processed documents are eligible, and
// equal scores keep insertion order.
func (db *DB) Search(ctx context.Context, tenantKey string, query []float32, k int) ([]models.Match, error) {
	if k <= 0 {
		return []models.Match{}, nil
	}
	var rows []chunkRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT c.document_id, c.chunk_index, c.content, c.embedding
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.tenant_key = ? AND d.tenant_key = ? AND d.status = ?
		ORDER BY c.id
	`, tenantKey, tenantKey, models.StatusProcessed)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	vecs := make([][]float32, len(rows))
	mismatched := 0
	for i, r := range rows {
		v, err := decodeVector(r.Embedding)
		if err != nil {
			return nil, err
		}
		if len(v) != len(query) {
			// scores 0 in the ranking; usually a changed embedding model
			mismatched++
		}
		vecs[i] = v
	}
	if mismatched > 0 {
		slog.Warn("index: stored embeddings differ from query dimension",
			slog.String("tenant", tenantKey),
			slog.Int("query_dim", len(query)),
			slog.Int("chunks", mismatched))
	}

	ranked := vector.TopK(query, vecs, k)
	out := make([]models.Match, len(ranked))
	for i, s := range ranked {
		r := rows[s.Pos]
		out[i] = models.Match{
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Score:      s.Score,
		}
	}
	return out, nil
}

const documentColumns = `
	d.id, d.tenant_key, d.title, d.file_name, d.mime_type, d.size_bytes, d.checksum,
	d.status, d.reason, d.created_at, d.updated_at,
	(SELECT count(*) FROM chunks c WHERE c.document_id = d.id) AS chunk_count
`

// ListDocuments returns the tenant's documents, newest first.
func (db *DB) ListDocuments(ctx context.Context, tenantKey string) ([]DocumentRow, error) {
	out := []DocumentRow{}
	err := db.conn.SelectContext(ctx, &out, `SELECT `+documentColumns+`
		FROM documents d
		WHERE d.tenant_key = ?
		ORDER BY d.created_at DESC, d.rowid DESC
	`, tenantKey)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	return out, nil
}

// GetDocument returns one of the tenant's documents.
func (db *DB) GetDocument(ctx context.Context, tenantKey, id string) (*DocumentRow, error) {
	var row DocumentRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+documentColumns+`
		FROM documents d
		WHERE d.tenant_key = ? AND d.id = ?
	`, tenantKey, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &row, nil
}
