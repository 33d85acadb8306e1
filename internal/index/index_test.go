package index

import (
	"bytes"
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notesrag/internal/apperr"
	"github.com/starford/notesrag/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// unitAt returns a 2-d unit vector whose cosine with (1, 0) is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

// seed inserts a processed document whose chunks carry the given vectors.
func seed(t *testing.T, db *DB, tenant, title string, vecs ...[]float32) string {
	t.Helper()
	ctx := context.Background()
	id, err := db.InsertDocument(ctx, models.Document{TenantKey: tenant, Title: title, FileName: title + ".txt"})
	require.NoError(t, err)
	chunks := make([]models.Chunk, len(vecs))
	for i, v := range vecs {
		chunks[i] = models.Chunk{DocumentID: id, TenantKey: tenant, Index: i, Content: title + "-chunk", Embedding: v}
	}
	require.NoError(t, db.InsertChunks(ctx, chunks))
	require.NoError(t, db.UpdateDocumentStatus(ctx, id, models.StatusProcessed, ""))
	return id
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&count), "documents table")
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM chunks`).Scan(&count), "chunks table")
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, math.MaxFloat32}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err, "truncated vector")
}

func TestInsertDocumentDefaults(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, err := db.InsertDocument(ctx, models.Document{TenantKey: "t1", Title: "Notes", FileName: "notes.txt"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := db.GetDocument(ctx, "t1", id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, doc.Status)
	assert.Zero(t, doc.ChunkCount)
}

func TestGetDocument_OtherTenantNotFound(t *testing.T) {
	db := testDB(t)
	id := seed(t, db, "t1", "secret", unitAt(1))
	_, err := db.GetDocument(context.Background(), "t2", id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateDocumentStatus_OneWay(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, err := db.InsertDocument(ctx, models.Document{TenantKey: "t1", FileName: "a.txt"})
	require.NoError(t, err)

	require.NoError(t, db.UpdateDocumentStatus(ctx, id, models.StatusError, "embedding failed"))
	assert.ErrorIs(t, db.UpdateDocumentStatus(ctx, id, models.StatusProcessed, ""), apperr.ErrConflict)
	assert.ErrorIs(t, db.UpdateDocumentStatus(ctx, "missing", models.StatusProcessed, ""), apperr.ErrNotFound)

	doc, err := db.GetDocument(ctx, "t1", id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, doc.Status)
	assert.Equal(t, "embedding failed", doc.Reason)
}

func TestInsertChunks_AllOrNothing(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, err := db.InsertDocument(ctx, models.Document{TenantKey: "t1", FileName: "a.txt"})
	require.NoError(t, err)

	dup := []models.Chunk{
		{DocumentID: id, TenantKey: "t1", Index: 0, Content: "a", Embedding: unitAt(1)},
		{DocumentID: id, TenantKey: "t1", Index: 0, Content: "b", Embedding: unitAt(1)},
	}
	require.Error(t, db.InsertChunks(ctx, dup), "unique violation")

	doc, err := db.GetDocument(ctx, "t1", id)
	require.NoError(t, err)
	assert.Zero(t, doc.ChunkCount, "chunks left after failed insert")
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	db := testDB(t)
	a := seed(t, db, "t1", "a", unitAt(0.9))
	b := seed(t, db, "t1", "b", unitAt(0.95))
	seed(t, db, "t1", "c", unitAt(0.2))

	matches, err := db.Search(context.Background(), "t1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, []string{b, a}, []string{matches[0].DocumentID, matches[1].DocumentID})
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestSearch_DimensionMismatchWarns(t *testing.T) {
	db := testDB(t)
	same := seed(t, db, "t1", "same", unitAt(0.1))
	seed(t, db, "t1", "old-model", []float32{1, 0, 0})

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	matches, err := db.Search(context.Background(), "t1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, same, matches[0].DocumentID)
	assert.Zero(t, matches[1].Score)
	assert.Contains(t, logs.String(), "differ from query dimension")
	assert.Contains(t, logs.String(), `"chunks":1`)
}

func TestSearch_TenantIsolation(t *testing.T) {
	db := testDB(t)
	mine := seed(t, db, "t1", "mine", unitAt(0.1))
	seed(t, db, "t2", "theirs", unitAt(1.0))

	matches, err := db.Search(context.Background(), "t1", []float32{1, 0}, 8)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, mine, matches[0].DocumentID)
}

func TestSearch_SkipsUnprocessedDocuments(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, err := db.InsertDocument(ctx, models.Document{TenantKey: "t1", FileName: "pending.txt"})
	require.NoError(t, err)
	require.NoError(t, db.InsertChunks(ctx, []models.Chunk{{DocumentID: id, TenantKey: "t1", Index: 0, Content: "x", Embedding: unitAt(1)}}))

	matches, err := db.Search(ctx, "t1", []float32{1, 0}, 8)
	require.NoError(t, err)
	assert.Empty(t, matches, "unprocessed document leaked into search")
}

func TestSearch_EmptyTenant(t *testing.T) {
	db := testDB(t)
	matches, err := db.Search(context.Background(), "nobody", []float32{1, 0}, 8)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestGetTitles_BatchedAndScoped(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := seed(t, db, "t1", "Alpha", unitAt(1))
	untitled, err := db.InsertDocument(ctx, models.Document{TenantKey: "t1", FileName: "raw.txt"})
	require.NoError(t, err)
	other := seed(t, db, "t2", "Other", unitAt(1))

	titles, err := db.GetTitles(ctx, "t1", []string{a, untitled, other, "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{a: "Alpha", untitled: "raw.txt"}, titles)
}

func TestListDocuments(t *testing.T) {
	db := testDB(t)
	seed(t, db, "t1", "one", unitAt(1), unitAt(0.5))
	seed(t, db, "t1", "two", unitAt(1))
	seed(t, db, "t2", "three", unitAt(1))

	docs, err := db.ListDocuments(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "two", docs[0].Title)
	assert.Equal(t, 2, docs[1].ChunkCount)
}
