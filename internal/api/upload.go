package api

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"unicode/utf8"

	"github.com/starford/notesrag/internal/ingest"
)

const maxUploadBytes = 50 << 20

// Upload handles POST /api/ingest/upload (multipart/form-data, field
// "tenantSeed" and one or more "file" parts). Parts are read as UTF-8 text;
// binary formats are rejected per file rather than failing the batch.
//
//	@Summary		Ingest uploaded note files
//	@Tags			ingest
//	@Accept			mpfd
//	@Produce		json
//	@Param			tenantSeed	formData	string	true	"Tenant seed"
//	@Param			file		formData	file	true	"Note file"
//	@Success		200			{object}	IngestResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	seed := r.FormValue("tenantSeed")
	if notBlank(seed) != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("tenantSeed is required"))
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}

	// results[i] answers headers[i]; accepted maps ingested files back to it
	results := make([]ingest.Result, len(headers))
	var files []ingest.File
	var accepted []int
	for i, fh := range headers {
		f, reason := readPart(fh)
		if reason != "" {
			results[i] = ingest.Result{Name: fh.Filename, Status: ingest.StatusSkipped, Reason: reason}
			continue
		}
		files = append(files, f)
		accepted = append(accepted, i)
	}

	if len(files) > 0 {
		ingested, err := h.svc.Ingest(r.Context(), seed, files)
		if err != nil {
			h.fail(w, "upload", err)
			return
		}
		for j, res := range ingested {
			results[accepted[j]] = res
		}
	}
	writeJSON(w, http.StatusOK, IngestResponse{Results: results})
}

// readPart decodes one uploaded part, returning a skip reason when the
// content is not text.
func readPart(fh *multipart.FileHeader) (ingest.File, string) {
	src, err := fh.Open()
	if err != nil {
		return ingest.File{}, "unreadable upload"
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return ingest.File{}, "unreadable upload"
	}
	if !utf8.Valid(data) {
		return ingest.File{}, "unsupported content: not UTF-8 text"
	}

	mimeType := fh.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(fh.Filename))
		if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
			mimeType = mt
		}
	}
	return ingest.File{Name: filepath.Base(fh.Filename), MimeType: mimeType, Text: string(data)}, ""
}
