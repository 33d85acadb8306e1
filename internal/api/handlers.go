package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notesrag/internal/apperr"
	"github.com/starford/notesrag/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Ingest handles POST /api/ingest.
//
//	@Summary		Ingest decoded note files
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IngestRequest	true	"Files to ingest"
//	@Success		200		{object}	IngestResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest [post]
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorWithReason("invalid request", err))
		return
	}
	results, err := h.svc.Ingest(r.Context(), req.TenantSeed, req.files())
	if err != nil {
		h.fail(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Results: results})
}

// StartJob handles POST /api/ingest/jobs.
//
//	@Summary		Start a background ingestion
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IngestRequest	true	"Files to ingest"
//	@Success		202		{object}	JobAccepted
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest/jobs [post]
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorWithReason("invalid request", err))
		return
	}
	job, err := h.svc.StartIngest(r.Context(), req.TenantSeed, req.files())
	if err != nil {
		h.fail(w, "start job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, JobAccepted{JobID: job.ID})
}

// GetJob handles GET /api/ingest/jobs/{id}.
//
//	@Summary		Get background ingestion progress and results
//	@Tags			ingest
//	@Produce		json
//	@Param			id	path		string	true	"Job id"
//	@Success		200	{object}	ingest.JobSnapshot
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Job(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// Ask handles POST /api/ask.
//
//	@Summary		Answer a question from the tenant's notes
//	@Tags			ask
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AskRequest	true	"Question"
//	@Success		200		{object}	AskResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ask [post]
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorWithReason("invalid request", err))
		return
	}
	ans, err := h.svc.Ask(r.Context(), req.TenantSeed, req.Question, req.MatchCount)
	if err != nil {
		h.fail(w, "ask", err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{Answer: ans.Answer, Sources: ans.Sources})
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List the tenant's documents
//	@Tags			documents
//	@Produce		json
//	@Param			tenantSeed	query		string	true	"Tenant seed"
//	@Success		200			{object}	DocumentListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListDocuments(r.Context(), r.URL.Query().Get("tenantSeed"))
	if err != nil {
		h.fail(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: toDocumentItems(rows)})
}

// GetDocument handles GET /api/documents/{id}.
//
//	@Summary		Get one of the tenant's documents
//	@Tags			documents
//	@Produce		json
//	@Param			id			path		string	true	"Document ID"
//	@Param			tenantSeed	query		string	true	"Tenant seed"
//	@Success		200			{object}	DocumentItem
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	row, err := h.svc.Document(r.Context(), r.URL.Query().Get("tenantSeed"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentItem(*row))
}

// fail maps service errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorWithReason("invalid request", err))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrEmbedding),
		errors.Is(err, apperr.ErrRetrieval),
		errors.Is(err, apperr.ErrGeneration):
		writeJSON(w, http.StatusBadGateway, errorWithReason("failed to answer question", err))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
