package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notesrag/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted. sseHandler,
// if non-nil, is served at GET /events behind the same auth.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/ingest", func(r chi.Router) {
		r.Post("/", h.Ingest)
		r.Post("/upload", h.Upload)
		r.Post("/jobs", h.StartJob)
		r.Get("/jobs/{id}", h.GetJob)
	})
	r.Post("/ask", h.Ask)
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/{id}", h.GetDocument)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}
	return r
}
