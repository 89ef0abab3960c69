package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the API under /api and serves staticDir everywhere else.
// An empty staticDir disables the frontend.
func NewRouter(apiHandler *APIHandler, staticDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer) // Recover from panics

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.StripSlashes)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/chat", apiHandler.ChatHandler)
		r.Post("/upload/document", apiHandler.UploadDocumentHandler)
		r.Post("/analyze/media", apiHandler.AnalyzeMediaHandler)
		r.Get("/sessions/{sessionID}/messages", apiHandler.SessionMessagesHandler)
	})

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}
	return r
}
