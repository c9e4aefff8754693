package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notechain/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// maint, if non-nil, serves POST /migrate and POST /repair.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, maint Maintenance, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Put("/", h.UpdateNote)
		r.Delete("/", h.DeleteNote)
		r.Post("/move", h.MoveNote)
		r.Get("/chain", h.Chain)
		r.Get("/export", h.ExportNote)
	})

	// Labels.
	r.Get("/labels", h.ListLabels)
	r.Post("/labels", h.CreateLabel)
	r.Put("/labels/{name}", h.RenameLabel)
	r.Delete("/labels/{name}", h.DeleteLabel)

	// Search.
	r.Get("/search", h.Search)

	// Backups.
	r.Post("/import", h.Import)
	r.Post("/import/upload", h.Upload)
	r.Get("/export", h.Export)

	if maint != nil {
		mh := &MaintenanceHandler{m: maint}
		r.Post("/migrate", mh.Migrate)
		r.Post("/repair", mh.Repair)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
