package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/zettenote/internal/noteservice"
	"github.com/starford/zettenote/internal/storage"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// archive, if non-nil, backs the /backups routes.
func NewRouter(svc *noteservice.Service, archive storage.Archive, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, archive)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Links.
	r.Get("/notes/{id}/backlinks", h.Backlinks)
	r.Get("/orphans", h.Orphans)
	r.Get("/resolve", h.Resolve)
	r.Get("/graph", h.Graph)

	// Search.
	r.Get("/search", h.Search)

	// Tags.
	r.Get("/tags", h.ListTags)
	r.Post("/tags", h.AddTag)
	r.Post("/tags/repair", h.RepairTags)
	r.Delete("/tags/{name}", h.RemoveTag)

	// Settings.
	r.Get("/settings/{key}", h.GetSetting)
	r.Put("/settings/{key}", h.PutSetting)

	// Backup download and import.
	r.Get("/backup", h.ExportBackup)
	r.Post("/backup", h.ImportBackup)

	if archive != nil {
		r.Get("/backups", h.ListBackups)
		r.Post("/backups", h.CreateBackup)
		r.Get("/backups/{name}", h.GetBackup)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
