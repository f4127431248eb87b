package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/zettenote/internal/backup"
)

const maxBackupBytes = 64 << 20

// ListTags handles GET /api/tags.
//
//	@Summary		List registered tags with usage counts
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.Tags(r.Context())
	if err != nil {
		writeError(w, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: all})
}

// AddTag handles POST /api/tags.
//
//	@Summary		Register a tag or change its colour
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TagRequest	true	"Tag"
//	@Success		201		{object}	models.Tag
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags [post]
func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tag, err := h.svc.AddTag(r.Context(), req.Name, req.Colour)
	if err != nil {
		writeError(w, "add tag", err, slog.String("tag", req.Name))
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

// RemoveTag handles DELETE /api/tags/{name}.
//
//	@Summary		Remove a tag definition
//	@Tags			tags
//	@Param			name	path	string	true	"Tag name"
//	@Success		204		"Tag removed"
//	@Security		BearerAuth
//	@Router			/tags/{name} [delete]
func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.svc.RemoveTag(r.Context(), name); err != nil {
		writeError(w, "remove tag", err, slog.String("tag", name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RepairTags handles POST /api/tags/repair.
//
//	@Summary		Recount tag usage from the notes
//	@Tags			tags
//	@Produce		json
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags/repair [post]
func (h *Handler) RepairTags(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.RepairTagUsage(r.Context())
	if err != nil {
		writeError(w, "repair tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: all})
}

// GetSetting handles GET /api/settings/{key}.
//
//	@Summary		Read a setting
//	@Tags			settings
//	@Produce		json
//	@Param			key	path		string	true	"Setting key"
//	@Success		200	{object}	models.Setting
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings/{key} [get]
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	raw, err := h.svc.Setting(r.Context(), key)
	if err != nil {
		writeError(w, "get setting", err, slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": raw})
}

// PutSetting handles PUT /api/settings/{key}. The body is the raw JSON value.
//
//	@Summary		Write a setting
//	@Tags			settings
//	@Accept			json
//	@Param			key	path	string	true	"Setting key"
//	@Success		204	"Setting stored"
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings/{key} [put]
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var value json.RawMessage
	if !decodeJSON(w, r, &value) {
		return
	}
	if err := h.svc.SetSetting(r.Context(), key, value); err != nil {
		writeError(w, "put setting", err, slog.String("key", key))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportBackup handles GET /api/backup.
//
//	@Summary		Download a backup of every note
//	@Tags			backup
//	@Produce		json
//	@Success		200	{object}	backup.Payload
//	@Security		BearerAuth
//	@Router			/backup [get]
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Export(r.Context())
	if err != nil {
		writeError(w, "export", err)
		return
	}
	data, err := p.Encode()
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.FileName(time.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ImportBackup handles POST /api/backup. The body is a backup file.
//
//	@Summary		Import a backup file
//	@Tags			backup
//	@Accept			json
//	@Produce		json
//	@Param			mode	query		string	false	"Import mode"	Enums(merge, replace)
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backup [post]
func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	mode, err := backup.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, "import", err)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBackupBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	n, err := h.svc.Import(r.Context(), raw, mode)
	if err != nil {
		writeError(w, "import", err, slog.String("mode", string(mode)))
		return
	}
	slog.Info("backup imported", slog.Int("notes", n), slog.String("mode", string(mode)))
	writeJSON(w, http.StatusOK, ImportResponse{Imported: n, Mode: string(mode)})
}

// ListBackups handles GET /api/backups.
//
//	@Summary		List archived backups
//	@Tags			backup
//	@Produce		json
//	@Success		200	{object}	BackupsResponse
//	@Security		BearerAuth
//	@Router			/backups [get]
func (h *Handler) ListBackups(w http.ResponseWriter, _ *http.Request) {
	entries, err := h.archive.List()
	if err != nil {
		writeError(w, "list backups", err)
		return
	}
	writeJSON(w, http.StatusOK, BackupsResponse{Backups: entries})
}

// CreateBackup handles POST /api/backups.
//
//	@Summary		Write a backup into the archive
//	@Tags			backup
//	@Produce		json
//	@Success		201	{object}	storage.Entry
//	@Security		BearerAuth
//	@Router			/backups [post]
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Snapshot(r.Context(), h.archive)
	if err != nil {
		writeError(w, "create backup", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// GetBackup handles GET /api/backups/{name}.
//
//	@Summary		Download an archived backup
//	@Tags			backup
//	@Produce		json
//	@Param			name	path	string	true	"Backup file name"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/{name} [get]
func (h *Handler) GetBackup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	data, err := h.archive.Read(name)
	if err != nil {
		slog.Debug("read backup failed", slog.String("name", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
