package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notechain/internal/export"
	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// noteID parses the {id} URL parameter, writing a 400 response when it is not
// a positive integer.
func noteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return 0, false
	}
	return id, true
}

func writeNote(w http.ResponseWriter, status int, d *noteservice.NoteDetail) {
	w.Header().Set("ETag", `"`+d.ETag()+`"`)
	writeJSON(w, status, d)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination and filtering
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			label	query		string	false	"Filter by label"
//	@Param			folder	query		string	false	"Folder"	Enums(NOTES, ARCHIVED, DELETED)
//	@Param			sort	query		string	false	"Sort field"	Enums(modified, created, title)
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset, q.Get("label"), models.Folder(q.Get("folder")), q.Get("sort"))
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		int	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	note, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeNote(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes. Oversized text notes are stored as a
// chain of parts; the response is the head part and lists every part id.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Note())
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeNote(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		int			true	"Note id"
//	@Param			If-Match	header		string		false	"ETag of the version being replaced"
//	@Param			body		body		NoteRequest	true	"Updated note"
//	@Success		200			{object}	NoteDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), id, req.Note(), ifMatch)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeNote(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}. The note moves to the DELETED
// folder; ?purge=true removes it permanently.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id		path	int		true	"Note id"
//	@Param			purge	query	bool	false	"Remove permanently"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var err error
	if purge, _ := strconv.ParseBool(r.URL.Query().Get("purge")); purge {
		err = h.svc.PurgeNote(r.Context(), id)
	} else {
		err = h.svc.DeleteNote(r.Context(), id)
	}
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveNote handles POST /api/notes/{id}/move.
func (h *Handler) MoveNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.MoveNote(r.Context(), id, req.Folder); err != nil {
		writeError(w, "move note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Chain handles GET /api/notes/{id}/chain.
//
//	@Summary		List the parts of a split note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		int	true	"Head part id"
//	@Success		200	{object}	ChainResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/chain [get]
func (h *Handler) Chain(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	parts, err := h.svc.Chain(r.Context(), id)
	if err != nil {
		writeError(w, "chain", err)
		return
	}
	writeJSON(w, http.StatusOK, ChainResponse{Parts: parts})
}

// ExportNote handles GET /api/notes/{id}/export?format=md|txt|html.
func (h *Handler) ExportNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, "export note", err)
		return
	}
	out, err := h.svc.ExportNote(r.Context(), id, format)
	if err != nil {
		writeError(w, "export note", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
