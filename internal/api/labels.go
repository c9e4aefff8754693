package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

func labelName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// ListLabels handles GET /api/labels.
func (h *Handler) ListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.svc.Labels(r.Context())
	if err != nil {
		writeError(w, "list labels", err)
		return
	}
	writeJSON(w, http.StatusOK, LabelsResponse{Labels: labels})
}

// CreateLabel handles POST /api/labels.
func (h *Handler) CreateLabel(w http.ResponseWriter, r *http.Request) {
	var req LabelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.CreateLabel(r.Context(), req.Name); err != nil {
		writeError(w, "create label", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// RenameLabel handles PUT /api/labels/{name}. Every note carrying the label
// is relabelled; bodies and spans are left alone.
func (h *Handler) RenameLabel(w http.ResponseWriter, r *http.Request) {
	var req LabelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.UpdateLabel(r.Context(), labelName(r), req.Name)
	if err != nil {
		writeError(w, "rename label", err)
		return
	}
	writeJSON(w, http.StatusOK, RelabelResponse{Notes: n})
}

// DeleteLabel handles DELETE /api/labels/{name}.
func (h *Handler) DeleteLabel(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteLabel(r.Context(), labelName(r))
	if err != nil {
		writeError(w, "delete label", err)
		return
	}
	writeJSON(w, http.StatusOK, RelabelResponse{Notes: n})
}
