package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/starford/notechain/internal/migrate"
	"github.com/starford/notechain/internal/storage"
)

const maxUploadBytes = 50 << 20 // 50 MB

// Maintenance runs store-wide migration and repair passes.
type Maintenance interface {
	Run(ctx context.Context) (*migrate.Report, error)
	RepairAll(ctx context.Context) (*migrate.Report, error)
}

// backupName validates that name is a plain file name (no path separators,
// no traversal) with an importable extension.
func backupName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if !storage.Importable(cleaned) {
		return "", fmt.Errorf("unsupported backup type: %s", filepath.Ext(cleaned))
	}
	return cleaned, nil
}

// Import handles POST /api/import?name=backup.json with the raw file as body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	name, err := backupName(r.URL.Query().Get("name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or unreadable"))
		return
	}
	h.importData(w, r, name, data)
}

// Upload handles POST /api/import/upload (multipart/form-data, field "file").
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, err := backupName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to read file"))
		return
	}
	h.importData(w, r, name, data)
}

func (h *Handler) importData(w http.ResponseWriter, r *http.Request, name string, data []byte) {
	summary, err := h.svc.ImportFile(r.Context(), name, data)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

// Export handles GET /api/export and downloads a JSON backup of every note.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportBackup(r.Context())
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="notechain-backup.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// MaintenanceHandler exposes migration and repair runs.
type MaintenanceHandler struct {
	m Maintenance
}

// Migrate handles POST /api/migrate.
func (h *MaintenanceHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	report, err := h.m.Run(r.Context())
	if err != nil {
		writeError(w, "migrate", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Repair handles POST /api/repair.
func (h *MaintenanceHandler) Repair(w http.ResponseWriter, r *http.Request) {
	report, err := h.m.RepairAll(r.Context())
	if err != nil {
		writeError(w, "repair", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
