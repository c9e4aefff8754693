// Package storage defines the inbox file-system abstraction used for backup
// import and export.
package storage

import (
	"path/filepath"
	"strings"
	"time"
)

// Subdirectories of the inbox that processed files are moved into.
const (
	ImportedDir = "imported"
	FailedDir   = "failed"
)

// FileInfo describes one importable file.
type FileInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for inbox file operations.
type Provider interface {
	// List returns every importable file under dir (relative to the root),
	// skipping the imported/ and failed/ subtrees.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to the root).
	Move(oldPath, newPath string) error
}

// Importable reports whether name has an extension the importer understands.
func Importable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml", ".md", ".markdown":
		return true
	}
	return false
}
