// Package backup decodes and encodes note backups and watches an inbox
// directory for new backup files.
package backup

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/parser"
	"github.com/starford/notechain/internal/split"
)

// CurrentVersion is written into exported documents.
const CurrentVersion = 1

// Document is a backup: a list of notes plus the label catalogue.
type Document struct {
	Version int       `json:"version" yaml:"version"`
	Notes   []NoteDoc `json:"notes" yaml:"notes"`
	Labels  []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// NoteDoc is one note as it appears in a backup. ID is the note's id in the
// system that produced the backup; links between backed-up notes use it.
type NoteDoc struct {
	ID                int64         `json:"id" yaml:"id"`
	Type              string        `json:"type" yaml:"type"`
	Folder            string        `json:"folder,omitempty" yaml:"folder,omitempty"`
	Title             string        `json:"title" yaml:"title"`
	Body              string        `json:"body,omitempty" yaml:"body,omitempty"`
	Spans             []models.Span `json:"spans,omitempty" yaml:"spans,omitempty"`
	Items             []models.Item `json:"items,omitempty" yaml:"items,omitempty"`
	Labels            []string      `json:"labels,omitempty" yaml:"labels,omitempty"`
	Pinned            bool          `json:"pinned,omitempty" yaml:"pinned,omitempty"`
	Timestamp         int64         `json:"timestamp" yaml:"timestamp"`
	ModifiedTimestamp int64         `json:"modifiedTimestamp" yaml:"modifiedTimestamp"`
}

// Validate validates the document.
func (d Document) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Version, validation.Min(0), validation.Max(CurrentVersion)),
		validation.Field(&d.Notes),
	)
}

// Validate validates a single note entry.
func (n NoteDoc) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ID, validation.Min(int64(0))),
		validation.Field(&n.Type, validation.In(string(models.KindText), string(models.KindChecklist))),
		validation.Field(&n.Folder, validation.In(string(models.FolderNotes), string(models.FolderArchived), string(models.FolderDeleted))),
	)
}

// Note converts the entry into an unsaved note.
func (n NoteDoc) Note() *models.Note {
	kind := models.Kind(n.Type)
	if kind == "" {
		kind = models.KindText
	}
	folder := models.Folder(n.Folder)
	if folder == "" {
		folder = models.FolderNotes
	}
	out := &models.Note{
		Kind:   kind,
		Folder: folder,
		Title:  n.Title,
		Body:   n.Body,
		Spans:  n.Spans,
		Items:  n.Items,
		Labels: n.Labels,
		Pinned: n.Pinned,
	}
	if n.Timestamp > 0 {
		out.CreatedAt = time.UnixMilli(n.Timestamp).UTC()
	}
	if n.ModifiedTimestamp > 0 {
		out.ModifiedAt = time.UnixMilli(n.ModifiedTimestamp).UTC()
	}
	return out
}

// Sources returns the document's notes as an import batch, in document order.
func (d *Document) Sources() []split.SourceNote {
	out := make([]split.SourceNote, len(d.Notes))
	for i, n := range d.Notes {
		out[i] = split.SourceNote{OriginalID: n.ID, Note: n.Note()}
	}
	return out
}

// AllLabels returns the label catalogue merged with labels used by notes.
func (d *Document) AllLabels() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(l string) {
		if _, ok := seen[l]; ok || l == "" {
			return
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	for _, l := range d.Labels {
		add(l)
	}
	for _, n := range d.Notes {
		for _, l := range n.Labels {
			add(l)
		}
	}
	return out
}

// Decode parses a backup file. Markdown files become a one-note document;
// everything else is read as YAML, which also accepts JSON.
func Decode(name string, data []byte) (*Document, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		res, err := parser.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("backup: parse %s: %w", name, err)
		}
		if res.Title == "" {
			res.Title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		}
		return &Document{Version: CurrentVersion, Notes: []NoteDoc{FromNote(res.Note())}, Labels: res.Labels}, nil
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("backup: decode %s: %w", name, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("backup: invalid %s: %w", name, err)
	}
	return &doc, nil
}

// FromNote converts a stored note into a backup entry.
func FromNote(n *models.Note) NoteDoc {
	doc := NoteDoc{
		ID:     n.ID,
		Type:   string(n.Kind),
		Folder: string(n.Folder),
		Title:  n.Title,
		Body:   n.Body,
		Spans:  n.Spans,
		Items:  n.Items,
		Labels: n.Labels,
		Pinned: n.Pinned,
	}
	if !n.CreatedAt.IsZero() {
		doc.Timestamp = n.CreatedAt.UnixMilli()
	}
	if !n.ModifiedAt.IsZero() {
		doc.ModifiedTimestamp = n.ModifiedAt.UnixMilli()
	}
	return doc
}

// Encode renders notes and labels as an indented JSON backup.
func Encode(notes []*models.Note, labels []string) ([]byte, error) {
	doc := Document{Version: CurrentVersion, Notes: make([]NoteDoc, len(notes)), Labels: labels}
	for i, n := range notes {
		doc.Notes[i] = FromNote(n)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: encode: %w", err)
	}
	return b, nil
}
