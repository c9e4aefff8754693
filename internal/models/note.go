// Package models defines the domain types for notechain.
package models

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/starford/notechain/internal/apperr"
)

// Kind distinguishes free-text notes from checklists.
type Kind string

// Note kinds. The string values double as the KIND segment of note:// references.
const (
	KindText      Kind = "NOTE"
	KindChecklist Kind = "LIST"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindText || k == KindChecklist
}

// Folder is the top-level bucket a note lives in.
type Folder string

// Folders.
const (
	FolderNotes    Folder = "NOTES"
	FolderArchived Folder = "ARCHIVED"
	FolderDeleted  Folder = "DELETED"
)

// Valid reports whether f is a known folder.
func (f Folder) Valid() bool {
	switch f {
	case FolderNotes, FolderArchived, FolderDeleted:
		return true
	}
	return false
}

// Span is a formatting or link annotation over the half-open rune range [Start, End) of a body.
type Span struct {
	Start         int    `json:"start" yaml:"start"`
	End           int    `json:"end" yaml:"end"`
	Bold          bool   `json:"bold,omitempty" yaml:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty" yaml:"italic,omitempty"`
	Monospace     bool   `json:"monospace,omitempty" yaml:"monospace,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty" yaml:"strikethrough,omitempty"`
	Link          bool   `json:"link,omitempty" yaml:"link,omitempty"`
	LinkData      string `json:"linkData,omitempty" yaml:"linkData,omitempty"`
}

// Meaningful reports whether the span carries any formatting or is a link.
func (s Span) Meaningful() bool {
	return s.Bold || s.Italic || s.Monospace || s.Strikethrough || s.Link
}

// Item is a single checklist entry.
type Item struct {
	Body    string `json:"body" yaml:"body"`
	Checked bool   `json:"checked" yaml:"checked"`
	IsChild bool   `json:"isChild,omitempty" yaml:"isChild,omitempty"`
	Order   int    `json:"order" yaml:"order"`
}

// Note is a stored note. ID 0 means the note has not been persisted yet.
type Note struct {
	ID         int64     `json:"id"`
	Kind       Kind      `json:"kind"`
	Folder     Folder    `json:"folder"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Spans      []Span    `json:"spans"`
	Items      []Item    `json:"items"`
	Labels     []string  `json:"labels"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// BodyLen returns the body length in Unicode code points, the unit every size
// ceiling and span offset in this module is measured in.
func (n *Note) BodyLen() int {
	return utf8.RuneCountInString(n.Body)
}

// Splittable reports whether the note's body is subject to the size ceiling.
func (n *Note) Splittable() bool {
	return n.Kind == KindText
}

// Validate checks the invariants every stored note holds: a known kind and
// folder, no body on checklists, and spans inside [0, BodyLen].
func (n *Note) Validate() error {
	if !n.Kind.Valid() {
		return fmt.Errorf("unknown kind %q: %w", n.Kind, apperr.ErrInvalidArgument)
	}
	if !n.Folder.Valid() {
		return fmt.Errorf("unknown folder %q: %w", n.Folder, apperr.ErrInvalidArgument)
	}
	if n.Kind == KindChecklist && n.Body != "" {
		return fmt.Errorf("checklist notes carry items, not a body: %w", apperr.ErrInvalidArgument)
	}
	length := n.BodyLen()
	for i, sp := range n.Spans {
		if sp.Start < 0 || sp.Start > sp.End || sp.End > length {
			return fmt.Errorf("span %d [%d,%d) outside body of %d: %w", i, sp.Start, sp.End, length, apperr.ErrInvalidArgument)
		}
	}
	return nil
}

// Clone returns a deep copy of n.
func (n *Note) Clone() *Note {
	c := *n
	c.Spans = append([]Span(nil), n.Spans...)
	c.Items = append([]Item(nil), n.Items...)
	c.Labels = append([]string(nil), n.Labels...)
	return &c
}

// NoteLabels is the label-only projection used by bulk relabelling.
type NoteLabels struct {
	ID     int64
	Labels []string
}

// NoteSummary is a lightweight representation returned by list operations.
// It never carries the body, so oversized rows can still be listed.
type NoteSummary struct {
	ID         int64     `json:"id"`
	Kind       Kind      `json:"kind"`
	Folder     Folder    `json:"folder"`
	Title      string    `json:"title"`
	Labels     []string  `json:"labels"`
	Pinned     bool      `json:"pinned"`
	BodyChars  int       `json:"body_chars"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}
