// Package noteref encodes and parses note:// cross-note references carried in link spans.
package noteref

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/notechain/internal/models"
)

// Scheme prefixes every note reference.
const Scheme = "note://"

// ErrNotNoteURL is returned by Parse for strings that are not note references.
var ErrNotNoteURL = errors.New("noteref: not a note url")

// Encode returns the reference for the note with the given id and kind,
// e.g. "note://42/NOTE".
func Encode(id int64, kind models.Kind) string {
	return Scheme + strconv.FormatInt(id, 10) + "/" + string(kind)
}

// IsNoteURL reports whether s uses the note:// scheme.
func IsNoteURL(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// Parse extracts the target id and kind from a note reference. The id is the
// text between the scheme and the first "/", the kind is the text after the last "/".
func Parse(s string) (int64, models.Kind, error) {
	if !IsNoteURL(s) {
		return 0, "", ErrNotNoteURL
	}
	rest := strings.TrimPrefix(s, Scheme)
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return 0, "", fmt.Errorf("noteref: missing kind in %q: %w", s, ErrNotNoteURL)
	}
	id, err := strconv.ParseInt(rest[:slash], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("noteref: bad id in %q: %w", s, ErrNotNoteURL)
	}
	kind := models.Kind(rest[strings.LastIndex(rest, "/")+1:])
	if !kind.Valid() {
		return 0, "", fmt.Errorf("noteref: unknown kind %q: %w", kind, ErrNotNoteURL)
	}
	return id, kind, nil
}
