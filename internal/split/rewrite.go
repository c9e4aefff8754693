package split

import (
	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/noteref"
)

// IDMap maps a note's identifier before an operation to the identifier of its
// first part afterwards. It lives for one operation only.
type IDMap map[int64]int64

// RemapLinks retargets note-reference links whose target id is in ids, keeping
// the target kind. Links to ids outside the map, non-link spans and link data
// that is not a note reference are returned unchanged. changed reports whether
// any span's link data actually differs from its input.
func RemapLinks(spans []models.Span, ids IDMap) (changed bool, out []models.Span) {
	out = make([]models.Span, len(spans))
	copy(out, spans)
	if len(ids) == 0 {
		return false, out
	}
	for i, s := range out {
		if !s.Link || s.LinkData == "" {
			continue
		}
		id, kind, err := noteref.Parse(s.LinkData)
		if err != nil {
			continue
		}
		newID, ok := ids[id]
		if !ok {
			continue
		}
		if ref := noteref.Encode(newID, kind); ref != s.LinkData {
			out[i].LinkData = ref
			changed = true
		}
	}
	return changed, out
}
