package backup

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/notechain/internal/models"
)

const sampleJSON = `{
  "version": 1,
  "labels": ["work"],
  "notes": [
    {
      "id": 11,
      "type": "NOTE",
      "folder": "NOTES",
      "title": "Plan",
      "body": "see details",
      "spans": [{"start": 4, "end": 11, "link": true, "linkData": "note://12/NOTE"}],
      "labels": ["work", "q3"],
      "pinned": true,
      "timestamp": 1700000000000,
      "modifiedTimestamp": 1700000001000
    },
    {
      "id": 12,
      "type": "LIST",
      "title": "Todo",
      "items": [{"body": "ship", "checked": false, "order": 0}],
      "timestamp": 1700000000000,
      "modifiedTimestamp": 1700000000000
    }
  ]
}`

func TestDecode_JSON(t *testing.T) {
	doc, err := Decode("backup.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	src := doc.Sources()
	if len(src) != 2 || src[0].OriginalID != 11 || src[1].OriginalID != 12 {
		t.Fatalf("sources = %+v", src)
	}
	plan := src[0].Note
	want := &models.Note{
		Kind:       models.KindText,
		Folder:     models.FolderNotes,
		Title:      "Plan",
		Body:       "see details",
		Spans:      []models.Span{{Start: 4, End: 11, Link: true, LinkData: "note://12/NOTE"}},
		Labels:     []string{"work", "q3"},
		Pinned:     true,
		CreatedAt:  time.UnixMilli(1700000000000).UTC(),
		ModifiedAt: time.UnixMilli(1700000001000).UTC(),
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("note (-want +got):\n%s", diff)
	}
	if list := src[1].Note; list.Kind != models.KindChecklist || list.Folder != models.FolderNotes || len(list.Items) != 1 {
		t.Errorf("checklist = %+v", list)
	}
	if diff := cmp.Diff([]string{"work", "q3"}, doc.AllLabels()); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
}

func TestDecode_YAML(t *testing.T) {
	data := "version: 1\nnotes:\n  - id: 3\n    type: NOTE\n    title: From YAML\n    body: hello\n    spans:\n      - {start: 0, end: 5, bold: true}\n"
	doc, err := Decode("backup.yaml", []byte(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	n := doc.Sources()[0].Note
	if n.Title != "From YAML" || len(n.Spans) != 1 || !n.Spans[0].Bold {
		t.Errorf("note = %+v", n)
	}
}

func TestDecode_Markdown(t *testing.T) {
	doc, err := Decode("notes/meeting.md", []byte("Agenda **first**\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	src := doc.Sources()
	if len(src) != 1 || src[0].OriginalID != 0 {
		t.Fatalf("sources = %+v", src)
	}
	if n := src[0].Note; n.Title != "meeting" || n.Body != "Agenda first" {
		t.Errorf("note = %+v", n)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad type":    `{"notes": [{"id": 1, "type": "AUDIO"}]}`,
		"bad folder":  `{"notes": [{"id": 1, "type": "NOTE", "folder": "TRASH"}]}`,
		"negative id": `{"notes": [{"id": -4}]}`,
		"future":      `{"version": 9, "notes": []}`,
		"syntax":      `{"notes": [`,
	}
	for name, data := range cases {
		if _, err := Decode("x.json", []byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEncode_ReadableByDecode(t *testing.T) {
	notes := []*models.Note{{
		ID:     5,
		Kind:   models.KindText,
		Folder: models.FolderArchived,
		Title:  "Old",
		Body:   "body",
		Spans:  []models.Span{{Start: 0, End: 4, Italic: true}},
	}}
	data, err := Encode(notes, []string{"x"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"modifiedTimestamp"`) {
		t.Errorf("missing modifiedTimestamp key: %s", data)
	}
	doc, err := Decode("export.json", data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := doc.Sources()[0]
	if got.OriginalID != 5 || got.Note.Folder != models.FolderArchived || !got.Note.Spans[0].Italic {
		t.Errorf("source = %+v", got)
	}
}
