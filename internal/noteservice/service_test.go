package noteservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/export"
	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/noteref"
	"github.com/starford/notechain/internal/split"
	"github.com/starford/notechain/internal/store"
	"github.com/starford/notechain/internal/testutil"
)

const testMaxLen = 100

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishNoteEvent(kind string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s:%d", kind, id))
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

type testEnv struct {
	svc    *Service
	db     *store.DB
	events *recorder
}

func setupService(t *testing.T, opts ...store.Option) *testEnv {
	t.Helper()
	db := testutil.TestDB(t, opts...)
	rec := &recorder{}
	svc := NewService(db, testutil.TestSplitter(t, testMaxLen), testutil.Logger(), WithNotifier(rec))
	return &testEnv{svc: svc, db: db, events: rec}
}

func textNote(title, body string) *models.Note {
	return &models.Note{Kind: models.KindText, Title: title, Body: body}
}

func TestCreateAndGet(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	d, err := env.svc.CreateNote(ctx, &models.Note{
		Title:  "Hello",
		Body:   "hello world",
		Spans:  []models.Span{{Start: 0, End: 5, Bold: true}},
		Labels: []string{"greeting"},
	})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if d.ID == 0 || d.Kind != models.KindText || d.Folder != models.FolderNotes {
		t.Errorf("unexpected detail: %+v", d)
	}
	if d.Parts != nil || d.NextPart != 0 {
		t.Errorf("small note was split: %+v", d)
	}

	got, err := env.svc.GetNote(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if diff := cmp.Diff(d.Spans, got.Spans); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
	labels, _ := env.svc.Labels(ctx)
	if diff := cmp.Diff([]string{"greeting"}, labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
	if !env.events.has(fmt.Sprintf("%s:%d", EventCreated, d.ID)) {
		t.Errorf("no created event: %v", env.events.events)
	}
}

func TestCreateNote_SplitsOversized(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	body := strings.Repeat("a", testMaxLen+25)
	d, err := env.svc.CreateNote(ctx, textNote("Log", body))
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if len(d.Parts) != 2 || d.Parts[0] != d.ID {
		t.Fatalf("parts = %v, head %d", d.Parts, d.ID)
	}
	if d.BodyLen() != testMaxLen || !strings.HasSuffix(d.Body, split.LinkText) {
		t.Errorf("head body len %d: %q", d.BodyLen(), d.Body)
	}
	if d.NextPart != d.Parts[1] {
		t.Errorf("next part = %d, want %d", d.NextPart, d.Parts[1])
	}

	chain, err := env.svc.Chain(ctx, d.ID)
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	if len(chain) != 2 || chain[1].Title != "Log (1)" {
		t.Fatalf("chain = %+v", chain)
	}
	var joined string
	for _, p := range chain {
		joined += strings.TrimSuffix(p.Body, split.LinkText)
	}
	if joined != body {
		t.Error("chain does not reassemble the body")
	}
	if !env.events.has(fmt.Sprintf("%s:%d", EventSplit, d.ID)) {
		t.Errorf("no split event: %v", env.events.events)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	cases := map[string]*models.Note{
		"bad kind":       {Kind: "MEMO", Title: "x"},
		"bad folder":     {Folder: "TRASH", Title: "x"},
		"checklist body": {Kind: models.KindChecklist, Title: "x", Body: "text"},
		"span past end":  {Title: "x", Body: "abc", Spans: []models.Span{{Start: 1, End: 9, Bold: true}}},
		"inverted span":  {Title: "x", Body: "abc", Spans: []models.Span{{Start: 2, End: 1}}},
	}
	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := env.svc.CreateNote(ctx, n); !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestCreateChecklist_NeverSplit(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	items := []models.Item{{Body: strings.Repeat("x", testMaxLen*2), Order: 0}}
	d, err := env.svc.CreateNote(ctx, &models.Note{Kind: models.KindChecklist, Title: "List", Items: items})
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if d.Parts != nil || len(d.Items) != 1 {
		t.Errorf("checklist detail = %+v", d)
	}
}

func TestUpdateNote_Conflict(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	d, err := env.svc.CreateNote(ctx, textNote("A", "one"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.UpdateNote(ctx, d.ID, textNote("A", "two"), "12345"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale etag: err = %v, want ErrConflict", err)
	}
	up, err := env.svc.UpdateNote(ctx, d.ID, textNote("A", "two"), d.ETag())
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if up.Body != "two" || !up.CreatedAt.Equal(d.CreatedAt) {
		t.Errorf("updated = %+v", up)
	}
	if _, err := env.svc.UpdateNote(ctx, 9999, textNote("A", "x"), ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note: err = %v", err)
	}
}

func TestUpdateNote_SplitsInPlace(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000).UTC()
	env := setupService(t)
	env.svc.now = func() time.Time { now = now.Add(time.Second); return now }
	ctx := context.Background()

	d, err := env.svc.CreateNote(ctx, textNote("Diary", "short"))
	if err != nil {
		t.Fatal(err)
	}
	up, err := env.svc.UpdateNote(ctx, d.ID, textNote("Diary", strings.Repeat("b", 250)), "")
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if up.ID != d.ID || len(up.Parts) != 3 || up.Parts[0] != d.ID {
		t.Fatalf("update kept id %d, parts %v", up.ID, up.Parts)
	}
	for _, id := range up.Parts {
		p, err := env.svc.GetNote(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if p.BodyLen() > testMaxLen {
			t.Errorf("part %d has %d chars", id, p.BodyLen())
		}
	}
}

func TestGetNote_RepairsOversizedRow(t *testing.T) {
	env := setupService(t, store.WithReadLimit(4*testMaxLen))
	ctx := context.Background()

	var id int64
	err := env.db.InTx(ctx, func(q *store.Queries) error {
		var err error
		id, err = q.Insert(ctx, &models.Note{
			Kind:  models.KindText,
			Title: "Huge",
			Body:  strings.Repeat("z", 1000),
			Spans: []models.Span{{Start: 0, End: 10, Italic: true}, {Start: 500, End: 600, Bold: true}},
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	d, err := env.svc.GetNote(ctx, id)
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if !d.Repaired || d.BodyLen() != testMaxLen {
		t.Errorf("repaired=%v len=%d", d.Repaired, d.BodyLen())
	}
	if diff := cmp.Diff([]models.Span{{Start: 0, End: 10, Italic: true}}, d.Spans); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
}

func TestDeleteMovePurge(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	d, err := env.svc.CreateNote(ctx, textNote("Old", "bye"))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.svc.DeleteNote(ctx, d.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	items, total, err := env.svc.ListNotes(ctx, 10, 0, "", "", "")
	if err != nil || total != 0 || len(items) != 0 {
		t.Errorf("deleted note still listed: %v %d %v", items, total, err)
	}
	_, total, _ = env.svc.ListNotes(ctx, 10, 0, "", models.FolderDeleted, "")
	if total != 1 {
		t.Errorf("deleted folder total = %d", total)
	}

	if err := env.svc.MoveNote(ctx, d.ID, "ELSEWHERE"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("bad folder: err = %v", err)
	}
	if err := env.svc.PurgeNote(ctx, d.ID); err != nil {
		t.Fatalf("PurgeNote: %v", err)
	}
	if _, err := env.svc.GetNote(ctx, d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("purged note: err = %v", err)
	}
	if err := env.svc.PurgeNote(ctx, d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second purge: err = %v", err)
	}
}

func TestLabels_DeleteAndRename(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	a, _ := env.svc.CreateNote(ctx, &models.Note{Title: "a", Body: "x", Labels: []string{"work", "todo"}})
	b, _ := env.svc.CreateNote(ctx, &models.Note{Title: "b", Body: "y", Labels: []string{"todo"}})
	c, _ := env.svc.CreateNote(ctx, &models.Note{Title: "c", Body: "z", Labels: []string{"home"}})

	n, err := env.svc.UpdateLabel(ctx, "todo", "work")
	if err != nil || n != 2 {
		t.Fatalf("UpdateLabel = %d, %v", n, err)
	}
	got, _ := env.svc.GetNote(ctx, a.ID)
	if diff := cmp.Diff([]string{"work"}, got.Labels); diff != "" {
		t.Errorf("merged labels (-want +got):\n%s", diff)
	}
	got, _ = env.svc.GetNote(ctx, b.ID)
	if diff := cmp.Diff([]string{"work"}, got.Labels); diff != "" {
		t.Errorf("renamed labels (-want +got):\n%s", diff)
	}

	n, err = env.svc.DeleteLabel(ctx, "work")
	if err != nil || n != 2 {
		t.Fatalf("DeleteLabel = %d, %v", n, err)
	}
	got, _ = env.svc.GetNote(ctx, a.ID)
	if len(got.Labels) != 0 || got.Body != "x" {
		t.Errorf("after delete: %+v", got)
	}
	got, _ = env.svc.GetNote(ctx, c.ID)
	if diff := cmp.Diff([]string{"home"}, got.Labels); diff != "" {
		t.Errorf("untouched note (-want +got):\n%s", diff)
	}

	labels, _ := env.svc.Labels(ctx)
	if diff := cmp.Diff([]string{"home"}, labels); diff != "" {
		t.Errorf("catalogue (-want +got):\n%s", diff)
	}
	if _, err := env.svc.DeleteLabel(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown label: err = %v", err)
	}
	if _, err := env.svc.UpdateLabel(ctx, "home", " "); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("empty rename: err = %v", err)
	}
}

func backupJSON(t *testing.T) []byte {
	t.Helper()
	doc := map[string]any{
		"version": 1,
		"labels":  []string{"imported"},
		"notes": []map[string]any{
			{
				"id": 10, "type": "NOTE", "title": "A",
				"body": "see B " + strings.Repeat("a", testMaxLen),
				"spans": []models.Span{
					{Start: 4, End: 5, Link: true, LinkData: noteref.Encode(20, models.KindText)},
				},
			},
			{"id": 20, "type": "NOTE", "title": "B", "body": strings.Repeat("b", testMaxLen+10)},
			{"id": 30, "type": "LIST", "title": "C", "items": []models.Item{{Body: "milk"}}},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestImportFile_RelinksAndDedupes(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	data := backupJSON(t)

	sum, err := env.svc.ImportFile(ctx, "backup.json", data)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if sum.Notes != 3 || sum.Imported != 3 || len(sum.Failed) != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Parts != 5 || sum.Relinked != 1 {
		t.Errorf("parts=%d relinked=%d", sum.Parts, sum.Relinked)
	}

	a, err := env.svc.GetNote(ctx, sum.IDMap[10])
	if err != nil {
		t.Fatal(err)
	}
	id, kind, err := noteref.Parse(a.Spans[0].LinkData)
	if err != nil || id != sum.IDMap[20] || kind != models.KindText {
		t.Errorf("link = %q, want note %d", a.Spans[0].LinkData, sum.IDMap[20])
	}

	if _, err := env.svc.ImportFile(ctx, "again.json", data); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("reimport: err = %v, want ErrAlreadyExists", err)
	}
	if _, err := env.svc.ImportFile(ctx, "bad.json", []byte(`{"version": 1, "notes": [{"type": "MEMO"}]}`)); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("invalid backup: err = %v", err)
	}
}

func TestImportFile_RejectsBrokenNotes(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	data := []byte(`{"version": 1, "notes": [
		{"id": 1, "type": "NOTE", "title": "wide", "body": "abc", "spans": [{"start": -2, "end": 50, "bold": true}]},
		{"id": 2, "type": "LIST", "title": "list", "body": "checklist with a body"}
	]}`)

	sum, err := env.svc.ImportFile(ctx, "broken.json", data)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if sum.Imported != 0 || len(sum.Failed) != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	items, _, err := env.svc.ListNotes(ctx, 0, 0, "", models.FolderNotes, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("stored %d notes from a broken backup", len(items))
	}
}

func TestExportBackup_RoundTrip(t *testing.T) {
	src := setupService(t)
	ctx := context.Background()
	head, err := src.svc.CreateNote(ctx, &models.Note{Title: "x", Body: strings.Repeat("q", 150), Labels: []string{"l"}})
	if err != nil {
		t.Fatal(err)
	}
	data, err := src.svc.ExportBackup(ctx)
	if err != nil {
		t.Fatalf("ExportBackup: %v", err)
	}

	dst := setupService(t)
	sum, err := dst.svc.ImportFile(ctx, "export.json", data)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if sum.Notes != 2 || sum.Parts != 2 || len(sum.Failed) != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	// Navigation links in the export refer to source ids and are retargeted.
	chain, err := dst.svc.Chain(ctx, sum.IDMap[head.ID])
	if err != nil || len(chain) != 2 {
		t.Fatalf("chain = %v, %v", chain, err)
	}
	labels, _ := dst.svc.Labels(ctx)
	if diff := cmp.Diff([]string{"l"}, labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
}

func TestExportNote(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	d, _ := env.svc.CreateNote(ctx, &models.Note{Title: "T", Body: "hi there", Spans: []models.Span{{Start: 0, End: 2, Bold: true}}})

	md, err := env.svc.ExportNote(ctx, d.ID, export.FormatMarkdown)
	if err != nil {
		t.Fatalf("ExportNote: %v", err)
	}
	if string(md) != "# T\n\n**hi** there" {
		t.Errorf("markdown = %q", md)
	}
	if _, err := env.svc.ExportNote(ctx, 404, export.FormatText); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
}

func TestCreateMarkdown(t *testing.T) {
	env := setupService(t)
	d, err := env.svc.CreateMarkdown(context.Background(), []byte("plain *text*"), "Fallback")
	if err != nil {
		t.Fatalf("CreateMarkdown: %v", err)
	}
	if d.Title != "Fallback" || d.Body != "plain text" || len(d.Spans) != 1 {
		t.Errorf("detail = %+v", d)
	}
}
