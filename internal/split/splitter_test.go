package split

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/notechain/internal/apperr"
	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/noteref"
)

const testMaxLen = 100

// memStore is an in-memory Store. Rows listed in oversized refuse Get until truncated.
type memStore struct {
	nextID    int64
	notes     map[int64]*models.Note
	oversized map[int64]bool
	failTitle string
	writes    int
}

func newMemStore() *memStore {
	return &memStore{notes: map[int64]*models.Note{}, oversized: map[int64]bool{}}
}

func (m *memStore) Get(_ context.Context, id int64) (*models.Note, error) {
	if m.oversized[id] {
		return nil, fmt.Errorf("get %d: %w", id, apperr.ErrOversizedRead)
	}
	n, ok := m.notes[id]
	if !ok {
		return nil, fmt.Errorf("get %d: %w", id, apperr.ErrNotFound)
	}
	return n.Clone(), nil
}

func (m *memStore) Insert(_ context.Context, n *models.Note) (int64, error) {
	if m.failTitle != "" && n.Title == m.failTitle {
		return 0, errors.New("disk full")
	}
	m.writes++
	c := n.Clone()
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
	} else if c.ID > m.nextID {
		m.nextID = c.ID
	}
	m.notes[c.ID] = c
	return c.ID, nil
}

func (m *memStore) UpdateSpans(_ context.Context, id int64, spans []models.Span) error {
	n, ok := m.notes[id]
	if !ok {
		return apperr.ErrNotFound
	}
	m.writes++
	n.Spans = append([]models.Span(nil), spans...)
	return nil
}

func (m *memStore) TruncateBody(_ context.Context, id int64, maxLen int) error {
	n, ok := m.notes[id]
	if !ok {
		return apperr.ErrNotFound
	}
	m.writes++
	if r := []rune(n.Body); len(r) > maxLen {
		n.Body = string(r[:maxLen])
	}
	delete(m.oversized, id)
	return nil
}

func testSplitter(t *testing.T) *Splitter {
	t.Helper()
	s, err := New(testMaxLen, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// chain follows navigation links from head and returns the parts in order.
func chain(t *testing.T, m *memStore, head int64) []*models.Note {
	t.Helper()
	var out []*models.Note
	seen := map[int64]bool{}
	for id, ok := head, true; ok; {
		if seen[id] {
			t.Fatalf("cycle at %d", id)
		}
		seen[id] = true
		n, found := m.notes[id]
		if !found {
			t.Fatalf("chain broken at %d", id)
		}
		out = append(out, n)
		id, ok = NextPart(n)
	}
	return out
}

func TestNew_RejectsTinyCeiling(t *testing.T) {
	if _, err := New(LinkTextLen, nil); !errors.Is(err, ErrInvalidChunkConfig) {
		t.Errorf("err = %v", err)
	}
}

func TestSplitForInsert_OverByTwentyFive(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	ctx := context.Background()
	src := &models.Note{Kind: models.KindText, Title: "Log", Body: strings.Repeat("x", testMaxLen+25), Labels: []string{"ops"}}

	res, err := s.SplitForInsert(ctx, m, src)
	if err != nil {
		t.Fatalf("SplitForInsert: %v", err)
	}
	if len(res.Inserted) != 2 || len(m.notes) != 2 {
		t.Fatalf("expected two parts, got %d", len(res.Inserted))
	}

	// Tail is inserted first.
	tail := m.notes[res.Inserted[0].ID]
	head := m.notes[res.FirstID]
	if res.Inserted[1].ID != res.FirstID {
		t.Errorf("head must be inserted last")
	}

	if got := head.BodyLen(); got != testMaxLen {
		t.Errorf("head len = %d, want %d", got, testMaxLen)
	}
	if !strings.HasSuffix(head.Body, LinkText) {
		t.Errorf("head does not end with link text")
	}
	if len(head.Spans) != 1 {
		t.Fatalf("head spans = %+v", head.Spans)
	}
	link := head.Spans[0]
	if link.Start != testMaxLen-len(LinkDisplayText) || link.End != testMaxLen || !link.Link {
		t.Errorf("link span = %+v", link)
	}
	if id, kind, err := noteref.Parse(link.LinkData); err != nil || id != tail.ID || kind != models.KindText {
		t.Errorf("link target = %q", link.LinkData)
	}

	if strings.HasSuffix(tail.Body, LinkText) {
		t.Errorf("tail must not carry a link")
	}
	if got := tail.BodyLen(); got != 25+LinkTextLen {
		t.Errorf("tail len = %d, want %d", got, 25+LinkTextLen)
	}
	if head.Title != "Log" || tail.Title != "Log (1)" {
		t.Errorf("titles = %q, %q", head.Title, tail.Title)
	}
	if diff := cmp.Diff([]string{"ops"}, tail.Labels); diff != "" {
		t.Errorf("tail labels (-want +got):\n%s", diff)
	}
}

func TestSplitForInsert_ChainPreservesContentAndSpans(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	ctx := context.Background()

	body := strings.Repeat("0123456789", 35) // 350 code points, four parts
	spans := []models.Span{
		{Start: 80, End: 90, Bold: true},
		{Start: 150, End: 340, Italic: true},
	}
	res, err := s.SplitForInsert(ctx, m, &models.Note{Kind: models.KindText, Title: "Long", Body: body, Spans: spans})
	if err != nil {
		t.Fatalf("SplitForInsert: %v", err)
	}

	parts := chain(t, m, res.FirstID)
	if len(parts) != 4 {
		t.Fatalf("parts = %d", len(parts))
	}
	var joined strings.Builder
	bold, italic := 0, 0
	for i, p := range parts {
		if p.BodyLen() > testMaxLen {
			t.Errorf("part %d over ceiling: %d", i, p.BodyLen())
		}
		joined.WriteString(strings.TrimSuffix(p.Body, LinkText))
		for _, sp := range p.Spans {
			switch {
			case sp.Bold:
				bold += sp.End - sp.Start
			case sp.Italic:
				italic += sp.End - sp.Start
			}
		}
		if want := PartTitle("Long", i); p.Title != want {
			t.Errorf("part %d title = %q, want %q", i, p.Title, want)
		}
	}
	if joined.String() != body {
		t.Errorf("content not preserved")
	}
	if bold != 10 || italic != 190 {
		t.Errorf("formatting coverage bold=%d italic=%d", bold, italic)
	}
}

func TestSplitForInsert_FittingNoteInsertedOnce(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	res, err := s.SplitForInsert(context.Background(), m, &models.Note{Kind: models.KindText, Title: "Short", Body: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Inserted) != 1 || m.notes[res.FirstID].Title != "Short" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSplitForInsert_RejectsChecklist(t *testing.T) {
	s := testSplitter(t)
	_, err := s.SplitForInsert(context.Background(), newMemStore(), &models.Note{Kind: models.KindChecklist})
	if !errors.Is(err, ErrNotSplittable) {
		t.Errorf("err = %v", err)
	}
}

func TestSplitExisting_KeepsHeadIDAndIsIdempotent(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	ctx := context.Background()

	id, _ := m.Insert(ctx, &models.Note{Kind: models.KindText, Title: "Big", Body: strings.Repeat("y", 3*testMaxLen)})
	n, _ := m.Get(ctx, id)

	created, err := s.SplitExisting(ctx, m, n)
	if err != nil {
		t.Fatalf("SplitExisting: %v", err)
	}
	if created != 3 {
		t.Errorf("created = %d, want 3", created)
	}
	parts := chain(t, m, id)
	if len(parts) != 4 || parts[0].ID != id {
		t.Fatalf("chain = %d parts starting at %d", len(parts), parts[0].ID)
	}

	writes := m.writes
	for _, p := range parts {
		again, err := s.SplitExisting(ctx, m, p.Clone())
		if err != nil || again != 0 {
			t.Errorf("second pass on %d: created=%d err=%v", p.ID, again, err)
		}
	}
	if m.writes != writes {
		t.Errorf("second pass wrote %d rows", m.writes-writes)
	}
}

func TestSplitExisting_SkipsChecklist(t *testing.T) {
	s := testSplitter(t)
	n := &models.Note{ID: 1, Kind: models.KindChecklist, Body: strings.Repeat("z", 500)}
	created, err := s.SplitExisting(context.Background(), newMemStore(), n)
	if err != nil || created != 0 {
		t.Errorf("created=%d err=%v", created, err)
	}
}

func TestImportBatch_RemapsForwardReference(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	ctx := context.Background()
	// Occupy ids so new ids differ from the source ids.
	for i := 0; i < 5; i++ {
		_, _ = m.Insert(ctx, &models.Note{Kind: models.KindText, Title: "existing"})
	}

	aBody := "see B " + strings.Repeat("a", 2*testMaxLen)
	a := &models.Note{
		Kind:   models.KindText,
		Folder: models.FolderNotes,
		Title:  "A",
		Body:   aBody,
		Spans: []models.Span{
			{Start: 4, End: 5, Link: true, LinkData: noteref.Encode(2, models.KindText)},
			{Start: 0, End: 3, Link: true, LinkData: noteref.Encode(4, models.KindText)}, // outside the batch
		},
	}
	b := &models.Note{Kind: models.KindText, Folder: models.FolderNotes, Title: "B", Body: strings.Repeat("b", 2*testMaxLen)}
	list := &models.Note{Kind: models.KindChecklist, Folder: models.FolderNotes, Title: "L", Items: []models.Item{{Body: "milk"}}}

	report, err := s.ImportBatch(ctx, m, []SourceNote{{OriginalID: 1, Note: a}, {OriginalID: 2, Note: b}, {OriginalID: 3, Note: list}})
	if err != nil {
		t.Fatalf("ImportBatch: %v", err)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("failures: %+v", report.Failed)
	}
	newB := report.IDMap[2]
	if newB == 0 || newB == 2 {
		t.Fatalf("IDMap = %v", report.IDMap)
	}
	if report.Relinked != 1 {
		t.Errorf("relinked = %d", report.Relinked)
	}

	headA := m.notes[report.IDMap[1]]
	if got := headA.Spans[0].LinkData; got != noteref.Encode(newB, models.KindText) {
		t.Errorf("A -> B link = %q, want note %d", got, newB)
	}
	if got := headA.Spans[1].LinkData; got != noteref.Encode(4, models.KindText) {
		t.Errorf("dangling link rewritten to %q", got)
	}
	// A's navigation link still targets A's second part.
	next, ok := NextPart(headA)
	if !ok || m.notes[next].Title != "A (1)" {
		t.Errorf("navigation link broken: %d %v", next, ok)
	}
	if got := m.notes[report.IDMap[3]]; got.Kind != models.KindChecklist || len(got.Items) != 1 {
		t.Errorf("checklist not stored as is: %+v", got)
	}
}

func TestImportBatch_NavigationLinksNotRemapped(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	ctx := context.Background()

	// A single oversized note with source id 1. Its tail gets id 1, and the
	// head's navigation link points at 1. The IDMap maps 1 to the head, which
	// must not be applied to the navigation link.
	src := &models.Note{Kind: models.KindText, Folder: models.FolderNotes, Title: "Self", Body: strings.Repeat("s", testMaxLen+1)}
	report, err := s.ImportBatch(ctx, m, []SourceNote{{OriginalID: 1, Note: src}})
	if err != nil {
		t.Fatal(err)
	}
	parts := chain(t, m, report.IDMap[1])
	if len(parts) != 2 {
		t.Fatalf("parts = %d", len(parts))
	}
	if report.Relinked != 0 {
		t.Errorf("relinked = %d", report.Relinked)
	}
}

func TestImportBatch_ContinuesAfterFailure(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	m.failTitle = "bad"

	report, err := s.ImportBatch(context.Background(), m, []SourceNote{
		{OriginalID: 1, Note: &models.Note{Kind: models.KindText, Folder: models.FolderNotes, Title: "bad", Body: "x"}},
		{OriginalID: 2, Note: &models.Note{Kind: models.KindText, Folder: models.FolderNotes, Title: "good", Body: "y"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || report.Failed[0].OriginalID != 1 {
		t.Errorf("failed = %+v", report.Failed)
	}
	if _, ok := report.IDMap[2]; !ok {
		t.Errorf("good note missing from IDMap")
	}
}

func TestImportBatch_RejectsInvalidNotes(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()

	report, err := s.ImportBatch(context.Background(), m, []SourceNote{
		{OriginalID: 1, Note: &models.Note{
			Kind: models.KindText, Folder: models.FolderNotes, Title: "wide", Body: "abc",
			Spans: []models.Span{{Start: -2, End: 50, Bold: true}},
		}},
		{OriginalID: 2, Note: &models.Note{Kind: models.KindChecklist, Folder: models.FolderNotes, Title: "list", Body: "checklist with a body"}},
		{OriginalID: 3, Note: &models.Note{Kind: models.KindText, Folder: models.FolderNotes, Title: "fine", Body: "ok"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 2 {
		t.Fatalf("failed = %+v", report.Failed)
	}
	for _, f := range report.Failed {
		if !errors.Is(f.Err, apperr.ErrInvalidArgument) {
			t.Errorf("note %d: err = %v, want ErrInvalidArgument", f.OriginalID, f.Err)
		}
	}
	if len(m.notes) != 1 {
		t.Errorf("stored %d notes, want 1", len(m.notes))
	}
	if _, ok := report.IDMap[3]; !ok {
		t.Errorf("valid note missing from IDMap")
	}
}

func TestLoadForProcessing_RepairsOversizedRow(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	ctx := context.Background()

	id, _ := m.Insert(ctx, &models.Note{
		Kind:  models.KindText,
		Title: "Huge",
		Body:  strings.Repeat("é", 3*testMaxLen),
		Spans: []models.Span{
			{Start: 10, End: 250, Bold: true},
			{Start: 150, End: 200, Italic: true},
		},
	})
	m.oversized[id] = true

	n, repaired, err := s.LoadForProcessing(ctx, m, id)
	if err != nil {
		t.Fatalf("LoadForProcessing: %v", err)
	}
	if !repaired {
		t.Error("expected repair")
	}
	if utf8.RuneCountInString(n.Body) != testMaxLen {
		t.Errorf("body len = %d", n.BodyLen())
	}
	want := []models.Span{{Start: 10, End: testMaxLen, Bold: true}}
	if diff := cmp.Diff(want, n.Spans); diff != "" {
		t.Errorf("spans (-want +got):\n%s", diff)
	}
}

func TestSplitStored_RepairThenNoSplit(t *testing.T) {
	s := testSplitter(t)
	m := newMemStore()
	ctx := context.Background()
	id, _ := m.Insert(ctx, &models.Note{Kind: models.KindText, Body: strings.Repeat("q", 5*testMaxLen)})
	m.oversized[id] = true

	created, repaired, err := s.SplitStored(ctx, m, id)
	if err != nil {
		t.Fatal(err)
	}
	if !repaired || created != 0 {
		t.Errorf("created=%d repaired=%v", created, repaired)
	}
	ids := make([]int, 0, len(m.notes))
	for k := range m.notes {
		ids = append(ids, int(k))
	}
	sort.Ints(ids)
	if len(ids) != 1 {
		t.Errorf("rows = %v", ids)
	}
}
