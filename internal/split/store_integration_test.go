package split

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/starford/notechain/internal/models"
	"github.com/starford/notechain/internal/store"
)

func testStore(t *testing.T, opts ...store.Option) *store.DB {
	t.Helper()
	f, err := os.CreateTemp("", "notechain-split-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := store.Open(f.Name(), opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_SplitForInsertInTx(t *testing.T) {
	s := testSplitter(t)
	db := testStore(t)
	ctx := context.Background()

	var first int64
	err := db.InTx(ctx, func(q *store.Queries) error {
		res, err := s.SplitForInsert(ctx, q, &models.Note{Kind: models.KindText, Title: "T", Body: strings.Repeat("w", 250)})
		first = res.FirstID
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}

	q := db.Queries()
	parts := 0
	for id, ok := first, true; ok; parts++ {
		n, err := q.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %d: %v", id, err)
		}
		id, ok = NextPart(n)
	}
	if parts != 3 {
		t.Errorf("parts = %d", parts)
	}
}

func TestSQLite_FailedSplitLeavesNoOrphans(t *testing.T) {
	s := testSplitter(t)
	db := testStore(t)
	ctx := context.Background()
	abort := errors.New("abort")

	_ = db.InTx(ctx, func(q *store.Queries) error {
		if _, err := s.SplitForInsert(ctx, q, &models.Note{Kind: models.KindText, Title: "T", Body: strings.Repeat("w", 250)}); err != nil {
			return err
		}
		return abort
	})
	ids, err := db.Queries().AllIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("orphaned parts: %v", ids)
	}
}

func TestSQLite_SplitStoredRepairsUnreadableRow(t *testing.T) {
	s := testSplitter(t)
	// Room for testMaxLen four-byte code points, not for the full body.
	db := testStore(t, store.WithReadLimit(4*testMaxLen))
	ctx := context.Background()
	q := db.Queries()

	id, err := q.Insert(ctx, &models.Note{
		Kind:  models.KindText,
		Title: "Emoji",
		Body:  strings.Repeat("😀", 2*testMaxLen),
		Spans: []models.Span{{Start: 0, End: 2 * testMaxLen, Bold: true}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var repaired bool
	err = db.InTx(ctx, func(q *store.Queries) error {
		var err error
		_, repaired, err = s.SplitStored(ctx, q, id)
		return err
	})
	if err != nil {
		t.Fatalf("SplitStored: %v", err)
	}
	if !repaired {
		t.Error("expected repair")
	}
	n, err := q.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.BodyLen() != testMaxLen || n.Spans[0].End != testMaxLen {
		t.Errorf("len=%d spans=%+v", n.BodyLen(), n.Spans)
	}
}
