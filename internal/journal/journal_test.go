package journal

import (
	"context"
	"testing"
	"time"
)

func TestMemoryListFiltersNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	_, _ = m.Insert(ctx, Entry{At: base, Page: "guard", Action: "time-in", VisitorID: "v1", Result: "ok"})
	_, _ = m.Insert(ctx, Entry{At: base.Add(time.Minute), Page: "office", Action: "accept", VisitorID: "v1", Result: "ok"})
	_, _ = m.Insert(ctx, Entry{At: base.Add(2 * time.Minute), Page: "guard", Action: "time-out", VisitorID: "v2", Result: "ok"})

	got, err := m.List(ctx, Filter{Page: "guard"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Action != "time-out" || got[1].Action != "time-in" {
		t.Fatalf("got %+v", got)
	}
	for _, e := range got {
		if e.ID == "" {
			t.Error("entry without id")
		}
	}

	got, _ = m.List(ctx, Filter{VisitorID: "v1", Limit: 1})
	if len(got) != 1 || got[0].Action != "accept" {
		t.Fatalf("limited = %+v", got)
	}

	got, _ = m.List(ctx, Filter{Offset: 10})
	if len(got) != 0 {
		t.Errorf("offset past end = %+v", got)
	}
}

func TestListQueryPlaceholders(t *testing.T) {
	q, args := listQuery(Filter{Page: "guard", Action: "time-in", Limit: 20, Offset: 40})
	want := `SELECT id, occurred_at, page, actor, action, visitor_id, result, detail FROM desk_journal WHERE page = $1 AND action = $2 ORDER BY occurred_at DESC LIMIT $3 OFFSET $4`
	if q != want {
		t.Errorf("query:\n%s\nwant:\n%s", q, want)
	}
	if len(args) != 4 || args[0] != "guard" || args[1] != "time-in" || args[2] != 20 || args[3] != 40 {
		t.Errorf("args = %v", args)
	}
}

func TestFilterDefaults(t *testing.T) {
	f := Filter{Limit: 0, Offset: -3}.normalized()
	if f.Limit != 50 || f.Offset != 0 {
		t.Errorf("normalized = %+v", f)
	}
}
