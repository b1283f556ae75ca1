package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one desk action as seen by the console.
type Entry struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Page      string    `json:"page"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	VisitorID string    `json:"visitorId"`
	Result    string    `json:"result"`
	Detail    string    `json:"detail,omitempty"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Page      string
	VisitorID string
	Action    string
	Limit     int
	Offset    int
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Journal stores desk actions.
type Journal interface {
	Insert(ctx context.Context, e Entry) (Entry, error)
	List(ctx context.Context, f Filter) ([]Entry, error)
}

func prepare(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return e
}

// Memory is an in-process journal used when Postgres is not configured.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory returns an empty journal.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Insert(_ context.Context, e Entry) (Entry, error) {
	e = prepare(e)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return e, nil
}

// List returns matching entries newest first.
func (m *Memory) List(_ context.Context, f Filter) ([]Entry, error) {
	f = f.normalized()
	m.mu.Lock()
	var out []Entry
	for _, e := range m.entries {
		if (f.Page == "" || e.Page == f.Page) &&
			(f.VisitorID == "" || e.VisitorID == f.VisitorID) &&
			(f.Action == "" || e.Action == f.Action) {
			out = append(out, e)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
