package desk

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Notice levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Notice is a transient message shown on a page.
type Notice struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Notices is a bounded, newest-first board of page messages.
type Notices struct {
	mu    sync.Mutex
	items []Notice
	max   int
	now   func() time.Time
}

func NewNotices(max int) *Notices {
	if max <= 0 {
		max = 50
	}
	return &Notices{max: max, now: time.Now}
}

// Post adds a notice and returns it.
func (n *Notices) Post(level, msg string) Notice {
	item := Notice{ID: uuid.NewString(), At: n.now().UTC(), Level: level, Message: msg}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append([]Notice{item}, n.items...)
	if len(n.items) > n.max {
		n.items = n.items[:n.max]
	}
	return item
}

// List returns the notices, newest first.
func (n *Notices) List() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.items...)
}

// Dismiss removes a notice. It reports whether it existed.
func (n *Notices) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	before := len(n.items)
	n.items = lo.Reject(n.items, func(item Notice, _ int) bool { return item.ID == id })
	return len(n.items) != before
}
