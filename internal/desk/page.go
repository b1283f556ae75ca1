package desk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"visitordesk/internal/metrics"
	"visitordesk/internal/overdue"
	"visitordesk/internal/roster"
	"visitordesk/internal/schedule"
)

// PageKind names a console page. Each page keeps its own roster copy.
type PageKind string

const (
	PageGuard  PageKind = "guard"
	PageOffice PageKind = "office"
	PageAdmin  PageKind = "admin"
)

// Valid reports whether k is a known page.
func (k PageKind) Valid() bool {
	return k == PageGuard || k == PageOffice || k == PageAdmin
}

// OverdueConfig enables the overdue monitor on a page.
type OverdueConfig struct {
	Notifier  overdue.Notifier
	Interval  time.Duration
	Threshold time.Duration
	Latch     overdue.Latch
	Lock      overdue.Locker
}

// PageConfig wires a page's poller and optional monitor.
type PageConfig struct {
	Fetcher      roster.Fetcher
	Clock        schedule.Clock
	PollInterval time.Duration
	RefreshSeen  bool
	Overdue      *OverdueConfig
	Metrics      *metrics.Metrics
	Log          *logrus.Logger
}

// Page is one console page: a roster kept fresh by a poller, an optional
// overdue monitor, and a notices board.
type Page struct {
	Kind    PageKind
	Roster  *roster.Roster
	Poller  *roster.Poller
	Monitor *overdue.Monitor
	Notices *Notices

	mu   sync.Mutex
	busy map[string]int
}

// NewPage builds a page with an empty roster.
func NewPage(kind PageKind, cfg PageConfig) *Page {
	p := &Page{
		Kind:    kind,
		Roster:  roster.New(),
		Notices: NewNotices(50),
		busy:    make(map[string]int),
	}
	p.Poller = &roster.Poller{
		Page:        string(kind),
		Roster:      p.Roster,
		Fetcher:     cfg.Fetcher,
		Clock:       cfg.Clock,
		Interval:    cfg.PollInterval,
		RefreshSeen: cfg.RefreshSeen,
		Busy:        p.Busy,
		Alert: func(err error) {
			p.Notices.Post(LevelError, fmt.Sprintf("Could not load visitors: %v", err))
		},
		Metrics: cfg.Metrics,
		Log:     cfg.Log,
	}
	if cfg.Overdue != nil {
		p.Monitor = &overdue.Monitor{
			Page:      string(kind),
			Roster:    p.Roster,
			Notifier:  cfg.Overdue.Notifier,
			Clock:     cfg.Clock,
			Interval:  cfg.Overdue.Interval,
			Threshold: cfg.Overdue.Threshold,
			Latch:     cfg.Overdue.Latch,
			Lock:      cfg.Overdue.Lock,
			Metrics:   cfg.Metrics,
			Log:       cfg.Log,
		}
	}
	return p
}

// Run drives the poller and monitor until ctx is cancelled.
func (p *Page) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Poller.Run(ctx)
	}()
	if p.Monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Monitor.Run(ctx)
		}()
	}
	wg.Wait()
}

// Busy reports whether an action on id is in flight.
func (p *Page) Busy(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy[id] > 0
}

func (p *Page) begin(id string) {
	p.mu.Lock()
	p.busy[id]++
	p.mu.Unlock()
}

func (p *Page) end(id string) {
	p.mu.Lock()
	if p.busy[id]--; p.busy[id] <= 0 {
		delete(p.busy, id)
	}
	p.mu.Unlock()
}
