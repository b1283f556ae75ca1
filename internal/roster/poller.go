package roster

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"visitordesk/internal/logging"
	"visitordesk/internal/metrics"
	"visitordesk/internal/schedule"
	"visitordesk/internal/visitor"
)

// DefaultInterval is the poll period used when Poller.Interval is zero.
const DefaultInterval = 10 * time.Second

// Fetcher returns the full visitor collection.
type Fetcher interface {
	ListVisitors(ctx context.Context) ([]visitor.Record, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context) ([]visitor.Record, error)

func (f FetchFunc) ListVisitors(ctx context.Context) ([]visitor.Record, error) { return f(ctx) }

// Poller keeps a Roster in sync with the backend.
type Poller struct {
	Page     string
	Roster   *Roster
	Fetcher  Fetcher
	Clock    schedule.Clock
	Interval time.Duration

	// RefreshSeen replaces seen records with the server copy on each poll.
	RefreshSeen bool
	// Busy reports ids with an action in flight; they are never refreshed.
	Busy func(id string) bool
	// Alert is called at most once per Poller when a fetch fails while the
	// roster is empty.
	Alert func(err error)

	Metrics *metrics.Metrics
	Log     *logrus.Logger

	alerted atomic.Bool
}

// Run polls immediately and then every Interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	clock := p.Clock
	if clock == nil {
		clock = schedule.System{}
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	schedule.Every(ctx, clock, interval, p.Tick)
}

// Tick performs one fetch and merge. Errors are logged and swallowed.
func (p *Poller) Tick(ctx context.Context) {
	fetched, err := p.Fetcher.ListVisitors(ctx)
	if ctx.Err() != nil {
		return
	}
	p.Metrics.Poll(p.Page, err)
	if err != nil {
		logging.LogError(p.logger(), "roster", "Tick", "fetch visitors", logrus.Fields{"page": p.Page}, err)
		if p.Roster.Len() == 0 && p.Alert != nil && p.alerted.CompareAndSwap(false, true) {
			p.Alert(err)
		}
		return
	}

	merged := p.Roster.Apply(func(local []visitor.Record) []visitor.Record {
		if p.RefreshSeen {
			return Refresh(local, fetched, p.Busy)
		}
		return Merge(local, fetched)
	})
	p.Metrics.Roster(p.Page, len(merged))
}

func (p *Poller) logger() *logrus.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logging.Logger()
}
