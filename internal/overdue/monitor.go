package overdue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"visitordesk/internal/logging"
	"visitordesk/internal/metrics"
	"visitordesk/internal/roster"
	"visitordesk/internal/schedule"
	"visitordesk/internal/visitor"
)

// DefaultInterval is the scan period used when Monitor.Interval is zero.
const DefaultInterval = time.Minute

// Notifier delivers the overdue notice for one visitor.
type Notifier interface {
	NotifyOverdue(ctx context.Context, page string, rec visitor.Record) error
}

// Monitor scans one page's roster for visitors who stayed past the
// threshold after their office finished with them.
type Monitor struct {
	Page      string
	Roster    *roster.Roster
	Notifier  Notifier
	Clock     schedule.Clock
	Interval  time.Duration
	Threshold time.Duration

	// Latch claims a visitor id before notifying. Nil means the roster's
	// OverdueEmailSent flag is the only guard.
	Latch Latch
	// Lock serializes scans across desk replicas. Nil scans unconditionally.
	Lock Locker

	Metrics *metrics.Metrics
	Log     *logrus.Logger
}

// Run scans immediately and then every Interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	schedule.Every(ctx, m.clock(), interval, func(ctx context.Context) { m.Scan(ctx) })
}

// Due lists records that need a notice at now.
func Due(records []visitor.Record, now time.Time, threshold time.Duration) []visitor.Record {
	var out []visitor.Record
	for _, r := range records {
		if !r.OverdueEmailSent && visitor.IsOverdue(r, now, threshold) {
			out = append(out, r)
		}
	}
	return out
}

// Scan performs one pass and returns how many notices were delivered.
func (m *Monitor) Scan(ctx context.Context) int {
	if m.Lock != nil {
		release, ok, err := m.Lock.TryLock(ctx, m.Page)
		if err != nil {
			logging.LogError(m.logger(), "overdue", "Scan", "obtain scan lock", logrus.Fields{"page": m.Page}, err)
			return 0
		}
		if !ok {
			return 0
		}
		defer release()
	}

	sent := 0
	for _, rec := range Due(m.Roster.Snapshot(), m.clock().Now(), m.Threshold) {
		if ctx.Err() != nil {
			return sent
		}
		if m.notify(ctx, rec) {
			sent++
		}
	}
	return sent
}

func (m *Monitor) notify(ctx context.Context, rec visitor.Record) bool {
	fields := logrus.Fields{"page": m.Page, "visitorId": rec.ID}
	if m.Latch != nil {
		claimed, err := m.Latch.Claim(ctx, rec.ID)
		if err != nil {
			logging.LogError(m.logger(), "overdue", "notify", "claim latch", fields, err)
			return false
		}
		if !claimed {
			// Another page or replica already sent it.
			m.markSent(rec.ID)
			return false
		}
	}

	err := m.Notifier.NotifyOverdue(ctx, m.Page, rec)
	m.Metrics.Overdue(m.Page, err)
	if err != nil {
		logging.LogError(m.logger(), "overdue", "notify", "send overdue notice", fields, err)
		if m.Latch != nil {
			if rerr := m.Latch.Release(context.WithoutCancel(ctx), rec.ID); rerr != nil {
				logging.LogError(m.logger(), "overdue", "notify", "release latch", fields, rerr)
			}
		}
		return false
	}
	m.markSent(rec.ID)
	m.logger().WithFields(fields).Info("overdue notice sent")
	return true
}

func (m *Monitor) markSent(id string) {
	m.Roster.Update(id, func(r visitor.Record) visitor.Record {
		r.OverdueEmailSent = true
		return r
	})
}

func (m *Monitor) clock() schedule.Clock {
	if m.Clock != nil {
		return m.Clock
	}
	return schedule.System{}
}

func (m *Monitor) logger() *logrus.Logger {
	if m.Log != nil {
		return m.Log
	}
	return logging.Logger()
}
