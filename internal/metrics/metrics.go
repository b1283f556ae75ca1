package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the desk's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Polls          *prometheus.CounterVec
	RosterSize     *prometheus.GaugeVec
	Actions        *prometheus.CounterVec
	OverdueSent    *prometheus.CounterVec
	Verifications  *prometheus.CounterVec
	Registrations  *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
	WorkerMessages *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visitordesk_polls_total",
			Help: "Roster poll attempts by page and result.",
		}, []string{"page", "result"}),
		RosterSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "visitordesk_roster_records",
			Help: "Records currently held in a page roster.",
		}, []string{"page"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visitordesk_actions_total",
			Help: "Desk actions by action and result.",
		}, []string{"action", "result"}),
		OverdueSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visitordesk_overdue_notifications_total",
			Help: "Overdue notifications by page and result.",
		}, []string{"page", "result"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visitordesk_verifications_total",
			Help: "Identity verification attempts by result.",
		}, []string{"result"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visitordesk_registrations_total",
			Help: "Registration confirmations by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visitordesk_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visitordesk_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		WorkerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visitordesk_worker_messages_total",
			Help: "Queue messages handled by the worker by type and result.",
		}, []string{"type", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Polls, m.RosterSize, m.Actions, m.OverdueSent, m.Verifications,
			m.Registrations, m.HTTPRequests, m.HTTPLatency, m.WorkerMessages)
	}
	return m
}

// Result maps an error to the "ok"/"error" label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) Poll(page string, err error) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(page, Result(err)).Inc()
}

func (m *Metrics) Roster(page string, n int) {
	if m == nil {
		return
	}
	m.RosterSize.WithLabelValues(page).Set(float64(n))
}

func (m *Metrics) Action(action string, result string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Overdue(page string, err error) {
	if m == nil {
		return
	}
	m.OverdueSent.WithLabelValues(page, Result(err)).Inc()
}

func (m *Metrics) Verification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Registration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) Worker(msgType string, err error) {
	if m == nil {
		return
	}
	m.WorkerMessages.WithLabelValues(msgType, Result(err)).Inc()
}
