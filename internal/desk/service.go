package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"visitordesk/internal/camera"
	"visitordesk/internal/journal"
	"visitordesk/internal/logging"
	"visitordesk/internal/metrics"
	"visitordesk/internal/queue"
	"visitordesk/internal/verify"
	"visitordesk/internal/visitor"
)

var (
	// ErrNotFound is returned for ids missing from the page roster.
	ErrNotFound = errors.New("visitor not found")
	// ErrOtherOffice is returned when office staff act on another office's visitor.
	ErrOtherOffice = errors.New("visitor belongs to another office")
	// ErrUnknownPage is returned for pages the service does not host.
	ErrUnknownPage = errors.New("unknown page")
	// ErrInvalid wraps malformed action input.
	ErrInvalid = errors.New("invalid input")
	// ErrBusy is returned while another action on the same visitor is in flight.
	ErrBusy = errors.New("another action on this visitor is in progress")
)

// Action names, used for metrics and the journal.
const (
	ActionAccept    = "accept"
	ActionDecline   = "decline"
	ActionStart     = "start-processing"
	ActionProcessed = "office-processed"
	ActionTimeIn    = "time-in"
	ActionTimeOut   = "time-out"
	ActionEdit      = "edit"
	ActionDelete    = "delete"
	ActionNotify    = "notify"
)

const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultBlocked  = "blocked"
	resultError    = "error"
)

// Backend is the subset of the visitor API the desk mutates records through.
type Backend interface {
	AcceptDecline(ctx context.Context, id string, accepted bool) (visitor.Record, error)
	StartProcessing(ctx context.Context, id string) (visitor.Record, error)
	OfficeProcessed(ctx context.Context, id string) (visitor.Record, error)
	TimeIn(ctx context.Context, id string) (visitor.Record, error)
	TimeOut(ctx context.Context, id string) (visitor.Record, error)
	UpdateVisitor(ctx context.Context, id string, patch map[string]any) (visitor.Record, error)
	DeleteVisitor(ctx context.Context, id string) error
	Notify(ctx context.Context, id, message string) error
}

// Verifier is the face verification gate run before time-in.
type Verifier interface {
	Check(ctx context.Context, rec visitor.Record, cam camera.Opener) (verify.Result, error)
}

// Actor identifies who performs an action. Office, when set, restricts the
// actor to visitors of that office. Token is the actor's backend bearer.
type Actor struct {
	Page   PageKind
	Name   string
	Office visitor.Office
	Token  string
}

// Service performs desk actions. Every action is validated against the
// page's local record, sent to the backend, and only the server's echo is
// applied to the rosters.
type Service struct {
	// Backend returns a client authenticated as the actor.
	Backend func(token string) Backend
	Pages   map[PageKind]*Page
	Gate    Verifier
	// Camera is the desk camera used when a time-in brings no frames.
	Camera       camera.Opener
	Journal      journal.Journal
	Queue        queue.Queue
	OverdueAfter time.Duration
	Location     *time.Location
	Now          func() time.Time

	Metrics *metrics.Metrics
	Log     *logrus.Logger

	// inflight holds the ids with an action between guard and echo.
	inflight sync.Map
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logging.Logger()
}

// Page returns a hosted page.
func (s *Service) Page(kind PageKind) (*Page, error) {
	p, ok := s.Pages[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, kind)
	}
	return p, nil
}

// Run drives every page until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	done := make(chan struct{}, len(s.Pages))
	for _, p := range s.Pages {
		go func(p *Page) {
			p.Run(ctx)
			done <- struct{}{}
		}(p)
	}
	for range s.Pages {
		<-done
	}
}

// View is a record with its derived status.
type View struct {
	visitor.Record
	Status visitor.Status `json:"status"`
}

// Records lists a page's roster with statuses, filtered by office and term.
func (s *Service) Records(kind PageKind, office visitor.Office, term string) ([]View, error) {
	p, err := s.Page(kind)
	if err != nil {
		return nil, err
	}
	now := s.now()
	recs := visitor.Filter(p.Roster.Snapshot(), term)
	if office != "" {
		recs = lo.Filter(recs, func(r visitor.Record, _ int) bool { return r.Office == office })
	}
	return lo.Map(recs, func(r visitor.Record, _ int) View {
		return View{Record: r, Status: visitor.StatusAt(r, now, s.OverdueAfter)}
	}), nil
}

// Stats summarises a page's roster.
func (s *Service) Stats(kind PageKind, office visitor.Office) (visitor.Stats, error) {
	p, err := s.Page(kind)
	if err != nil {
		return visitor.Stats{}, err
	}
	recs := p.Roster.Snapshot()
	if office != "" {
		recs = lo.Filter(recs, func(r visitor.Record, _ int) bool { return r.Office == office })
	}
	return visitor.Summarize(recs, s.now(), s.Location, s.OverdueAfter), nil
}

// LookupQR finds the visitor a scanned QR code was issued for. When several
// records match, one still inside wins, then the newest.
func (s *Service) LookupQR(kind PageKind, text string) (View, error) {
	payload, err := visitor.ParseQR(text)
	if err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	p, err := s.Page(kind)
	if err != nil {
		return View{}, err
	}
	matches := lo.Filter(p.Roster.Snapshot(), func(r visitor.Record, _ int) bool { return payload.Matches(r) })
	if len(matches) == 0 {
		return View{}, ErrNotFound
	}
	best, found := lo.Find(matches, func(r visitor.Record) bool { return r.TimeOut == nil })
	if !found {
		best = matches[0]
	}
	return View{Record: best, Status: visitor.StatusAt(best, s.now(), s.OverdueAfter)}, nil
}

// Decide accepts or declines a pending visit.
func (s *Service) Decide(ctx context.Context, a Actor, id string, accepted bool) (visitor.Record, error) {
	action := ActionDecline
	if accepted {
		action = ActionAccept
	}
	return s.act(ctx, a, action, id, visitor.CanDecide, func(b Backend) (visitor.Record, error) {
		return b.AcceptDecline(ctx, id, accepted)
	})
}

// StartProcessing marks the office as working on an accepted visit.
func (s *Service) StartProcessing(ctx context.Context, a Actor, id string) (visitor.Record, error) {
	return s.act(ctx, a, ActionStart, id, visitor.CanStartProcessing, func(b Backend) (visitor.Record, error) {
		return b.StartProcessing(ctx, id)
	})
}

// MarkProcessed marks the office as done with a visit.
func (s *Service) MarkProcessed(ctx context.Context, a Actor, id string) (visitor.Record, error) {
	return s.act(ctx, a, ActionProcessed, id, visitor.CanMarkProcessed, func(b Backend) (visitor.Record, error) {
		return b.OfficeProcessed(ctx, id)
	})
}

// TimeIn records arrival after the verification gate passes. cam supplies
// the live frames; nil uses the desk camera.
func (s *Service) TimeIn(ctx context.Context, a Actor, id string, cam camera.Opener) (visitor.Record, verify.Result, error) {
	var res verify.Result
	guard := func(r visitor.Record) error {
		if err := visitor.CanTimeIn(r); err != nil {
			return err
		}
		if s.Gate == nil {
			return nil
		}
		if cam == nil {
			cam = s.Camera
		}
		if cam == nil {
			return verify.ErrCameraUnavailable
		}
		var err error
		res, err = s.Gate.Check(ctx, r, cam)
		return err
	}
	rec, err := s.act(ctx, a, ActionTimeIn, id, guard, func(b Backend) (visitor.Record, error) {
		return b.TimeIn(ctx, id)
	})
	return rec, res, err
}

// TimeOut records departure.
func (s *Service) TimeOut(ctx context.Context, a Actor, id string) (visitor.Record, error) {
	return s.act(ctx, a, ActionTimeOut, id, visitor.CanTimeOut, func(b Backend) (visitor.Record, error) {
		return b.TimeOut(ctx, id)
	})
}

// Patch holds editable descriptive fields. Nil fields are left unchanged.
type Patch struct {
	Name          *string         `json:"name"`
	ContactNumber *string         `json:"contactNumber"`
	Email         *string         `json:"email"`
	Office        *visitor.Office `json:"office"`
	Purpose       *string         `json:"purpose"`
	ScheduledDate *string         `json:"scheduledDate"`
	ScheduledTime *string         `json:"scheduledTime"`
}

// fields returns the patch as backend fields and applies it to r.
func (p Patch) fields(r *visitor.Record) (map[string]any, error) {
	out := map[string]any{}
	set := func(key string, v *string, dst *string) {
		if v != nil {
			out[key] = strings.TrimSpace(*v)
			*dst = strings.TrimSpace(*v)
		}
	}
	set("name", p.Name, &r.Name)
	set("contactNumber", p.ContactNumber, &r.ContactNumber)
	set("email", p.Email, &r.Email)
	set("purpose", p.Purpose, &r.Purpose)
	set("scheduledDate", p.ScheduledDate, &r.ScheduledDate)
	set("scheduledTime", p.ScheduledTime, &r.ScheduledTime)
	if p.Office != nil {
		if !p.Office.Valid() {
			return nil, fmt.Errorf("%w: unknown office %q", ErrInvalid, *p.Office)
		}
		out["office"] = string(*p.Office)
		r.Office = *p.Office
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalid)
	}
	if r.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	return out, nil
}

// Edit changes descriptive fields of a visit.
func (s *Service) Edit(ctx context.Context, a Actor, id string, patch Patch) (visitor.Record, error) {
	var fields map[string]any
	guard := func(r visitor.Record) error {
		var err error
		if fields, err = patch.fields(&r); err != nil {
			return err
		}
		return visitor.CheckInvariants(r)
	}
	return s.act(ctx, a, ActionEdit, id, guard, func(b Backend) (visitor.Record, error) {
		return b.UpdateVisitor(ctx, id, fields)
	})
}

// Delete removes a visit from the backend and from every page.
func (s *Service) Delete(ctx context.Context, a Actor, id string) error {
	_, err := s.act(ctx, a, ActionDelete, id, nil, func(b Backend) (visitor.Record, error) {
		return visitor.Record{}, b.DeleteVisitor(ctx, id)
	})
	return err
}

// Notify sends a message to a visitor. It goes through the job queue when
// one is configured.
func (s *Service) Notify(ctx context.Context, a Actor, id, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalid)
	}
	_, err := s.act(ctx, a, ActionNotify, id, nil, func(b Backend) (visitor.Record, error) {
		if s.Queue == nil {
			return visitor.Record{}, b.Notify(ctx, id, message)
		}
		msg, err := queue.NewMessage(queue.TypeNotify, queue.Notify{VisitorID: id, Message: message})
		if err != nil {
			return visitor.Record{}, err
		}
		return visitor.Record{}, s.Queue.Publish(ctx, msg)
	})
	return err
}

// act runs one action: look up the local record, check guard, call the
// backend and apply the echo. Delete and notify pass no guard and return no
// echo.
func (s *Service) act(ctx context.Context, a Actor, action, id string, guard func(visitor.Record) error, call func(Backend) (visitor.Record, error)) (visitor.Record, error) {
	p, err := s.Page(a.Page)
	if err != nil {
		return visitor.Record{}, err
	}
	local, ok := p.Roster.Get(id)
	if !ok {
		return visitor.Record{}, ErrNotFound
	}
	if a.Office != "" && local.Office != a.Office {
		s.finish(ctx, a, action, id, resultRejected, ErrOtherOffice)
		return visitor.Record{}, ErrOtherOffice
	}
	if _, held := s.inflight.LoadOrStore(id, struct{}{}); held {
		s.finish(ctx, a, action, id, resultRejected, ErrBusy)
		return visitor.Record{}, ErrBusy
	}
	defer s.inflight.Delete(id)
	for _, page := range s.Pages {
		page.begin(id)
		defer page.end(id)
	}

	if guard != nil {
		if err := guard(local); err != nil {
			result := resultRejected
			if verify.IsGateError(err) {
				result = resultBlocked
			} else if !visitor.IsTransitionError(err) && !errors.Is(err, ErrInvalid) && !errors.Is(err, visitor.ErrInvariant) {
				result = resultError
			}
			s.finish(ctx, a, action, id, result, err)
			return visitor.Record{}, err
		}
	}

	echo, err := call(s.Backend(a.Token))
	if err != nil {
		s.finish(ctx, a, action, id, resultError, err)
		return visitor.Record{}, fmt.Errorf("%s: %w", action, err)
	}

	switch action {
	case ActionDelete:
		for _, page := range s.Pages {
			page.Roster.Remove(id)
		}
	case ActionNotify:
	default:
		if echo.ID == "" {
			echo.ID = id
		}
		if err := visitor.CheckInvariants(echo); err != nil {
			logging.LogError(s.logger(), "desk", "act", "server echo violates invariants", logrus.Fields{"action": action, "visitorId": id}, err)
		}
		s.apply(echo)
	}
	s.finish(ctx, a, action, id, resultOK, nil)
	return echo, nil
}

// apply writes the server echo into every page's roster.
func (s *Service) apply(echo visitor.Record) {
	for _, page := range s.Pages {
		if _, ok := page.Roster.Update(echo.ID, func(local visitor.Record) visitor.Record {
			rec := echo
			rec.OverdueEmailSent = rec.OverdueEmailSent || local.OverdueEmailSent
			return rec
		}); !ok {
			page.Roster.Upsert(echo)
		}
	}
}

func (s *Service) finish(ctx context.Context, a Actor, action, id, result string, err error) {
	s.Metrics.Action(action, result)
	fields := logrus.Fields{"page": a.Page, "actor": a.Name, "action": action, "visitorId": id, "result": result}
	if err != nil && result == resultError {
		logging.LogError(s.logger(), "desk", action, "backend action failed", fields, err)
	} else {
		s.logger().WithFields(fields).Info("desk action")
	}
	if s.Journal == nil {
		return
	}
	entry := journal.Entry{Page: string(a.Page), Actor: a.Name, Action: action, VisitorID: id, Result: result}
	if err != nil {
		entry.Detail = err.Error()
	}
	if _, jerr := s.Journal.Insert(context.WithoutCancel(ctx), entry); jerr != nil {
		logging.LogError(s.logger(), "desk", "finish", "write journal", fields, jerr)
	}
}
