package visitor

import (
	"errors"
	"time"
)

// Status is the display status derived from a record's fields.
type Status string

const (
	StatusOverdue         Status = "overdue"
	StatusProcessed       Status = "processed"
	StatusProcessing      Status = "processing"
	StatusDeclined        Status = "declined"
	StatusAccepted        Status = "accepted"
	StatusPendingApproval Status = "pending-approval"
)

// DefaultOverdueAfter is how long a processed visitor may remain inside
// before being reported overdue.
const DefaultOverdueAfter = 30 * time.Minute

// Transition rejections. Messages are shown to desk users as-is.
var (
	ErrDeclined          = errors.New("visit was declined; no further actions are allowed")
	ErrNotAccepted       = errors.New("visit has not been accepted by the office")
	ErrAlreadyDecided    = errors.New("visit was already accepted or declined")
	ErrAlreadyProcessing = errors.New("processing has already started")
	ErrNotProcessing     = errors.New("processing has not started")
	ErrAlreadyProcessed  = errors.New("visit is already processed")
	ErrAlreadyTimedIn    = errors.New("visitor has already timed in")
	ErrNotTimedIn        = errors.New("visitor has not timed in")
	ErrAlreadyTimedOut   = errors.New("visitor has already timed out")
)

// IsTransitionError reports whether err is one of the transition rejections.
func IsTransitionError(err error) bool {
	for _, target := range []error{
		ErrDeclined, ErrNotAccepted, ErrAlreadyDecided, ErrAlreadyProcessing,
		ErrNotProcessing, ErrAlreadyProcessed, ErrAlreadyTimedIn, ErrNotTimedIn,
		ErrAlreadyTimedOut,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusAt derives the display status at now. It is computed on every read
// and never stored.
func StatusAt(r Record, now time.Time, overdueAfter time.Duration) Status {
	switch {
	case IsOverdue(r, now, overdueAfter):
		return StatusOverdue
	case r.Processed:
		return StatusProcessed
	case r.ProcessingStartedTime != nil:
		return StatusProcessing
	case r.IsDeclined():
		return StatusDeclined
	case r.IsAccepted():
		return StatusAccepted
	default:
		return StatusPendingApproval
	}
}

// IsOverdue is true when the visitor was processed more than overdueAfter
// ago and has not timed out.
func IsOverdue(r Record, now time.Time, overdueAfter time.Duration) bool {
	if r.OfficeProcessedTime == nil || r.TimeOut != nil {
		return false
	}
	if overdueAfter <= 0 {
		overdueAfter = DefaultOverdueAfter
	}
	return now.Sub(*r.OfficeProcessedTime) > overdueAfter
}

// CanDecide allows an accept/decline decision only while pending.
func CanDecide(r Record) error {
	if !r.IsPendingApproval() {
		return ErrAlreadyDecided
	}
	return nil
}

// CanStartProcessing requires an accepted visit that has not started.
func CanStartProcessing(r Record) error {
	if err := requireAccepted(r); err != nil {
		return err
	}
	if r.ProcessingStartedTime != nil {
		return ErrAlreadyProcessing
	}
	return nil
}

// CanMarkProcessed requires processing to have started and not finished.
func CanMarkProcessed(r Record) error {
	if r.IsDeclined() {
		return ErrDeclined
	}
	if r.ProcessingStartedTime == nil {
		return ErrNotProcessing
	}
	if r.Processed {
		return ErrAlreadyProcessed
	}
	return nil
}

// CanTimeIn requires an accepted visit that has not timed in yet. The
// verification gate is checked separately.
func CanTimeIn(r Record) error {
	if err := requireAccepted(r); err != nil {
		return err
	}
	if r.TimeIn != nil {
		return ErrAlreadyTimedIn
	}
	return nil
}

// CanTimeOut requires an accepted visit that timed in and has not left.
func CanTimeOut(r Record) error {
	if err := requireAccepted(r); err != nil {
		return err
	}
	if r.TimeIn == nil {
		return ErrNotTimedIn
	}
	if r.TimeOut != nil {
		return ErrAlreadyTimedOut
	}
	return nil
}

func requireAccepted(r Record) error {
	if r.IsDeclined() {
		return ErrDeclined
	}
	if !r.IsAccepted() {
		return ErrNotAccepted
	}
	return nil
}
