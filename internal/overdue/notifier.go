package overdue

import (
	"context"
	"time"

	"visitordesk/internal/queue"
	"visitordesk/internal/visitor"
)

// QueueNotifier hands the notice to the worker.
type QueueNotifier struct {
	Queue queue.Queue
}

func (n QueueNotifier) NotifyOverdue(ctx context.Context, page string, rec visitor.Record) error {
	job := queue.OverdueEmail{
		VisitorID: rec.ID,
		Name:      rec.Name,
		Office:    string(rec.Office),
		Page:      page,
	}
	if rec.OfficeProcessedTime != nil {
		job.ProcessedAt = rec.OfficeProcessedTime.UTC()
	}
	msg, err := queue.NewMessage(queue.TypeOverdueEmail, job)
	if err != nil {
		return err
	}
	return n.Queue.Publish(ctx, msg)
}

// EmailSender is the backend call that emails the overdue notice.
type EmailSender interface {
	SendOverdueEmail(ctx context.Context, id string) error
}

// DirectNotifier calls the backend from the scan itself.
type DirectNotifier struct {
	Backend EmailSender
	Timeout time.Duration
}

func (n DirectNotifier) NotifyOverdue(ctx context.Context, _ string, rec visitor.Record) error {
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	return n.Backend.SendOverdueEmail(ctx, rec.ID)
}
