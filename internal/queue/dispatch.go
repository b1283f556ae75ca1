package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"visitordesk/internal/backend"
	"visitordesk/internal/logging"
	"visitordesk/internal/metrics"
)

// MaxAttempts bounds the backend calls made for one job.
const MaxAttempts = 3

// Sender is the part of the backend a consumer calls.
type Sender interface {
	SendOverdueEmail(ctx context.Context, id string) error
	Notify(ctx context.Context, id, message string) error
}

// Serve consumes q and hands every job to s until the consumer channel
// closes. The Redis worker and the desk's in-process memory consumer both
// run it.
func Serve(ctx context.Context, q Queue, s Sender, backoff time.Duration, m *metrics.Metrics, log *logrus.Logger) error {
	if log == nil {
		log = logging.Logger()
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		err := Handle(ctx, s, msg, backoff)
		m.Worker(msg.Type, err)
		if err != nil {
			logging.LogError(log, "queue", "Handle", msg.Type, nil, err)
			continue
		}
		log.WithField("type", msg.Type).Info("job delivered")
	}
	return nil
}

// Handle decodes one job and calls the backend, retrying transient failures
// with a linear backoff.
func Handle(ctx context.Context, s Sender, msg Message, backoff time.Duration) error {
	var call func(context.Context) error
	switch msg.Type {
	case TypeOverdueEmail:
		var job OverdueEmail
		if err := DecodeBody(msg, &job); err != nil {
			return err
		}
		if job.VisitorID == "" {
			return errors.New("overdue-email job without visitor id")
		}
		call = func(ctx context.Context) error { return s.SendOverdueEmail(ctx, job.VisitorID) }
	case TypeNotify:
		var job Notify
		if err := DecodeBody(msg, &job); err != nil {
			return err
		}
		if job.VisitorID == "" {
			return errors.New("notify job without visitor id")
		}
		call = func(ctx context.Context) error { return s.Notify(ctx, job.VisitorID, job.Message) }
	default:
		return fmt.Errorf("unknown job type %q", msg.Type)
	}

	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err = call(ctx); err == nil || !retryable(err) || attempt == MaxAttempts {
			return err
		}
		logging.Logger().WithField("type", msg.Type).WithField("attempt", attempt).Warnf("job failed: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}
	return err
}

// retryable reports whether a backend failure may succeed on a later try.
// Client errors other than timeouts and rate limits are final.
func retryable(err error) bool {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests || apiErr.Status == http.StatusRequestTimeout
	}
	return !errors.Is(err, context.Canceled)
}
