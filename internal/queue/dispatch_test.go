package queue

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"visitordesk/internal/backend"
)

type fakeSender struct {
	mu       sync.Mutex
	failures []error
	emails   []string
	notices  []string
	calls    int
}

func (f *fakeSender) next() error {
	f.calls++
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

func (f *fakeSender) SendOverdueEmail(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.emails = append(f.emails, id)
	return nil
}

func (f *fakeSender) Notify(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.next(); err != nil {
		return err
	}
	f.notices = append(f.notices, id+":"+message)
	return nil
}

func (f *fakeSender) delivered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emails) + len(f.notices)
}

func mustMessage(t *testing.T, msgType string, job any) Message {
	t.Helper()
	msg, err := NewMessage(msgType, job)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	return msg
}

func TestHandleDeliversJobs(t *testing.T) {
	s := &fakeSender{}
	ctx := context.Background()

	if err := Handle(ctx, s, mustMessage(t, TypeOverdueEmail, OverdueEmail{VisitorID: "v1"}), time.Millisecond); err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if err := Handle(ctx, s, mustMessage(t, TypeNotify, Notify{VisitorID: "v2", Message: "please come to the desk"}), time.Millisecond); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(s.emails) != 1 || s.emails[0] != "v1" {
		t.Fatalf("emails = %v", s.emails)
	}
	if len(s.notices) != 1 || s.notices[0] != "v2:please come to the desk" {
		t.Fatalf("notices = %v", s.notices)
	}
}

func TestHandleRetriesServerErrors(t *testing.T) {
	s := &fakeSender{failures: []error{
		&backend.APIError{Status: http.StatusBadGateway},
		&backend.APIError{Status: http.StatusServiceUnavailable},
	}}
	err := Handle(context.Background(), s, mustMessage(t, TypeOverdueEmail, OverdueEmail{VisitorID: "v1"}), time.Millisecond)
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if s.calls != 3 {
		t.Fatalf("calls = %d, want 3", s.calls)
	}
}

func TestHandleGivesUpOnClientErrors(t *testing.T) {
	s := &fakeSender{failures: []error{&backend.APIError{Status: http.StatusNotFound, Message: "Visitor not found"}}}
	err := Handle(context.Background(), s, mustMessage(t, TypeOverdueEmail, OverdueEmail{VisitorID: "gone"}), time.Millisecond)
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if s.calls != 1 {
		t.Fatalf("calls = %d, want 1", s.calls)
	}
}

func TestHandleStopsAfterMaxAttempts(t *testing.T) {
	fail := &backend.APIError{Status: http.StatusInternalServerError}
	s := &fakeSender{failures: []error{fail, fail, fail, fail}}
	err := Handle(context.Background(), s, mustMessage(t, TypeNotify, Notify{VisitorID: "v1"}), time.Millisecond)
	if err == nil {
		t.Fatal("expected failure")
	}
	if s.calls != MaxAttempts {
		t.Fatalf("calls = %d, want %d", s.calls, MaxAttempts)
	}
}

func TestHandleRejectsBadJobs(t *testing.T) {
	s := &fakeSender{}
	ctx := context.Background()
	cases := map[string]Message{
		"unknown type": {Type: "checkin", Body: []byte("x")},
		"no visitor":   mustMessage(t, TypeOverdueEmail, OverdueEmail{}),
		"bad body":     {Type: TypeNotify, Body: []byte{0xc1}},
	}
	for name, msg := range cases {
		if err := Handle(ctx, s, msg, time.Millisecond); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if s.calls != 0 {
		t.Fatalf("backend called %d times for bad jobs", s.calls)
	}
}

func TestServeDrainsMemoryQueue(t *testing.T) {
	q := NewInMemory(4)
	s := &fakeSender{failures: []error{&backend.APIError{Status: http.StatusNotFound}}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, q, s, time.Millisecond, nil, nil) }()

	for _, msg := range []Message{
		mustMessage(t, TypeOverdueEmail, OverdueEmail{VisitorID: "gone"}),
		mustMessage(t, TypeOverdueEmail, OverdueEmail{VisitorID: "v1"}),
		mustMessage(t, TypeNotify, Notify{VisitorID: "v2", Message: "hi"}),
	} {
		if err := q.Publish(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.delivered() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("jobs not delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if s.calls != 3 {
		t.Errorf("calls = %d, want 3", s.calls)
	}
}
