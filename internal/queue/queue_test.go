package queue

import (
	"context"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg, err := NewMessage(TypeNotify, Notify{VisitorID: "v1", Message: "Please proceed to the Registrar"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case got := <-ch:
		if got.Type != TypeNotify {
			t.Fatalf("type = %q", got.Type)
		}
		var job Notify
		if err := DecodeBody(got, &job); err != nil {
			t.Fatalf("DecodeBody: %v", err)
		}
		if job.VisitorID != "v1" || job.Message != "Please proceed to the Registrar" {
			t.Errorf("job = %+v", job)
		}
	case <-time.After(time.Second):
		t.Fatal("no message consumed")
	}
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := q.Consume(ctx)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected message")
		}
	case <-time.After(time.Second):
		t.Fatal("consume channel not closed")
	}
}

func TestWireFormatKeepsBinaryBody(t *testing.T) {
	processed := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	msg, err := NewMessage(TypeOverdueEmail, OverdueEmail{VisitorID: "v|2", Office: "Registrar", ProcessedAt: processed})
	if err != nil {
		t.Fatal(err)
	}
	b, err := msgpack.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var back Message
	if err := msgpack.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	var job OverdueEmail
	if err := DecodeBody(back, &job); err != nil {
		t.Fatal(err)
	}
	if back.Type != TypeOverdueEmail || job.VisitorID != "v|2" || !job.ProcessedAt.Equal(processed) {
		t.Errorf("round trip lost data: %+v %+v", back, job)
	}
}
