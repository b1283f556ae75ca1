package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	sess := New("upstream-token", "guard", "", "guard1")
	if err := s.Save(ctx, sess, time.Hour); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx, sess.ID)
	if err != nil || got.UpstreamToken != "upstream-token" {
		t.Fatalf("Load = %+v, %v", got, err)
	}

	now = now.Add(time.Hour)
	if _, err := s.Load(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired load err = %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	sess := New("t", "admin", "", "root")
	_ = s.Save(ctx, sess, time.Hour)
	_ = s.Delete(ctx, sess.ID)
	if _, err := s.Load(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
