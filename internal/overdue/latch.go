package overdue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Latch records which visitors already had a notice sent.
type Latch interface {
	// Claim reports true when the caller is the first to claim id.
	Claim(ctx context.Context, id string) (bool, error)
	// Release gives a claim back after a failed delivery.
	Release(ctx context.Context, id string) error
}

// MemoryLatch is a process-local latch shared by every page.
type MemoryLatch struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewMemoryLatch() *MemoryLatch {
	return &MemoryLatch{claimed: make(map[string]struct{})}
}

func (l *MemoryLatch) Claim(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.claimed[id]; ok {
		return false, nil
	}
	l.claimed[id] = struct{}{}
	return true, nil
}

func (l *MemoryLatch) Release(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claimed, id)
	return nil
}

// RedisLatch claims ids with SETNX so replicas share one latch.
type RedisLatch struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLatch keeps claims for ttl, after which the backend's own
// overdueEmailSent flag is expected to carry the latch.
func NewRedisLatch(client *redis.Client, ttl time.Duration) *RedisLatch {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisLatch{client: client, prefix: "visitordesk:overdue:", ttl: ttl}
}

func (l *RedisLatch) Claim(ctx context.Context, id string) (bool, error) {
	return l.client.SetNX(ctx, l.prefix+id, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

func (l *RedisLatch) Release(ctx context.Context, id string) error {
	return l.client.Del(ctx, l.prefix+id).Err()
}

// Locker serializes scans.
type Locker interface {
	// TryLock returns ok=false without error when someone else holds the lock.
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// RedisLocker takes a short redislock per page scan.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	lock, err := l.client.Obtain(ctx, "visitordesk:lock:overdue:"+name, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() { _ = lock.Release(context.Background()) }, true, nil
}
