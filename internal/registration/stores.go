package registration

import (
	"context"
	"errors"
	"sync"
	"time"

	"visitordesk/internal/store"
)

// ErrDraftNotFound is returned for unknown or expired drafts.
var ErrDraftNotFound = errors.New("registration draft not found or expired")

// DraftStore persists wizard drafts between requests.
type DraftStore interface {
	Save(ctx context.Context, d Draft) error
	Load(ctx context.Context, id string) (Draft, error)
	Delete(ctx context.Context, id string) error
}

// RedisDrafts keeps drafts as JSON with a TTL refreshed on every save.
type RedisDrafts struct {
	redis *store.Redis
	ttl   time.Duration
}

func NewRedisDrafts(r *store.Redis, ttl time.Duration) *RedisDrafts {
	return &RedisDrafts{redis: r, ttl: ttl}
}

func draftKey(id string) string { return "visitordesk:draft:" + id }

func (s *RedisDrafts) Save(ctx context.Context, d Draft) error {
	return s.redis.SetJSON(ctx, draftKey(d.ID), d, s.ttl)
}

func (s *RedisDrafts) Load(ctx context.Context, id string) (Draft, error) {
	var d Draft
	ok, err := s.redis.GetJSON(ctx, draftKey(id), &d)
	if err != nil {
		return Draft{}, err
	}
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	return d, nil
}

func (s *RedisDrafts) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, draftKey(id))
}

// MemoryDrafts is a process-local DraftStore.
type MemoryDrafts struct {
	mu     sync.Mutex
	drafts map[string]Draft
}

func NewMemoryDrafts() *MemoryDrafts {
	return &MemoryDrafts{drafts: make(map[string]Draft)}
}

func (s *MemoryDrafts) Save(_ context.Context, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[d.ID] = d
	return nil
}

func (s *MemoryDrafts) Load(_ context.Context, id string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, ErrDraftNotFound
	}
	return d, nil
}

func (s *MemoryDrafts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
	return nil
}

// DuplicateGuard remembers (contact, date, time) bookings made through this
// desk. The backend remains the authority on duplicates.
type DuplicateGuard interface {
	Seen(ctx context.Context, contact, date, at string) (bool, error)
	Remember(ctx context.Context, contact, date, at string) error
}

// RedisGuard keeps one set per scheduled date. A set lives until margin
// after the end of its date, however far ahead the booking was made.
type RedisGuard struct {
	redis  *store.Redis
	margin time.Duration
	now    func() time.Time
}

func NewRedisGuard(r *store.Redis) *RedisGuard {
	return &RedisGuard{redis: r, margin: 48 * time.Hour, now: time.Now}
}

func guardKey(date string) string { return "visitordesk:booked:" + date }

// guardExpiry is the end of date plus margin, never earlier than now plus
// margin. Unparseable dates fall back to now plus margin.
func guardExpiry(date string, now time.Time, margin time.Duration) time.Time {
	floor := now.Add(margin)
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return floor
	}
	at := day.AddDate(0, 0, 1).Add(margin)
	if at.Before(floor) {
		return floor
	}
	return at
}

func (g *RedisGuard) Seen(ctx context.Context, contact, date, at string) (bool, error) {
	return g.redis.Client.SIsMember(ctx, guardKey(date), contact+"|"+at).Result()
}

func (g *RedisGuard) Remember(ctx context.Context, contact, date, at string) error {
	pipe := g.redis.Client.TxPipeline()
	pipe.SAdd(ctx, guardKey(date), contact+"|"+at)
	pipe.ExpireAt(ctx, guardKey(date), guardExpiry(date, g.now(), g.margin))
	_, err := pipe.Exec(ctx)
	return err
}

// MemoryGuard is a process-local DuplicateGuard.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]struct{})}
}

func (g *MemoryGuard) Seen(_ context.Context, contact, date, at string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[contact+"|"+date+"|"+at]
	return ok, nil
}

func (g *MemoryGuard) Remember(_ context.Context, contact, date, at string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[contact+"|"+date+"|"+at] = struct{}{}
	return nil
}
