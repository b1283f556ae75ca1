package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"visitordesk/internal/store"
)

// ErrNotFound is returned when a session is missing or expired.
var ErrNotFound = errors.New("session not found")

// Session binds a console login to the upstream bearer token it obtained.
type Session struct {
	ID            string    `json:"id"`
	UpstreamToken string    `json:"upstreamToken"`
	Role          string    `json:"role"`
	Office        string    `json:"office,omitempty"`
	Username      string    `json:"username"`
	CreatedAt     time.Time `json:"createdAt"`
}

// New returns a session with a fresh id.
func New(upstreamToken, role, office, username string) Session {
	return Session{
		ID:            uuid.NewString(),
		UpstreamToken: upstreamToken,
		Role:          role,
		Office:        office,
		Username:      username,
		CreatedAt:     time.Now().UTC(),
	}
}

// Store keeps sessions for the lifetime of their refresh token.
type Store interface {
	Save(ctx context.Context, s Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions as JSON values with a TTL.
type RedisStore struct {
	redis  *store.Redis
	prefix string
}

func NewRedisStore(r *store.Redis) *RedisStore {
	return &RedisStore{redis: r, prefix: "visitordesk:session:"}
}

func (s *RedisStore) Save(ctx context.Context, sess Session, ttl time.Duration) error {
	return s.redis.SetJSON(ctx, s.prefix+sess.ID, sess, ttl)
}

func (s *RedisStore) Load(ctx context.Context, id string) (Session, error) {
	var sess Session
	ok, err := s.redis.GetJSON(ctx, s.prefix+id, &sess)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.redis.Del(ctx, s.prefix+id)
}

// MemoryStore is a process-local store for dev and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

type memItem struct {
	sess    Session
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memItem), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, sess Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sess.ID] = memItem{sess: sess, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !s.now().Before(it.expires) {
		delete(s.items, id)
		return Session{}, ErrNotFound
	}
	return it.sess, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}
