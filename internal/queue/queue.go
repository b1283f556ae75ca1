package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"visitordesk/internal/logging"
)

// DefaultKey is the Redis list used when none is configured.
const DefaultKey = "visitordesk:jobs"

// Message is one desk job on the wire. Body is the msgpack-encoded job.
type Message struct {
	Type string `msgpack:"type"`
	Body []byte `msgpack:"body"`
}

// Queue carries jobs from the desk to the worker.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory keeps jobs in a bounded channel. Publish blocks when full.
type InMemory struct {
	ch chan Message
}

func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume forwards jobs until ctx is done, then closes the channel.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			var msg Message
			select {
			case msg = <-q.ch:
			case <-ctx.Done():
				return
			}
			if !deliver(ctx, out, msg) {
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue pushes jobs on the left of a list and pops them on the right.
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key, wait: 5 * time.Second}
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	b, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, b).Err()
}

// Consume blocks on BRPOP in a loop. Connection errors back off for a
// second; undecodable entries are logged and dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	log := logging.Logger().WithFields(logrus.Fields{"module": "queue", "key": q.key})
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			res, err := q.client.BRPop(ctx, q.wait, q.key).Result()
			switch {
			case ctx.Err() != nil:
				return
			case errors.Is(err, redis.Nil):
				continue
			case err != nil:
				log.Warn(err.Error())
				time.Sleep(time.Second)
				continue
			case len(res) != 2:
				continue
			}

			var msg Message
			if err := msgpack.Unmarshal([]byte(res[1]), &msg); err != nil {
				logging.LogError(logging.Logger(), "queue", "Consume", "decode message", q.key, err)
				continue
			}
			if !deliver(ctx, out, msg) {
				return
			}
		}
	}()
	return out, nil
}

func deliver(ctx context.Context, out chan<- Message, msg Message) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
