package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass/internal/logging"
)

// Job types.
const (
	TypeVisitorRegistered = "visitor.registered"
)

// ErrFull is returned by InMemory.Publish when its buffer has no room.
var ErrFull = errors.New("queue full")

// Message represents work to be processed. Body is a JSON document.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// NewMessage encodes payload as the body of a typ message.
func NewMessage(typ string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Message{Type: typ, Body: body}, nil
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a channel-backed queue for dev and tests. Messages do not leave
// the process.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message without waiting. A full buffer returns ErrFull.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

// Consume returns a channel for workers. It is closed when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
	log    logging.Logger
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string, log logging.Logger) *RedisQueue {
	if key == "" {
		key = "gatepass:jobs"
	}
	if log == nil {
		log = logging.Discard()
	}
	return &RedisQueue{client: client, key: key, wait: 5 * time.Second, log: log}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume streams messages using BRPOP. Undecodable entries are logged and
// dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, q.wait, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					q.log.Warn(ctx, "queue pop failed", "key", q.key, "err", err)
					sleep(ctx, time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				q.log.Warn(ctx, "dropping malformed queue message", "key", q.key, "err", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
