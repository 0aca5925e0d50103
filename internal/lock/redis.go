package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX PX lock. The TTL bounds how long a crashed holder can
// block others.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "gatepass:lock:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, retry: 25 * time.Millisecond}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, r.client, []string{k}, token).Err()
		})
	}, nil
}
