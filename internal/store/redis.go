package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the client shared by the queue, locks, revocations, the rate
// limiter and the activity stream.
type Redis struct {
	Client *redis.Client
}

// RedisOptions selects the server and logical database.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis builds a client. Reads may block for the queue's BRPOP timeout,
// so ReadTimeout stays above it.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{Client: redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  6 * time.Second,
		WriteTimeout: time.Second,
	})}
}

// Healthy reports whether PING succeeds.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
