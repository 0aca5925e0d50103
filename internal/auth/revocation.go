package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations remembers logged-out token ids until the token would have
// expired anyway.
type Revocations interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

// RedisRevocations keeps one expiring key per revoked token, shared by every
// API instance.
type RedisRevocations struct {
	client *redis.Client
	prefix string
}

func NewRedisRevocations(client *redis.Client, prefix string) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: prefix}
}

func (r *RedisRevocations) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.prefix+jti, 1, ttl).Err()
}

func (r *RedisRevocations) Revoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocations is the single-process variant.
type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{revoked: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, id)
		}
	}
	if until.After(now) {
		m.revoked[jti] = until
	}
	return nil
}

func (m *MemoryRevocations) Revoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.revoked[jti]
	return ok && exp.After(m.now()), nil
}
