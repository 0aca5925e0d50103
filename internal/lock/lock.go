// Package lock provides per-key mutual exclusion. Local serializes callers
// inside one process; Redis extends that to every process sharing the Redis
// instance.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock on key. The returned func releases it and
// is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Local is an in-process keyed mutex. Idle keys are dropped.
type Local struct {
	mu   sync.Mutex
	keys map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]*slot)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.keys[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.keys[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.keys, key)
	}
	l.mu.Unlock()
}

// held reports the number of keys with holders or waiters.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
