package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Locker hands out exclusive per-task locks.
type Locker interface {
	// TryLock returns ok=false without waiting when the key is held.
	TryLock(ctx context.Context, key string) (unlock func(), ok bool, err error)
	// Lock waits until the key is free or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const lockRetryInterval = 20 * time.Millisecond

func waitLock(ctx context.Context, l Locker, key string) (func(), error) {
	t := time.NewTicker(lockRetryInterval)
	defer t.Stop()
	for {
		unlock, ok, err := l.TryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// LocalLocker keeps locks in process memory. Entries are dropped when
// released, so the map only holds keys currently locked.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	return waitLock(ctx, l, key)
}

// releaseScript deletes the lease only if it still carries our token, so an
// expired lease taken over by another node is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements leases with SET NX PX so several supervisors can
// share one task store.
type RedisLocker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	k := l.prefix + key
	token := ulid.Make().String()
	ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", k, err)
	}
	if !ok {
		return nil, false, nil
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// Released with a fresh context so a cancelled caller still frees the lease.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.rdb, []string{k}, token).Err()
		})
	}, true, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	return waitLock(ctx, l, key)
}
