// Package lock guards the snapshot read-modify-write against overlapping cycles.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLocked is returned by TryLock when another cycle holds the lock.
var ErrLocked = errors.New("another cycle holds the lock")

// Release gives up a held lock.
type Release func() error

// Locker is a non-blocking mutual exclusion primitive.
type Locker interface {
	TryLock(ctx context.Context) (Release, error)
}

// Nop never contends. It is used when overlap protection is disabled.
type Nop struct{}

func (Nop) TryLock(context.Context) (Release, error) {
	return func() error { return nil }, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another host is not released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker holds the lock as a key with a TTL, for hosts sharing one snapshot.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLocker creates a locker on key. ttl bounds how long a crashed
// holder can block other cycles.
func NewRedisLocker(client *redis.Client, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (Release, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire redis lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release redis lock: %w", err)
		}
		return nil
	}, nil
}
