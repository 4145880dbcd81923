package lock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

type Unlock func()

// RedisLocker is a per-key mutex shared by every instance of the service.
// The ttl caps how long a crashed holder can block others.
type RedisLocker struct {
	rdb          redis.UniversalClient
	prefix       string
	ttl          time.Duration
	retryBackoff time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if rdb == nil {
		panic("missing redis client")
	}

	return &RedisLocker{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		retryBackoff: 50 * time.Millisecond,
	}
}

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Lock blocks until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("could not acquire lock %s: %w", redisKey, err)
		}
		if ok {
			return func() {
				// ctx may be cancelled already, the key still has to go
				_ = releaseScript.Run(context.Background(), l.rdb, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, redisKey, ctx.Err())
		case <-time.After(l.retryBackoff):
		}
	}
}

// LocalLocker serializes keys within a single process. Keys are hashed onto a fixed
// number of stripes, so unrelated keys may occasionally wait for each other.
type LocalLocker struct {
	stripes []chan struct{}
}

func NewLocalLocker(stripes int) *LocalLocker {
	if stripes <= 0 {
		stripes = 256
	}

	l := &LocalLocker{stripes: make([]chan struct{}, stripes)}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	stripe := l.stripes[h.Sum32()%uint32(len(l.stripes))]

	select {
	case stripe <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-stripe })
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}
}
