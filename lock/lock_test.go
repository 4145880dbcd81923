package lock_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"ticketing/lock"
)

type locker interface {
	Lock(ctx context.Context, key string) (lock.Unlock, error)
}

func assertMutualExclusion(t *testing.T, l locker) {
	t.Helper()

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			unlock, err := l.Lock(context.Background(), "booking-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestLocalLocker(t *testing.T) {
	l := lock.NewLocalLocker(16)
	assertMutualExclusion(t, l)

	unlock, err := l.Lock(context.Background(), "booking-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "booking-1")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	container, err := redisContainer.RunContainer(ctx, testcontainers.WithImage("docker.io/redis:7"))
	require.NoError(t, err)
	defer func() {
		_ = container.Terminate(ctx)
	}()

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: strings.Replace(uri, "redis://", "", 1)})
	defer rdb.Close()

	l := lock.NewRedisLocker(rdb, "test-lock:", 5*time.Second)
	assertMutualExclusion(t, l)

	unlock, err := l.Lock(ctx, "booking-2")
	require.NoError(t, err)

	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	_, err = l.Lock(timeoutCtx, "booking-2")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	unlock()

	unlock, err = l.Lock(ctx, "booking-2")
	require.NoError(t, err)
	unlock()
}
