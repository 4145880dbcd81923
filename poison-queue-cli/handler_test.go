package main

import (
	"context"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redisContainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"ticketing/pubsub"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := redisContainer.RunContainer(ctx, testcontainers.WithImage("docker.io/redis:7"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	rdb := pubsub.NewRedisClient(strings.Replace(uri, "redis://", "", 1))
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}

func TestHandler(t *testing.T) {
	ctx := context.Background()
	rdb := startRedis(t)
	publisher := pubsub.NewRedisPublisher(rdb, watermill.NopLogger{})

	var uuids []string
	for i := 0; i < 10; i++ {
		msg := message.NewMessage(watermill.NewUUID(), []byte("{}"))
		msg.Metadata.Set(middleware.ReasonForPoisonedKey, "network down")
		msg.Metadata.Set(middleware.PoisonedTopicKey, "events")
		msg.Metadata.Set(middleware.PoisonedHandlerKey, "store_to_data_lake")
		msg.Metadata.Set("correlation_id", "corr-"+msg.UUID)
		require.NoError(t, publisher.Publish(pubsub.PoisonQueueTopic, msg))
		uuids = append(uuids, msg.UUID)
	}

	h := NewHandler(rdb, publisher)

	assertMessages(t, h, uuids)

	require.NoError(t, h.Remove(ctx, uuids[0]))
	require.NoError(t, h.Remove(ctx, uuids[4]))
	require.NoError(t, h.Remove(ctx, uuids[9]))

	err := h.Remove(ctx, watermill.NewUUID())
	assert.ErrorIs(t, err, ErrMessageNotFound)

	require.NoError(t, h.Requeue(ctx, uuids[1]))

	assertMessages(t, h, []string{uuids[2], uuids[3], uuids[5], uuids[6], uuids[7], uuids[8]})

	entries, err := rdb.XRange(ctx, "events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	requeued, err := redisstream.DefaultMarshallerUnmarshaller{}.Unmarshal(entries[0].Values)
	require.NoError(t, err)
	assert.Equal(t, uuids[1], requeued.UUID)
	assert.Equal(t, "store_to_data_lake", requeued.Metadata.Get(pubsub.RequeuedForHandlerKey))
	assert.Empty(t, requeued.Metadata.Get(middleware.PoisonedHandlerKey))
	assert.Equal(t, "corr-"+uuids[1], requeued.Metadata.Get("correlation_id"))
	assert.Empty(t, requeued.Metadata.Get(middleware.ReasonForPoisonedKey))
	assert.Empty(t, requeued.Metadata.Get(middleware.PoisonedTopicKey))
}

func assertMessages(t *testing.T, h *Handler, expectedUUIDs []string) {
	t.Helper()

	messages, err := h.Preview(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, expectedUUIDs, lo.Map(messages, func(m Message, _ int) string { return m.ID }))

	for _, msg := range messages {
		assert.Equal(t, "network down", msg.Reason)
		assert.Equal(t, "events", msg.Topic)
		assert.Equal(t, "store_to_data_lake", msg.Handler)
	}
}
