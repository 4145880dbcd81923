package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handledMessages struct {
	mu       sync.Mutex
	handled  map[string][]string
	metadata map[string]string
}

func (h *handledMessages) handler(name string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.handled[name] = append(h.handled[name], msg.UUID)
		h.metadata[name+"/"+msg.UUID] = msg.Metadata.Get(RequeuedForHandlerKey)
		return nil
	}
}

func (h *handledMessages) get(name string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string(nil), h.handled[name]...)
}

func TestRequeueFilterMiddleware(t *testing.T) {
	logger := watermill.NopLogger{}
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	require.NoError(t, err)
	router.AddMiddleware(requeueFilterMiddleware)

	handled := &handledMessages{handled: map[string][]string{}, metadata: map[string]string{}}
	router.AddNoPublisherHandler("events_splitter", "events", pubSub, handled.handler("events_splitter"))
	router.AddNoPublisherHandler("store_to_data_lake", "events", pubSub, handled.handler("store_to_data_lake"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	requeued := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	requeued.Metadata.Set(RequeuedForHandlerKey, "store_to_data_lake")
	regular := message.NewMessage(watermill.NewUUID(), []byte("{}"))

	require.NoError(t, pubSub.Publish("events", requeued, regular))

	assert.Eventually(t, func() bool {
		return len(handled.get("events_splitter")) == 1 && len(handled.get("store_to_data_lake")) == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{regular.UUID}, handled.get("events_splitter"))
	assert.ElementsMatch(t, []string{requeued.UUID, regular.UUID}, handled.get("store_to_data_lake"))

	handled.mu.Lock()
	defer handled.mu.Unlock()
	assert.Empty(t, handled.metadata["store_to_data_lake/"+requeued.UUID], "the marker doesn't travel further")
}
