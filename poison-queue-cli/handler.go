package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"

	"ticketing/pubsub"
)

var ErrMessageNotFound = errors.New("message not found")

type Message struct {
	ID       string
	StreamID string
	Topic    string
	Handler  string
	Reason   string
}

// Handler reads the poison queue stream directly, so previewing doesn't consume anything.
type Handler struct {
	rdb          redis.UniversalClient
	publisher    message.Publisher
	unmarshaller redisstream.Unmarshaller
}

func NewHandler(rdb redis.UniversalClient, publisher message.Publisher) *Handler {
	return &Handler{
		rdb:          rdb,
		publisher:    publisher,
		unmarshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}
}

func (h *Handler) Preview(ctx context.Context) ([]Message, error) {
	entries, err := h.rdb.XRange(ctx, pubsub.PoisonQueueTopic, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("could not read poison queue: %w", err)
	}

	result := make([]Message, 0, len(entries))
	for _, entry := range entries {
		msg, err := h.unmarshaller.Unmarshal(entry.Values)
		if err != nil {
			return nil, fmt.Errorf("could not unmarshal entry %s: %w", entry.ID, err)
		}

		result = append(result, toMessage(entry.ID, msg))
	}

	return result, nil
}

func (h *Handler) Remove(ctx context.Context, messageID string) error {
	streamID, _, err := h.find(ctx, messageID)
	if err != nil {
		return err
	}

	return h.rdb.XDel(ctx, pubsub.PoisonQueueTopic, streamID).Err()
}

// Requeue publishes the message back to the topic it was poisoned on and removes it from the queue.
// The topic may be shared by several handlers, so the message is marked for the handler that
// failed it and the others skip it.
func (h *Handler) Requeue(ctx context.Context, messageID string) error {
	streamID, msg, err := h.find(ctx, messageID)
	if err != nil {
		return err
	}

	topic := msg.Metadata.Get(middleware.PoisonedTopicKey)
	if topic == "" {
		return fmt.Errorf("message %s has no source topic", messageID)
	}

	requeued := message.NewMessage(msg.UUID, msg.Payload)
	for k, v := range msg.Metadata {
		switch k {
		case middleware.PoisonedTopicKey, middleware.PoisonedHandlerKey,
			middleware.PoisonedSubscriberKey, middleware.ReasonForPoisonedKey:
			continue
		}
		requeued.Metadata.Set(k, v)
	}
	if handler := msg.Metadata.Get(middleware.PoisonedHandlerKey); handler != "" {
		requeued.Metadata.Set(pubsub.RequeuedForHandlerKey, handler)
	}
	requeued.SetContext(ctx)

	if err := h.publisher.Publish(topic, requeued); err != nil {
		return fmt.Errorf("could not publish message %s to %s: %w", messageID, topic, err)
	}

	return h.rdb.XDel(ctx, pubsub.PoisonQueueTopic, streamID).Err()
}

func (h *Handler) find(ctx context.Context, messageID string) (string, *message.Message, error) {
	entries, err := h.rdb.XRange(ctx, pubsub.PoisonQueueTopic, "-", "+").Result()
	if err != nil {
		return "", nil, fmt.Errorf("could not read poison queue: %w", err)
	}

	for _, entry := range entries {
		msg, err := h.unmarshaller.Unmarshal(entry.Values)
		if err != nil {
			return "", nil, fmt.Errorf("could not unmarshal entry %s: %w", entry.ID, err)
		}

		if msg.UUID == messageID {
			return entry.ID, msg, nil
		}
	}

	return "", nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
}

func toMessage(streamID string, msg *message.Message) Message {
	return Message{
		ID:       msg.UUID,
		StreamID: streamID,
		Topic:    msg.Metadata.Get(middleware.PoisonedTopicKey),
		Handler:  msg.Metadata.Get(middleware.PoisonedHandlerKey),
		Reason:   msg.Metadata.Get(middleware.ReasonForPoisonedKey),
	}
}
