package event

import (
	"context"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ticketing/entity"
	"ticketing/metrics"
	"ticketing/pubsub/bus"
)

// Handler reacts to booking lifecycle events after they left the outbox.
type Handler struct{}

func NewHandler() Handler {
	return Handler{}
}

func (h Handler) Handlers() []cqrs.EventHandler {
	return []cqrs.EventHandler{
		h.BookingCreatedHandler(),
		h.BookingConfirmedHandler(),
		h.BookingCancelledHandler(),
		h.BookingRefundedHandler(),
		h.ExpiredBookingsSweptHandler(),
	}
}

func (h Handler) BookingCreatedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"RecordBookingCreated",
		func(ctx context.Context, event *entity.BookingCreated_v1) error {
			metrics.BookingTransitions.WithLabelValues(string(entity.BookingStatusPending)).Inc()
			log.FromContext(ctx).WithField("booking_id", event.BookingID).Debug("Booking created")
			return nil
		},
	)
}

func (h Handler) BookingConfirmedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"RecordBookingConfirmed",
		func(ctx context.Context, event *entity.BookingConfirmed_v1) error {
			metrics.BookingTransitions.WithLabelValues(string(entity.BookingStatusConfirmed)).Inc()
			log.FromContext(ctx).WithField("booking_id", event.BookingID).Debug("Booking confirmed")
			return nil
		},
	)
}

func (h Handler) BookingCancelledHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"RecordBookingCancelled",
		func(ctx context.Context, event *entity.BookingCancelled_v1) error {
			metrics.BookingTransitions.WithLabelValues(string(entity.BookingStatusCancelled)).Inc()
			log.FromContext(ctx).WithFields(logrus.Fields{
				"booking_id": event.BookingID,
				"reason":     event.Reason,
			}).Debug("Booking cancelled")
			return nil
		},
	)
}

func (h Handler) BookingRefundedHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"RecordBookingRefunded",
		func(ctx context.Context, event *entity.BookingRefunded_v1) error {
			metrics.BookingTransitions.WithLabelValues(string(entity.BookingStatusRefunded)).Inc()
			log.FromContext(ctx).WithField("booking_id", event.BookingID).Debug("Booking refunded")
			return nil
		},
	)
}

func (h Handler) ExpiredBookingsSweptHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"ReportExpiredBookingsSwept",
		func(ctx context.Context, event *entity.ExpiredBookingsSwept_v1) error {
			logger := log.FromContext(ctx).WithFields(logrus.Fields{
				"examined":  event.Examined,
				"cancelled": event.Cancelled,
				"failed":    event.Failed,
			})
			if event.Failed > 0 {
				logger.Warn("Expiration sweep left bookings behind")
				return nil
			}
			logger.Info("Expiration sweep report")
			return nil
		},
	)
}

func NewProcessorConfig(rdb redis.UniversalClient, watermillLogger watermill.LoggerAdapter) cqrs.EventProcessorConfig {
	return cqrs.EventProcessorConfig{
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return bus.SubscribeTopic(params.EventHandler.NewEvent(), params.EventName)
		},
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        rdb,
				ConsumerGroup: bus.ConsumerGroupPrefix + params.HandlerName,
			}, watermillLogger)
		},
		Marshaler: bus.Marshaler,
		Logger:    watermillLogger,
	}
}
