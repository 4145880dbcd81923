package pubsub

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"ticketing/metrics"
)

// PoisonQueueTopic receives messages that still fail after all retries, see poison-queue-cli.
const PoisonQueueTopic = "poison_queue"

// RequeuedForHandlerKey marks a message requeued from the poison queue with the handler
// that failed it. Other handlers subscribed to the same topic skip it.
const RequeuedForHandlerKey = "requeued_for_handler"

// set by log.CorrelationPublisherDecorator
const correlationIDMetadataKey = "correlation_id"

func useMiddlewares(router *message.Router, publisher message.Publisher, watermillLogger watermill.LoggerAdapter) error {
	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(requeueFilterMiddleware)

	poisonQueue, err := middleware.PoisonQueue(publisher, PoisonQueueTopic)
	if err != nil {
		return fmt.Errorf("could not create poison queue middleware: %w", err)
	}
	router.AddMiddleware(poisonQueue)

	router.AddMiddleware(middleware.Retry{
		MaxRetries:      10,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          watermillLogger,
	}.Middleware)

	router.AddMiddleware(
		correlationIDMiddleware,
		tracingMiddleware,
		loggingMiddleware,
		metricsMiddleware,
	)

	return nil
}

func requeueFilterMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		target := msg.Metadata.Get(RequeuedForHandlerKey)
		if target == "" {
			return next(msg)
		}

		handler := message.HandlerNameFromCtx(msg.Context())
		if handler != target {
			log.FromContext(msg.Context()).WithFields(logrus.Fields{
				"message_id": msg.UUID,
				"handler":    handler,
				"requeued":   target,
			}).Debug("Skipping message requeued for another handler")
			return nil, nil
		}

		// messages the handler publishes further go to everyone again
		delete(msg.Metadata, RequeuedForHandlerKey)

		return next(msg)
	}
}

func correlationIDMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := msg.Metadata.Get(correlationIDMetadataKey)
		if correlationID == "" {
			correlationID = "gen_" + shortuuid.New()
		}

		ctx := log.ContextWithCorrelationID(msg.Context(), correlationID)
		ctx = log.ToContext(ctx, logrus.WithField("correlation_id", correlationID))
		msg.SetContext(ctx)

		return next(msg)
	}
}

func tracingMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		topic := message.SubscribeTopicFromCtx(msg.Context())
		handler := message.HandlerNameFromCtx(msg.Context())

		ctx := otel.GetTextMapPropagator().Extract(msg.Context(), propagation.MapCarrier(msg.Metadata))
		ctx, span := otel.Tracer("").Start(ctx, "message handling: "+topic+"/"+handler)
		defer span.End()

		span.SetAttributes(
			attribute.String("topic", topic),
			attribute.String("handler", handler),
			attribute.String("message_id", msg.UUID),
		)
		msg.SetContext(ctx)

		msgs, err := next(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return msgs, err
	}
}

func loggingMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		logger := log.FromContext(msg.Context()).WithFields(logrus.Fields{
			"message_id": msg.UUID,
			"handler":    message.HandlerNameFromCtx(msg.Context()),
			"trace_id":   trace.SpanFromContext(msg.Context()).SpanContext().TraceID().String(),
		})
		msg.SetContext(log.ToContext(msg.Context(), logger))

		logger.WithField("payload", string(msg.Payload)).Debug("Handling a message")

		msgs, err := next(msg)
		if err != nil {
			logger.WithError(err).Error("Error while handling a message")
		}

		return msgs, err
	}
}

func metricsMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		start := time.Now()
		labels := prometheus.Labels{
			"topic":   message.SubscribeTopicFromCtx(msg.Context()),
			"handler": message.HandlerNameFromCtx(msg.Context()),
		}

		msgs, err := next(msg)

		if err != nil {
			metrics.MessagesProcessingFailed.With(labels).Inc()
		}
		metrics.MessagesProcessed.With(labels).Inc()
		metrics.MessagesProcessingDuration.With(labels).Observe(time.Since(start).Seconds())

		return msgs, err
	}
}
