package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"ticketing/entity"
)

const NotificationsQueue = "notifications.send"

var errSenderClosed = errors.New("notifications sender closed")

// NotificationsAMQPSender hands notifications to the notification service through RabbitMQ.
// Only sending goes through the queue; listing and deleting stay on HTTP.
//
// A dropped connection is dialed again on the next Send. Every publish waits for the
// broker to confirm it.
type NotificationsAMQPSender struct {
	url string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

// NewNotificationsAMQPSender connects right away, so a wrong url fails at startup.
func NewNotificationsAMQPSender(url string) (*NotificationsAMQPSender, error) {
	s := &NotificationsAMQPSender{url: url}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *NotificationsAMQPSender) Send(ctx context.Context, request entity.SendNotificationRequest) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("could not marshal notification: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSenderClosed
	}
	if s.conn == nil || s.conn.IsClosed() || s.channel.IsClosed() {
		log.FromContext(ctx).Info("RabbitMQ connection lost, reconnecting")
		if err := s.connect(); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrRemoteUnavailable, err)
		}
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		CorrelationId: log.CorrelationIDFromContext(ctx),
		Body:          body,
	}

	confirmation, err := s.publish(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) {
		// the connection dropped after the check above
		if err := s.connect(); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrRemoteUnavailable, err)
		}
		confirmation, err = s.publish(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("%w: could not publish notification: %v", entity.ErrRemoteUnavailable, err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: notification not confirmed: %v", entity.ErrRemoteUnavailable, err)
	}
	if !acked {
		return fmt.Errorf("%w: broker rejected notification", entity.ErrRemoteUnavailable)
	}

	return nil
}

func (s *NotificationsAMQPSender) publish(ctx context.Context, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	return s.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		"", // default exchange
		NotificationsQueue,
		false, // mandatory
		false, // immediate
		msg,
	)
}

func (s *NotificationsAMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return s.disconnect()
}

// connect replaces the connection and channel. Must be called with mu held.
func (s *NotificationsAMQPSender) connect() error {
	_ = s.disconnect()

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("could not connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("could not open rabbitmq channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("could not put rabbitmq channel in confirm mode: %w", err)
	}

	_, err = ch.QueueDeclare(
		NotificationsQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("could not declare %s queue: %w", NotificationsQueue, err)
	}

	s.conn = conn
	s.channel = ch

	return nil
}

func (s *NotificationsAMQPSender) disconnect() error {
	if s.conn == nil {
		return nil
	}

	conn, ch := s.conn, s.channel
	s.conn, s.channel = nil, nil

	if !ch.IsClosed() {
		_ = ch.Close()
	}
	if conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
