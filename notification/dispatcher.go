package notification

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/samber/lo"

	"ticketing/entity"
	"ticketing/metrics"
)

type Sender interface {
	Send(ctx context.Context, request entity.SendNotificationRequest) error
}

type Client interface {
	Sender
	ListByRecipient(ctx context.Context, recipientID string) ([]entity.Notification, error)
	Delete(ctx context.Context, notificationID string) error
}

type Dispatcher struct {
	sender Sender
	client Client
}

// NewDispatcher sends through sender and reads/deletes through client. Pass the
// same client twice when there is no dedicated sender.
func NewDispatcher(sender Sender, client Client) *Dispatcher {
	if sender == nil {
		panic("missing notification sender")
	}
	if client == nil {
		panic("missing notifications client")
	}

	return &Dispatcher{sender: sender, client: client}
}

// Notify is best effort. Failures are logged and never returned.
func (d *Dispatcher) Notify(ctx context.Context, recipient entity.User, subject, message string) {
	logger := log.FromContext(ctx).WithField("recipient_id", recipient.UserID).WithField("subject", subject)

	if !recipient.NotificationsEnabled {
		logger.Debug("Notifications disabled for recipient, skipping")
		return
	}

	err := d.sender.Send(ctx, entity.SendNotificationRequest{
		RecipientID:    recipient.UserID,
		RecipientEmail: recipient.Email,
		Subject:        subject,
		Message:        message,
	})
	if err != nil {
		metrics.RemoteCalls.WithLabelValues("notifications", "send", "FAILED").Inc()
		logger.WithError(err).Warn("Could not send notification")
		return
	}

	metrics.RemoteCalls.WithLabelValues("notifications", "send", "SUCCESS").Inc()
}

func (d *Dispatcher) ListFor(ctx context.Context, recipientID string) ([]entity.Notification, error) {
	if recipientID == "" {
		return nil, entity.InvalidRequestf("recipient id must be set")
	}

	notifications, err := d.client.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("could not list notifications: %w", err)
	}

	return notifications, nil
}

// Delete removes a notification owned by the actor. Ownership is checked against the
// actor's own notifications before anything is deleted.
func (d *Dispatcher) Delete(ctx context.Context, actor entity.Actor, notificationID string) error {
	if notificationID == "" {
		return entity.InvalidRequestf("notification id must be set")
	}
	if actor.UserID == "" {
		return entity.ErrUnauthorized
	}

	owned, err := d.client.ListByRecipient(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("could not verify notification ownership: %w", err)
	}

	_, isOwner := lo.Find(owned, func(n entity.Notification) bool {
		return n.NotificationID == notificationID
	})
	if !isOwner {
		return fmt.Errorf("%w: notification %s doesn't belong to %s", entity.ErrUnauthorized, notificationID, actor.UserID)
	}

	if err := d.client.Delete(ctx, notificationID); err != nil {
		return fmt.Errorf("could not delete notification: %w", err)
	}

	return nil
}
