package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"ticketing/entity"
)

type NotificationsMock struct {
	mock sync.Mutex

	Notifications []entity.Notification
	Deleted       []string

	Unavailable bool
}

func (c *NotificationsMock) Send(ctx context.Context, request entity.SendNotificationRequest) error {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Unavailable {
		return fmt.Errorf("%w: notification service timed out", entity.ErrRemoteUnavailable)
	}

	c.Notifications = append(c.Notifications, entity.Notification{
		NotificationID: uuid.NewString(),
		RecipientID:    request.RecipientID,
		RecipientEmail: request.RecipientEmail,
		Subject:        request.Subject,
		Message:        request.Message,
		Status:         "SENT",
		CreatedAt:      time.Now().UTC(),
	})

	return nil
}

func (c *NotificationsMock) ListByRecipient(ctx context.Context, recipientID string) ([]entity.Notification, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Unavailable {
		return nil, fmt.Errorf("%w: notification service timed out", entity.ErrRemoteUnavailable)
	}

	return lo.Filter(c.Notifications, func(n entity.Notification, _ int) bool {
		return n.RecipientID == recipientID
	}), nil
}

func (c *NotificationsMock) Delete(ctx context.Context, notificationID string) error {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Unavailable {
		return fmt.Errorf("%w: notification service timed out", entity.ErrRemoteUnavailable)
	}

	_, idx, found := lo.FindIndexOf(c.Notifications, func(n entity.Notification) bool {
		return n.NotificationID == notificationID
	})
	if !found {
		return fmt.Errorf("notification %s: %w", notificationID, entity.ErrNotFound)
	}

	c.Notifications = append(c.Notifications[:idx], c.Notifications[idx+1:]...)
	c.Deleted = append(c.Deleted, notificationID)

	return nil
}

func (c *NotificationsMock) Sent() []entity.Notification {
	c.mock.Lock()
	defer c.mock.Unlock()

	return append([]entity.Notification(nil), c.Notifications...)
}

func (c *NotificationsMock) SetUnavailable(unavailable bool) {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.Unavailable = unavailable
}
