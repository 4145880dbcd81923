package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"ticketing/entity"
)

type NotificationsClient struct {
	client jsonClient
}

func NewNotificationsClient(baseURL string, httpClient *http.Client) NotificationsClient {
	return NotificationsClient{
		client: newJSONClient(baseURL, httpClient),
	}
}

func (c NotificationsClient) Send(ctx context.Context, request entity.SendNotificationRequest) error {
	_, err := c.client.do(ctx, http.MethodPost, "/notifications", request, nil, http.StatusOK, http.StatusCreated, http.StatusAccepted)
	if err != nil {
		return fmt.Errorf("could not send notification to %s: %w", request.RecipientID, err)
	}

	return nil
}

func (c NotificationsClient) ListByRecipient(ctx context.Context, recipientID string) ([]entity.Notification, error) {
	var notifications []entity.Notification
	_, err := c.client.do(
		ctx,
		http.MethodGet,
		"/notifications?recipient_id="+url.QueryEscape(recipientID),
		nil,
		&notifications,
		http.StatusOK,
	)
	if err != nil {
		return nil, fmt.Errorf("could not list notifications of %s: %w", recipientID, err)
	}

	return notifications, nil
}

func (c NotificationsClient) Delete(ctx context.Context, notificationID string) error {
	_, err := c.client.do(
		ctx,
		http.MethodDelete,
		"/notifications/"+url.PathEscape(notificationID),
		nil,
		nil,
		http.StatusOK, http.StatusNoContent,
	)
	if err != nil {
		return fmt.Errorf("could not delete notification %s: %w", notificationID, err)
	}

	return nil
}
