package entity

import "time"

type Notification struct {
	NotificationID string    `json:"notification_id"`
	RecipientID    string    `json:"recipient_id"`
	RecipientEmail string    `json:"recipient_email"`
	Subject        string    `json:"subject"`
	Message        string    `json:"message"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type SendNotificationRequest struct {
	RecipientID    string `json:"recipient_id"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
}
