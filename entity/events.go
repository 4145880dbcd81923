package entity

import (
	"time"

	"github.com/google/uuid"
)

type Event interface {
	IsInternal() bool
}

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type BookingCreated_v1 struct {
	Header EventHeader `json:"header"`

	BookingID       string `json:"booking_id"`
	ShowID          string `json:"show_id"`
	UserID          string `json:"user_id"`
	NumberOfTickets int    `json:"number_of_tickets"`
	TotalAmount     Money  `json:"total_amount"`
	CustomerEmail   string `json:"customer_email"`
}

func (BookingCreated_v1) IsInternal() bool { return false }

type BookingConfirmed_v1 struct {
	Header EventHeader `json:"header"`

	BookingID string    `json:"booking_id"`
	ShowID    string    `json:"show_id"`
	PaymentID string    `json:"payment_id"`
	PaidAt    time.Time `json:"paid_at"`
}

func (BookingConfirmed_v1) IsInternal() bool { return false }

type BookingCancelled_v1 struct {
	Header EventHeader `json:"header"`

	BookingID       string    `json:"booking_id"`
	ShowID          string    `json:"show_id"`
	NumberOfTickets int       `json:"number_of_tickets"`
	Reason          string    `json:"reason"`
	CancelledAt     time.Time `json:"cancelled_at"`
}

func (BookingCancelled_v1) IsInternal() bool { return false }

type BookingRefunded_v1 struct {
	Header EventHeader `json:"header"`

	BookingID       string    `json:"booking_id"`
	ShowID          string    `json:"show_id"`
	NumberOfTickets int       `json:"number_of_tickets"`
	RefundedAt      time.Time `json:"refunded_at"`
}

func (BookingRefunded_v1) IsInternal() bool { return false }

// ExpiredBookingsSwept_v1 stays inside the service; it feeds sweep metrics.
type ExpiredBookingsSwept_v1 struct {
	Header EventHeader `json:"header"`

	Examined  int `json:"examined"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
}

func (ExpiredBookingsSwept_v1) IsInternal() bool { return true }

// TransitionEvent returns the event published together with a persisted transition.
func TransitionEvent(b Booking) Event {
	switch b.Status {
	case BookingStatusConfirmed:
		var paidAt time.Time
		if b.PaidAt != nil {
			paidAt = *b.PaidAt
		}
		return BookingConfirmed_v1{
			Header:    NewEventHeaderWithIdempotencyKey(b.BookingID + "-confirmed"),
			BookingID: b.BookingID,
			ShowID:    b.ShowID,
			PaymentID: b.PaymentID,
			PaidAt:    paidAt,
		}
	case BookingStatusCancelled:
		var cancelledAt time.Time
		if b.CancelledAt != nil {
			cancelledAt = *b.CancelledAt
		}
		return BookingCancelled_v1{
			Header:          NewEventHeaderWithIdempotencyKey(b.BookingID + "-cancelled"),
			BookingID:       b.BookingID,
			ShowID:          b.ShowID,
			NumberOfTickets: b.NumberOfTickets,
			Reason:          b.CancellationReason,
			CancelledAt:     cancelledAt,
		}
	case BookingStatusRefunded:
		var refundedAt time.Time
		if b.RefundedAt != nil {
			refundedAt = *b.RefundedAt
		}
		return BookingRefunded_v1{
			Header:          NewEventHeaderWithIdempotencyKey(b.BookingID + "-refunded"),
			BookingID:       b.BookingID,
			ShowID:          b.ShowID,
			NumberOfTickets: b.NumberOfTickets,
			RefundedAt:      refundedAt,
		}
	default:
		return nil
	}
}

type DataLakeEvent struct {
	ID          string    `db:"event_id"`
	PublishedAt time.Time `db:"published_at"`
	Name        string    `db:"event_name"`
	Payload     []byte    `db:"event_payload"`
}
