package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MinTicketsPerBooking = 1
	MaxTicketsPerBooking = 10
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusRefunded  BookingStatus = "REFUNDED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusRefunded},
}

var AllBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusCancelled,
	BookingStatusRefunded,
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// HoldsTickets reports whether a booking in this status counts against show capacity.
func (s BookingStatus) HoldsTickets() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

type Booking struct {
	BookingID       string        `json:"booking_id"`
	ShowID          string        `json:"show_id"`
	UserID          string        `json:"user_id"`
	NumberOfTickets int           `json:"number_of_tickets"`
	TotalAmount     Money         `json:"total_amount"`
	Status          BookingStatus `json:"status"`

	CustomerEmail  string `json:"customer_email"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	SpecialRequest string `json:"special_request,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	PaymentID          string     `json:"payment_id,omitempty"`
	PaidAt             *time.Time `json:"paid_at,omitempty"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`
}

type BookingContact struct {
	Email          string
	Phone          string
	SpecialRequest string
}

// NewBooking validates the request and prices it against the show. The booking starts PENDING.
func NewBooking(show Show, userID string, numberOfTickets int, contact BookingContact, now time.Time) (Booking, error) {
	if show.ShowID == "" {
		return Booking{}, InvalidRequestf("show id must be set")
	}
	if userID == "" {
		return Booking{}, InvalidRequestf("user id must be set")
	}
	if numberOfTickets < MinTicketsPerBooking || numberOfTickets > MaxTicketsPerBooking {
		return Booking{}, InvalidRequestf(
			"number of tickets must be between %d and %d, got %d",
			MinTicketsPerBooking, MaxTicketsPerBooking, numberOfTickets,
		)
	}
	email := strings.TrimSpace(contact.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Booking{}, InvalidRequestf("valid customer email must be set")
	}

	return Booking{
		BookingID:       uuid.NewString(),
		ShowID:          show.ShowID,
		UserID:          userID,
		NumberOfTickets: numberOfTickets,
		TotalAmount:     show.TicketPrice.Times(numberOfTickets),
		Status:          BookingStatusPending,
		CustomerEmail:   email,
		CustomerPhone:   strings.TrimSpace(contact.Phone),
		SpecialRequest:  strings.TrimSpace(contact.SpecialRequest),
		CreatedAt:       now.UTC(),
	}, nil
}

// BookingTransition describes a single compare-and-swap status change.
type BookingTransition struct {
	From BookingStatus
	To   BookingStatus
	At   time.Time

	PaymentID          string
	CancellationReason string
}

func (t BookingTransition) Validate() error {
	if !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	if t.To == BookingStatusConfirmed && t.PaymentID == "" {
		return InvalidRequestf("payment id must be set when confirming a booking")
	}
	return nil
}

// Apply returns a copy of the booking after the transition.
func (t BookingTransition) Apply(b Booking) (Booking, error) {
	if err := t.Validate(); err != nil {
		return Booking{}, err
	}
	if b.Status != t.From {
		return Booking{}, fmt.Errorf("%w: booking %s is %s, expected %s", ErrInvalidTransition, b.BookingID, b.Status, t.From)
	}

	at := t.At.UTC()
	b.Status = t.To
	switch t.To {
	case BookingStatusConfirmed:
		b.PaymentID = t.PaymentID
		b.PaidAt = &at
	case BookingStatusCancelled:
		b.CancelledAt = &at
		b.CancellationReason = t.CancellationReason
	case BookingStatusRefunded:
		b.RefundedAt = &at
	}

	return b, nil
}

func ConfirmTransition(paymentID string, at time.Time) BookingTransition {
	return BookingTransition{From: BookingStatusPending, To: BookingStatusConfirmed, At: at, PaymentID: paymentID}
}

func CancelTransition(reason string, at time.Time) BookingTransition {
	return BookingTransition{From: BookingStatusPending, To: BookingStatusCancelled, At: at, CancellationReason: reason}
}

func RefundTransition(at time.Time) BookingTransition {
	return BookingTransition{From: BookingStatusConfirmed, To: BookingStatusRefunded, At: at}
}
