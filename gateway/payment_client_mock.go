package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticketing/entity"
)

// PaymentMock is an in-memory payment service. Decline and Unavailable switch failure modes,
// SettleLater leaves new charges PENDING until Settle is called.
type PaymentMock struct {
	mock sync.Mutex

	Payments map[string]entity.Payment

	ChargeCalls int
	RefundCalls int

	Decline            bool
	DeclineRefunds     bool
	SettleLater        bool
	Unavailable        bool
	LookupsUnavailable bool
}

func (c *PaymentMock) Charge(ctx context.Context, request entity.ChargeRequest) (entity.Payment, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.ChargeCalls++
	if c.Unavailable {
		return entity.Payment{}, fmt.Errorf("%w: payment service timed out", entity.ErrRemoteUnavailable)
	}
	if c.Payments == nil {
		c.Payments = make(map[string]entity.Payment)
	}

	now := time.Now().UTC()
	payment := entity.Payment{
		PaymentID:   uuid.NewString(),
		BookingID:   request.BookingID,
		UserID:      request.UserID,
		Amount:      request.Amount,
		Status:      entity.PaymentStatusSuccess,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	if c.Decline {
		payment.Status = entity.PaymentStatusFailed
		payment.Message = "card declined"
	}
	if c.SettleLater {
		payment.Status = entity.PaymentStatusPending
		payment.CompletedAt = nil
	}

	c.Payments[request.BookingID] = payment

	return payment, nil
}

func (c *PaymentMock) Refund(ctx context.Context, request entity.RefundRequest) (entity.Payment, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.RefundCalls++
	if c.Unavailable {
		return entity.Payment{}, fmt.Errorf("%w: payment service timed out", entity.ErrRemoteUnavailable)
	}

	payment, ok := c.Payments[request.BookingID]
	if !ok || payment.PaymentID != request.PaymentID {
		return entity.Payment{}, fmt.Errorf("payment %s: %w", request.PaymentID, entity.ErrNotFound)
	}
	if c.DeclineRefunds {
		payment.Message = "refund rejected"
		return payment, nil
	}

	payment.Status = entity.PaymentStatusRefunded
	c.Payments[request.BookingID] = payment

	return payment, nil
}

func (c *PaymentMock) GetByBooking(ctx context.Context, bookingID string) (entity.Payment, error) {
	c.mock.Lock()
	defer c.mock.Unlock()

	if c.Unavailable || c.LookupsUnavailable {
		return entity.Payment{}, fmt.Errorf("%w: payment service timed out", entity.ErrRemoteUnavailable)
	}

	payment, ok := c.Payments[bookingID]
	if !ok {
		return entity.Payment{}, fmt.Errorf("payment of booking %s: %w", bookingID, entity.ErrNotFound)
	}

	return payment, nil
}

func (c *PaymentMock) Calls() (charges int, refunds int) {
	c.mock.Lock()
	defer c.mock.Unlock()

	return c.ChargeCalls, c.RefundCalls
}

func (c *PaymentMock) SetUnavailable(unavailable bool) {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.Unavailable = unavailable
}

func (c *PaymentMock) SetDecline(decline bool) {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.Decline = decline
}

func (c *PaymentMock) SetSettleLater(settleLater bool) {
	c.mock.Lock()
	defer c.mock.Unlock()

	c.SettleLater = settleLater
}

// Settle completes the pending payment of a booking with the given status.
func (c *PaymentMock) Settle(bookingID string, status entity.PaymentStatus) {
	c.mock.Lock()
	defer c.mock.Unlock()

	payment, ok := c.Payments[bookingID]
	if !ok {
		return
	}

	now := time.Now().UTC()
	payment.Status = status
	payment.CompletedAt = &now
	c.Payments[bookingID] = payment
}
