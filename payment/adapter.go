package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"ticketing/clock"
	"ticketing/entity"
	"ticketing/metrics"
)

type Client interface {
	Charge(ctx context.Context, request entity.ChargeRequest) (entity.Payment, error)
	Refund(ctx context.Context, request entity.RefundRequest) (entity.Payment, error)
	GetByBooking(ctx context.Context, bookingID string) (entity.Payment, error)
}

type Ledger interface {
	Append(ctx context.Context, transaction entity.Transaction) error
	ListByBooking(ctx context.Context, bookingID string) ([]entity.Transaction, error)
}

// ErrNotRecorded means the remote call went through but its ledger entry couldn't be
// written. Callers must not act on the outcome until a retry records it.
var ErrNotRecorded = errors.New("payment transaction not recorded")

// Adapter wraps the remote payment service. Every charge or refund call it makes
// is recorded in the ledger, whatever the outcome.
type Adapter struct {
	client Client
	ledger Ledger
	clock  clock.Clock
}

func NewAdapter(client Client, ledger Ledger, clk clock.Clock) *Adapter {
	if client == nil {
		panic("missing payment client")
	}
	if ledger == nil {
		panic("missing ledger")
	}
	if clk == nil {
		panic("missing clock")
	}

	return &Adapter{
		client: client,
		ledger: ledger,
		clock:  clk,
	}
}

// Charge pays for the booking at most once. If the payment service already holds a
// successful payment for it, that payment is returned and nothing is charged; a
// SUCCESS ledger entry missing for it is appended first.
//
// A declined charge returns a FAILED payment and no error, a charge the payment
// service hasn't settled yet returns a PENDING one. A transport failure returns a
// FAILED payment together with an error matching entity.ErrRemoteUnavailable.
// When the ledger write fails the error matches ErrNotRecorded.
func (a *Adapter) Charge(ctx context.Context, booking entity.Booking) (entity.Payment, error) {
	existing, found, err := a.PaymentForBooking(ctx, booking.BookingID)
	if err != nil {
		return entity.Payment{}, err
	}
	if found && existing.Succeeded() {
		log.FromContext(ctx).WithField("payment_id", existing.PaymentID).Info("Booking already paid, skipping charge")
		if err := a.ensureRecorded(ctx, existing, entity.TransactionTypePayment); err != nil {
			return existing, err
		}
		return existing, nil
	}
	if found && existing.InProgress() {
		// the payment service is still settling an earlier charge
		return existing, nil
	}

	payment, callErr := a.client.Charge(ctx, entity.ChargeRequest{
		BookingID: booking.BookingID,
		UserID:    booking.UserID,
		Amount:    booking.TotalAmount,
	})
	if callErr != nil {
		payment = entity.Payment{
			BookingID: booking.BookingID,
			UserID:    booking.UserID,
			Amount:    booking.TotalAmount,
			Status:    entity.PaymentStatusFailed,
			Message:   callErr.Error(),
			CreatedAt: a.clock.Now(),
		}
	}

	outcome := entity.TransactionStatusFailed
	message := fmt.Sprintf("charge of %s failed", booking.TotalAmount)
	switch {
	case payment.Succeeded():
		outcome = entity.TransactionStatusSuccess
		message = fmt.Sprintf("charged %s", booking.TotalAmount)
	case payment.InProgress():
		outcome = entity.TransactionStatusPending
		message = fmt.Sprintf("charge of %s is being settled", booking.TotalAmount)
	}
	if payment.Message != "" {
		message += ": " + payment.Message
	}

	recordErr := a.record(ctx, entity.Transaction{
		PaymentID: payment.PaymentID,
		BookingID: booking.BookingID,
		Amount:    booking.TotalAmount,
		Type:      entity.TransactionTypePayment,
		Status:    outcome,
		Message:   message,
	})
	metrics.RemoteCalls.WithLabelValues("payments", "charge", string(outcome)).Inc()

	if callErr != nil {
		return payment, errors.Join(remoteUnavailable(callErr), recordErr)
	}
	if recordErr != nil {
		return payment, recordErr
	}

	return payment, nil
}

// Refund returns the money of a successful payment. A payment that is already
// refunded is returned as is, without calling the payment service.
func (a *Adapter) Refund(ctx context.Context, payment entity.Payment) (entity.Payment, error) {
	if payment.Status == entity.PaymentStatusRefunded {
		if err := a.ensureRecorded(ctx, payment, entity.TransactionTypeRefund); err != nil {
			return payment, err
		}
		return payment, nil
	}
	if !payment.Succeeded() {
		return entity.Payment{}, fmt.Errorf(
			"%w: payment %s is %s and can't be refunded",
			entity.ErrInvalidTransition, payment.PaymentID, payment.Status,
		)
	}

	refunded, callErr := a.client.Refund(ctx, entity.RefundRequest{
		PaymentID: payment.PaymentID,
		BookingID: payment.BookingID,
		Amount:    payment.Amount,
	})
	if callErr != nil {
		refunded = payment
		refunded.Message = callErr.Error()
	}

	outcome := entity.TransactionStatusFailed
	message := fmt.Sprintf("refund of %s failed", payment.Amount)
	if refunded.Status == entity.PaymentStatusRefunded {
		outcome = entity.TransactionStatusSuccess
		message = fmt.Sprintf("refunded %s", payment.Amount)
	}
	if refunded.Message != "" && outcome == entity.TransactionStatusFailed {
		message += ": " + refunded.Message
	}

	recordErr := a.record(ctx, entity.Transaction{
		PaymentID: payment.PaymentID,
		BookingID: payment.BookingID,
		Amount:    payment.Amount,
		Type:      entity.TransactionTypeRefund,
		Status:    outcome,
		Message:   message,
	})
	metrics.RemoteCalls.WithLabelValues("payments", "refund", string(outcome)).Inc()

	if callErr != nil {
		return refunded, errors.Join(remoteUnavailable(callErr), recordErr)
	}
	if recordErr != nil {
		return refunded, recordErr
	}

	return refunded, nil
}

// PaymentForBooking looks the booking's payment up. found is false when the booking was never charged.
func (a *Adapter) PaymentForBooking(ctx context.Context, bookingID string) (payment entity.Payment, found bool, err error) {
	payment, err = a.client.GetByBooking(ctx, bookingID)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Payment{}, false, nil
	}
	if err != nil {
		metrics.RemoteCalls.WithLabelValues("payments", "get", "FAILED").Inc()
		return entity.Payment{}, false, remoteUnavailable(err)
	}

	return payment, true, nil
}

func (a *Adapter) record(ctx context.Context, transaction entity.Transaction) error {
	transaction.TransactionID = uuid.NewString()
	transaction.CreatedAt = a.clock.Now()

	if err := a.ledger.Append(ctx, transaction); err != nil {
		log.FromContext(ctx).
			WithError(err).
			WithField("booking_id", transaction.BookingID).
			WithField("payment_id", transaction.PaymentID).
			WithField("type", transaction.Type).
			WithField("status", transaction.Status).
			Error("Could not append payment transaction to ledger")

		return fmt.Errorf(
			"%w: %s %s of booking %s: %v",
			ErrNotRecorded, transaction.Type, transaction.Status, transaction.BookingID, err,
		)
	}

	return nil
}

// ensureRecorded appends the SUCCESS entry of a settled payment or refund when an
// earlier ledger write for it was lost.
func (a *Adapter) ensureRecorded(ctx context.Context, payment entity.Payment, transactionType entity.TransactionType) error {
	transactions, err := a.ledger.ListByBooking(ctx, payment.BookingID)
	if err != nil {
		return fmt.Errorf("%w: could not read ledger of booking %s: %v", ErrNotRecorded, payment.BookingID, err)
	}

	recorded := lo.ContainsBy(transactions, func(tr entity.Transaction) bool {
		return tr.PaymentID == payment.PaymentID &&
			tr.Type == transactionType &&
			tr.Status == entity.TransactionStatusSuccess
	})
	if recorded {
		return nil
	}

	message := fmt.Sprintf("charged %s", payment.Amount)
	if transactionType == entity.TransactionTypeRefund {
		message = fmt.Sprintf("refunded %s", payment.Amount)
	}

	log.FromContext(ctx).
		WithField("booking_id", payment.BookingID).
		WithField("payment_id", payment.PaymentID).
		WithField("type", transactionType).
		Warn("Settled payment missing from ledger, recording it")

	return a.record(ctx, entity.Transaction{
		PaymentID: payment.PaymentID,
		BookingID: payment.BookingID,
		Amount:    payment.Amount,
		Type:      transactionType,
		Status:    entity.TransactionStatusSuccess,
		Message:   message,
	})
}

func remoteUnavailable(err error) error {
	if errors.Is(err, entity.ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", entity.ErrRemoteUnavailable, err)
}
