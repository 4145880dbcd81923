package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"

	"ticketing/clock"
	"ticketing/entity"
	"ticketing/lock"
	"ticketing/metrics"
)

const (
	AutoCancelReason    = "auto-cancelled after timeout"
	defaultCancelReason = "cancelled by user"
)

type BookingsRepository interface {
	Create(ctx context.Context, booking entity.Booking) error
	Get(ctx context.Context, bookingID string) (entity.Booking, error)
	Transition(ctx context.Context, bookingID string, transition entity.BookingTransition) (entity.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]entity.Booking, error)
}

type ShowsRepository interface {
	Get(ctx context.Context, showID string) (entity.Show, error)
}

type UsersRepository interface {
	Get(ctx context.Context, userID string) (entity.User, error)
}

type PaymentAdapter interface {
	Charge(ctx context.Context, booking entity.Booking) (entity.Payment, error)
	Refund(ctx context.Context, payment entity.Payment) (entity.Payment, error)
	PaymentForBooking(ctx context.Context, bookingID string) (entity.Payment, bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipient entity.User, subject, message string)
}

type Locker interface {
	Lock(ctx context.Context, key string) (lock.Unlock, error)
}

// Service runs the booking saga: reserve, charge, confirm, and the compensations
// (release, refund) when a step can't be completed.
type Service struct {
	bookings BookingsRepository
	shows    ShowsRepository
	users    UsersRepository
	payments PaymentAdapter
	notifier Notifier
	locker   Locker
	clock    clock.Clock
}

func NewService(
	bookings BookingsRepository,
	shows ShowsRepository,
	users UsersRepository,
	payments PaymentAdapter,
	notifier Notifier,
	locker Locker,
	clk clock.Clock,
) *Service {
	if bookings == nil {
		panic("missing bookings repository")
	}
	if shows == nil {
		panic("missing shows repository")
	}
	if users == nil {
		panic("missing users repository")
	}
	if payments == nil {
		panic("missing payment adapter")
	}
	if notifier == nil {
		panic("missing notifier")
	}
	if locker == nil {
		panic("missing locker")
	}
	if clk == nil {
		panic("missing clock")
	}

	return &Service{
		bookings: bookings,
		shows:    shows,
		users:    users,
		payments: payments,
		notifier: notifier,
		locker:   locker,
		clock:    clk,
	}
}

type CreateBookingRequest struct {
	ShowID          string
	NumberOfTickets int
	Contact         entity.BookingContact
}

type PaymentResult struct {
	Booking entity.Booking
	Payment entity.Payment
}

func (s *Service) CreateBooking(ctx context.Context, actor entity.Actor, request CreateBookingRequest) (entity.Booking, error) {
	booking, user, err := s.createBooking(ctx, actor, request)
	if err != nil {
		metrics.BookingsRejected.WithLabelValues(rejectionReason(err)).Inc()
		return entity.Booking{}, err
	}
	metrics.BookingsCreated.Inc()

	log.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id":        booking.BookingID,
		"show_id":           booking.ShowID,
		"number_of_tickets": booking.NumberOfTickets,
	}).Info("Booking created")

	s.notifier.Notify(
		ctx,
		user,
		"Booking received",
		fmt.Sprintf(
			"We reserved %d ticket(s) for you, booking %s. Please complete the payment of %s.",
			booking.NumberOfTickets, booking.BookingID, booking.TotalAmount,
		),
	)

	return booking, nil
}

func (s *Service) createBooking(ctx context.Context, actor entity.Actor, request CreateBookingRequest) (entity.Booking, entity.User, error) {
	if actor.UserID == "" || actor.IsSystem() {
		return entity.Booking{}, entity.User{}, entity.InvalidRequestf("requester must be a user")
	}
	if request.ShowID == "" {
		return entity.Booking{}, entity.User{}, entity.InvalidRequestf("show id must be set")
	}

	user, err := s.users.Get(ctx, actor.UserID)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Booking{}, entity.User{}, entity.InvalidRequestf("user %s doesn't exist", actor.UserID)
	}
	if err != nil {
		return entity.Booking{}, entity.User{}, fmt.Errorf("could not get user: %w", err)
	}

	show, err := s.shows.Get(ctx, request.ShowID)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Booking{}, entity.User{}, entity.InvalidRequestf("show %s doesn't exist", request.ShowID)
	}
	if err != nil {
		return entity.Booking{}, entity.User{}, fmt.Errorf("could not get show: %w", err)
	}

	contact := request.Contact
	if contact.Email == "" {
		contact.Email = user.Email
	}

	booking, err := entity.NewBooking(show, user.UserID, request.NumberOfTickets, contact, s.clock.Now())
	if err != nil {
		return entity.Booking{}, entity.User{}, err
	}

	err = s.bookings.Create(ctx, booking)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.Booking{}, entity.User{}, entity.InvalidRequestf("show %s doesn't exist", request.ShowID)
	}
	if err != nil {
		return entity.Booking{}, entity.User{}, fmt.Errorf("could not create booking: %w", err)
	}

	return booking, user, nil
}

// ProcessPayment charges a PENDING booking and confirms it. A declined charge leaves the
// booking PENDING, so the user can retry until the expiration sweep cancels it. A charge
// the payment service hasn't settled yet also leaves it PENDING, without a failure notice;
// calling ProcessPayment again once it settled confirms the booking.
//
// The booking is only confirmed once the successful charge is in the ledger.
func (s *Service) ProcessPayment(ctx context.Context, actor entity.Actor, bookingID string) (PaymentResult, error) {
	unlock, err := s.locker.Lock(ctx, bookingID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("could not lock booking %s: %w", bookingID, err)
	}
	defer unlock()

	booking, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return PaymentResult{}, err
	}
	if !actor.CanPayFor(booking) {
		return PaymentResult{}, fmt.Errorf("%w: %s can't pay for booking %s", entity.ErrUnauthorized, actor.UserID, bookingID)
	}

	logger := log.FromContext(ctx).WithField("booking_id", bookingID)

	switch booking.Status {
	case entity.BookingStatusPending:
	case entity.BookingStatusConfirmed:
		payment, found, err := s.payments.PaymentForBooking(ctx, bookingID)
		if err != nil {
			return PaymentResult{Booking: booking}, err
		}
		if !found {
			return PaymentResult{Booking: booking}, fmt.Errorf("confirmed booking %s has no payment", bookingID)
		}
		return PaymentResult{Booking: booking, Payment: payment}, nil
	default:
		return PaymentResult{Booking: booking}, fmt.Errorf("%w: booking %s is %s", entity.ErrInvalidTransition, bookingID, booking.Status)
	}

	payment, err := s.payments.Charge(ctx, booking)
	if err != nil {
		logger.WithError(err).Warn("Could not complete payment, booking stays pending")
		return PaymentResult{Booking: booking, Payment: payment}, fmt.Errorf("could not charge booking %s: %w", bookingID, err)
	}
	if payment.InProgress() {
		logger.WithField("payment_id", payment.PaymentID).Info("Payment in progress, booking stays pending")
		return PaymentResult{Booking: booking, Payment: payment}, nil
	}
	if !payment.Succeeded() {
		logger.WithField("payment_status", payment.Status).Info("Payment not successful, booking stays pending")
		s.notifyRequester(ctx, booking, "Payment failed", fmt.Sprintf(
			"The payment for booking %s did not go through. Your tickets stay reserved for a limited time, please try again.",
			bookingID,
		))
		return PaymentResult{Booking: booking, Payment: payment}, nil
	}

	confirmed, err := s.bookings.Transition(ctx, bookingID, entity.ConfirmTransition(payment.PaymentID, s.clock.Now()))
	if errors.Is(err, entity.ErrInvalidTransition) {
		// The booking left PENDING while we were charging, the money has to go back.
		logger.WithError(err).Warn("Booking no longer pending after charge, refunding")
		s.compensateCharge(ctx, payment)
		return PaymentResult{Booking: booking, Payment: payment}, fmt.Errorf("could not confirm booking %s: %w", bookingID, err)
	}
	if err != nil {
		// A retry finds the successful payment and confirms without charging again.
		return PaymentResult{Booking: booking, Payment: payment}, fmt.Errorf("could not confirm booking %s: %w", bookingID, err)
	}

	logger.WithField("payment_id", payment.PaymentID).Info("Booking confirmed")

	s.notifyRequester(ctx, confirmed, "Booking confirmed", fmt.Sprintf(
		"Your booking %s for %d ticket(s) is confirmed. Amount paid: %s.",
		bookingID, confirmed.NumberOfTickets, payment.Amount,
	))

	return PaymentResult{Booking: confirmed, Payment: payment}, nil
}

// CancelBooking cancels a PENDING booking and releases its tickets. Cancelling a booking
// that is already CANCELLED is a no-op. The system actor also treats CONFIRMED and
// REFUNDED bookings as no-ops; users get entity.ErrInvalidTransition for them.
//
// A booking whose payment is still being settled is left alone the same way: a no-op
// for the system actor, entity.ErrInvalidTransition for users. Money already taken
// for a booking that gets cancelled is refunded.
func (s *Service) CancelBooking(ctx context.Context, actor entity.Actor, bookingID string, reason string) (entity.Booking, error) {
	unlock, err := s.locker.Lock(ctx, bookingID)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not lock booking %s: %w", bookingID, err)
	}
	defer unlock()

	booking, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return entity.Booking{}, err
	}
	if err := s.authorizeManage(ctx, actor, booking); err != nil {
		return entity.Booking{}, err
	}

	switch booking.Status {
	case entity.BookingStatusPending:
	case entity.BookingStatusCancelled:
		return booking, nil
	default:
		if actor.IsSystem() {
			return booking, nil
		}
		return booking, fmt.Errorf(
			"%w: booking %s is %s, only pending bookings can be cancelled",
			entity.ErrInvalidTransition, bookingID, booking.Status,
		)
	}

	payment, paid, err := s.payments.PaymentForBooking(ctx, bookingID)
	if err != nil {
		return booking, fmt.Errorf("could not check payment of booking %s: %w", bookingID, err)
	}
	if paid && payment.InProgress() {
		if actor.IsSystem() {
			log.FromContext(ctx).WithField("booking_id", bookingID).WithField("payment_id", payment.PaymentID).
				Info("Payment in progress, booking not cancelled")
			return booking, nil
		}
		return booking, fmt.Errorf(
			"%w: payment of booking %s is in progress",
			entity.ErrInvalidTransition, bookingID,
		)
	}

	if reason == "" {
		reason = defaultCancelReason
	}

	cancelled, err := s.bookings.Transition(ctx, bookingID, entity.CancelTransition(reason, s.clock.Now()))
	if errors.Is(err, entity.ErrInvalidTransition) && actor.IsSystem() {
		return s.bookings.Get(ctx, bookingID)
	}
	if err != nil {
		return booking, fmt.Errorf("could not cancel booking %s: %w", bookingID, err)
	}
	metrics.TicketsReleased.Add(float64(cancelled.NumberOfTickets))

	log.FromContext(ctx).WithFields(logrus.Fields{
		"booking_id": bookingID,
		"reason":     reason,
		"actor":      actor.UserID,
	}).Info("Booking cancelled")

	if paid && payment.Succeeded() {
		// charged but never confirmed
		s.compensateCharge(ctx, payment)
	}

	s.notifyRequester(ctx, cancelled, "Booking cancelled", fmt.Sprintf(
		"Your booking %s was cancelled: %s.", bookingID, reason,
	))

	return cancelled, nil
}

// RefundBooking returns the money of a CONFIRMED booking and releases its tickets.
// If the payment service can't refund, the booking stays CONFIRMED.
func (s *Service) RefundBooking(ctx context.Context, actor entity.Actor, bookingID string) (entity.Booking, error) {
	unlock, err := s.locker.Lock(ctx, bookingID)
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not lock booking %s: %w", bookingID, err)
	}
	defer unlock()

	booking, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return entity.Booking{}, err
	}
	if err := s.authorizeManage(ctx, actor, booking); err != nil {
		return entity.Booking{}, err
	}

	switch booking.Status {
	case entity.BookingStatusConfirmed:
	case entity.BookingStatusRefunded:
		return booking, nil
	default:
		return booking, fmt.Errorf(
			"%w: booking %s is %s, only confirmed bookings can be refunded",
			entity.ErrInvalidTransition, bookingID, booking.Status,
		)
	}

	payment, found, err := s.payments.PaymentForBooking(ctx, bookingID)
	if err != nil {
		return booking, fmt.Errorf("could not refund booking %s: %w", bookingID, err)
	}
	if !found {
		return booking, fmt.Errorf("confirmed booking %s has no payment", bookingID)
	}

	refunded, err := s.payments.Refund(ctx, payment)
	if err != nil {
		return booking, fmt.Errorf("could not refund booking %s: %w", bookingID, err)
	}
	if refunded.Status != entity.PaymentStatusRefunded {
		return booking, fmt.Errorf("%w: payment service did not refund booking %s", entity.ErrRemoteUnavailable, bookingID)
	}

	updated, err := s.bookings.Transition(ctx, bookingID, entity.RefundTransition(s.clock.Now()))
	if err != nil {
		// A retry sees the payment as refunded and only finishes the transition.
		return booking, fmt.Errorf("could not mark booking %s as refunded: %w", bookingID, err)
	}
	metrics.TicketsReleased.Add(float64(updated.NumberOfTickets))

	log.FromContext(ctx).WithField("booking_id", bookingID).Info("Booking refunded")

	s.notifyRequester(ctx, updated, "Booking refunded", fmt.Sprintf(
		"Your booking %s was refunded. Amount returned: %s.", bookingID, payment.Amount,
	))

	return updated, nil
}

func (s *Service) GetBooking(ctx context.Context, actor entity.Actor, bookingID string) (entity.Booking, error) {
	booking, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return entity.Booking{}, err
	}

	if actor.IsAdmin() || actor.UserID == booking.UserID {
		return booking, nil
	}
	if err := s.authorizeManage(ctx, actor, booking); err != nil {
		return entity.Booking{}, err
	}

	return booking, nil
}

func (s *Service) ListBookingsForUser(ctx context.Context, actor entity.Actor, userID string) ([]entity.Booking, error) {
	if userID == "" {
		return nil, entity.InvalidRequestf("user id must be set")
	}
	if !actor.IsAdmin() && actor.UserID != userID {
		return nil, fmt.Errorf("%w: %s can't list bookings of %s", entity.ErrUnauthorized, actor.UserID, userID)
	}

	return s.bookings.ListByUser(ctx, userID)
}

func (s *Service) authorizeManage(ctx context.Context, actor entity.Actor, booking entity.Booking) error {
	if actor.IsAdmin() || (actor.UserID != "" && actor.UserID == booking.UserID) {
		return nil
	}

	show, err := s.shows.Get(ctx, booking.ShowID)
	if err != nil {
		return fmt.Errorf("could not get show: %w", err)
	}
	if !actor.CanManageBooking(booking, show) {
		return fmt.Errorf("%w: %s can't manage booking %s", entity.ErrUnauthorized, actor.UserID, booking.BookingID)
	}

	return nil
}

func (s *Service) compensateCharge(ctx context.Context, payment entity.Payment) {
	logger := log.FromContext(ctx).WithField("payment_id", payment.PaymentID).WithField("booking_id", payment.BookingID)

	refunded, err := s.payments.Refund(ctx, payment)
	if err != nil {
		logger.WithError(err).Error("Could not refund payment of a booking that can't be confirmed")
		return
	}
	if refunded.Status != entity.PaymentStatusRefunded {
		logger.WithField("payment_status", refunded.Status).Error("Payment service did not refund payment of a booking that can't be confirmed")
	}
}

func (s *Service) notifyRequester(ctx context.Context, booking entity.Booking, subject, message string) {
	user, err := s.users.Get(ctx, booking.UserID)
	if err != nil {
		log.FromContext(ctx).WithError(err).WithField("booking_id", booking.BookingID).
			Warn("Could not load booking owner, notification skipped")
		return
	}

	s.notifier.Notify(ctx, user, subject, message)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, entity.ErrSoldOut):
		return "sold_out"
	case errors.Is(err, entity.ErrDuplicateBooking):
		return "duplicate"
	case errors.Is(err, entity.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}
