package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"

	"ticketing/booking"
	"ticketing/clock"
	"ticketing/entity"
	"ticketing/metrics"
)

const (
	DefaultWindow    = 15 * time.Minute
	DefaultInterval  = time.Hour
	DefaultBatchSize = 1000
)

type PendingBookings interface {
	ListPendingCreatedBefore(ctx context.Context, before time.Time, limit int) ([]entity.Booking, error)
}

type Canceller interface {
	CancelBooking(ctx context.Context, actor entity.Actor, bookingID string, reason string) (entity.Booking, error)
}

type EventBus interface {
	Publish(ctx context.Context, event any) error
}

type Config struct {
	// Window is how long a booking may stay PENDING before it is cancelled.
	Window    time.Duration
	Interval  time.Duration
	BatchSize int
}

type SweepResult struct {
	Examined  int
	Cancelled int
	Skipped   int
	Failed    int
}

// ExpirationScheduler cancels bookings left unpaid past the window, returning their tickets.
type ExpirationScheduler struct {
	bookings  PendingBookings
	canceller Canceller
	eventBus  EventBus
	clock     clock.Clock
	config    Config
}

// NewExpirationScheduler builds the scheduler. eventBus may be nil, the sweep summary is then only logged.
func NewExpirationScheduler(
	bookings PendingBookings,
	canceller Canceller,
	eventBus EventBus,
	clk clock.Clock,
	config Config,
) *ExpirationScheduler {
	if bookings == nil {
		panic("missing bookings repository")
	}
	if canceller == nil {
		panic("missing canceller")
	}
	if clk == nil {
		panic("missing clock")
	}

	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	return &ExpirationScheduler{
		bookings:  bookings,
		canceller: canceller,
		eventBus:  eventBus,
		clock:     clk,
		config:    config,
	}
}

// Run sweeps once on start and then every Interval, until ctx is done.
func (s *ExpirationScheduler) Run(ctx context.Context) error {
	log.FromContext(ctx).WithFields(logrus.Fields{
		"window":   s.config.Window,
		"interval": s.config.Interval,
	}).Info("[Scheduler] expiration sweep started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep cancels every PENDING booking created before now minus Window. A booking that
// can't be cancelled is logged and retried on the next sweep; it doesn't stop the others.
func (s *ExpirationScheduler) Sweep(ctx context.Context) SweepResult {
	correlationID := "sweep_" + shortuuid.New()
	ctx = log.ContextWithCorrelationID(ctx, correlationID)
	ctx = log.ToContext(ctx, logrus.WithFields(logrus.Fields{"correlation_id": correlationID}))
	logger := log.FromContext(ctx)

	var result SweepResult

	cutoff := s.clock.Now().Add(-s.config.Window)

	stale, err := s.bookings.ListPendingCreatedBefore(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		logger.WithError(err).Error("Could not list pending bookings")
		return result
	}
	if len(stale) == s.config.BatchSize {
		logger.WithField("batch_size", s.config.BatchSize).Warn("Sweep batch full, the rest is left for the next sweep")
	}

	for _, b := range stale {
		if ctx.Err() != nil {
			break
		}
		result.Examined++

		cancelled, err := s.canceller.CancelBooking(ctx, entity.SystemActor, b.BookingID, booking.AutoCancelReason)
		switch {
		case err != nil:
			result.Failed++
			metrics.ExpiredBookingsSwept.WithLabelValues("failed").Inc()
			logger.WithError(err).WithField("booking_id", b.BookingID).Warn("Could not cancel expired booking")
		case cancelled.Status == entity.BookingStatusCancelled && cancelled.CancellationReason == booking.AutoCancelReason:
			result.Cancelled++
			metrics.ExpiredBookingsSwept.WithLabelValues("cancelled").Inc()
		default:
			// paid or cancelled by someone else in the meantime
			result.Skipped++
			metrics.ExpiredBookingsSwept.WithLabelValues("skipped").Inc()
		}
	}

	logger.WithFields(logrus.Fields{
		"cutoff":    cutoff,
		"examined":  result.Examined,
		"cancelled": result.Cancelled,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Expiration sweep finished")

	if s.eventBus != nil && result.Examined > 0 {
		if err := s.publishSummary(ctx, result); err != nil {
			logger.WithError(err).Warn("Could not publish sweep summary")
		}
	}

	return result
}

func (s *ExpirationScheduler) publishSummary(ctx context.Context, result SweepResult) error {
	err := s.eventBus.Publish(ctx, entity.ExpiredBookingsSwept_v1{
		Header:    entity.NewEventHeader(),
		Examined:  result.Examined,
		Cancelled: result.Cancelled,
		Failed:    result.Failed,
	})
	if err != nil {
		return fmt.Errorf("could not publish ExpiredBookingsSwept_v1: %w", err)
	}

	return nil
}
