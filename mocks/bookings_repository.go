package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"ticketing/entity"
)

// BookingsRepository keeps bookings in memory with the same guarantees as the Postgres
// repository: reservations for one show are serialized and transitions are compare-and-swap.
type BookingsRepository struct {
	shows *ShowsRepository

	mu        sync.Mutex
	showLocks map[string]*sync.Mutex
	bookings  map[string]entity.Booking
	events    []entity.Event
}

func NewBookingsRepository(shows *ShowsRepository) *BookingsRepository {
	if shows == nil {
		panic("missing shows repository")
	}

	return &BookingsRepository{
		shows:     shows,
		showLocks: make(map[string]*sync.Mutex),
		bookings:  make(map[string]entity.Booking),
	}
}

func (r *BookingsRepository) showLock(showID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.showLocks[showID]
	if !ok {
		l = &sync.Mutex{}
		r.showLocks[showID] = l
	}
	return l
}

func (r *BookingsRepository) Create(ctx context.Context, booking entity.Booking) error {
	if booking.Status != entity.BookingStatusPending {
		return fmt.Errorf("%w: new booking must be %s", entity.ErrInvalidTransition, entity.BookingStatusPending)
	}

	show, err := r.shows.Get(ctx, booking.ShowID)
	if err != nil {
		return err
	}

	l := r.showLock(booking.ShowID)
	l.Lock()
	defer l.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	held := 0
	for _, b := range r.bookings {
		if b.ShowID != booking.ShowID || !b.Status.HoldsTickets() {
			continue
		}
		if b.UserID == booking.UserID {
			return entity.ErrDuplicateBooking
		}
		held += b.NumberOfTickets
	}

	available := show.MaxCapacity - held
	if available < booking.NumberOfTickets {
		return fmt.Errorf("%w: requested %d, available %d", entity.ErrSoldOut, booking.NumberOfTickets, available)
	}

	r.bookings[booking.BookingID] = booking
	r.events = append(r.events, entity.BookingCreated_v1{
		Header:          entity.NewEventHeader(),
		BookingID:       booking.BookingID,
		ShowID:          booking.ShowID,
		UserID:          booking.UserID,
		NumberOfTickets: booking.NumberOfTickets,
		TotalAmount:     booking.TotalAmount,
		CustomerEmail:   booking.CustomerEmail,
	})

	return nil
}

func (r *BookingsRepository) Transition(
	ctx context.Context,
	bookingID string,
	transition entity.BookingTransition,
) (entity.Booking, error) {
	if err := transition.Validate(); err != nil {
		return entity.Booking{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[bookingID]
	if !ok {
		return entity.Booking{}, fmt.Errorf("booking %s: %w", bookingID, entity.ErrNotFound)
	}

	updated, err := transition.Apply(current)
	if err != nil {
		return entity.Booking{}, err
	}

	r.bookings[bookingID] = updated
	r.events = append(r.events, entity.TransitionEvent(updated))

	return updated, nil
}

func (r *BookingsRepository) Get(ctx context.Context, bookingID string) (entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking, ok := r.bookings[bookingID]
	if !ok {
		return entity.Booking{}, fmt.Errorf("booking %s: %w", bookingID, entity.ErrNotFound)
	}
	return booking, nil
}

func (r *BookingsRepository) ListByUser(ctx context.Context, userID string) ([]entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := lo.Filter(lo.Values(r.bookings), func(b entity.Booking, _ int) bool {
		return b.UserID == userID
	})
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (r *BookingsRepository) ListPendingCreatedBefore(ctx context.Context, before time.Time, limit int) ([]entity.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := lo.Filter(lo.Values(r.bookings), func(b entity.Booking, _ int) bool {
		return b.Status == entity.BookingStatusPending && b.CreatedAt.Before(before)
	})
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *BookingsRepository) AvailableTickets(ctx context.Context, showID string) (int, error) {
	show, err := r.shows.Get(ctx, showID)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	held := lo.SumBy(lo.Values(r.bookings), func(b entity.Booking) int {
		if b.ShowID != showID || !b.Status.HoldsTickets() {
			return 0
		}
		return b.NumberOfTickets
	})

	return show.MaxCapacity - held, nil
}

// Events returns lifecycle events "published" by the repository, in order.
func (r *BookingsRepository) Events() []entity.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]entity.Event(nil), r.events...)
}
