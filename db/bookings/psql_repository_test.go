package bookings_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"ticketing/db"
	"ticketing/db/bookings"
	"ticketing/db/shows"
	"ticketing/entity"
	"ticketing/pubsub/outbox"
)

func TestMain(m *testing.M) {
	os.Exit(db.RunWithPostgres(m))
}

func setup(t *testing.T) (*bookings.PostgresRepository, *shows.PostgresRepository) {
	t.Helper()

	dbConn := db.GetDb(t)
	err := outbox.InitializeSchema(dbConn, log.NewWatermill(log.FromContext(context.Background())))
	require.NoError(t, err)

	return bookings.NewPostgresRepository(dbConn), shows.NewPostgresRepository(dbConn)
}

func storeShow(t *testing.T, repo *shows.PostgresRepository, capacity int) entity.Show {
	t.Helper()

	show := entity.Show{
		ShowID:      uuid.NewString(),
		Title:       "Concert",
		Venue:       "Arena",
		StartTime:   time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second),
		MaxCapacity: capacity,
		TicketPrice: entity.MustNewMoney("25.50", "USD"),
		OrganizerID: uuid.NewString(),
	}
	require.NoError(t, repo.Store(context.Background(), show))

	return show
}

func newBooking(t *testing.T, show entity.Show, tickets int, createdAt time.Time) entity.Booking {
	t.Helper()

	booking, err := entity.NewBooking(
		show,
		uuid.NewString(),
		tickets,
		entity.BookingContact{Email: "customer@example.com"},
		createdAt.Truncate(time.Microsecond),
	)
	require.NoError(t, err)

	return booking
}

func TestPostgresRepository_Create(t *testing.T) {
	ctx := context.Background()
	repo, showsRepo := setup(t)

	show := storeShow(t, showsRepo, 5)
	booking := newBooking(t, show, 3, time.Now())

	err := repo.Create(ctx, booking)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusPending, stored.Status)
	assert.Equal(t, booking.NumberOfTickets, stored.NumberOfTickets)
	assert.True(t, booking.TotalAmount.Equal(stored.TotalAmount), "%s != %s", booking.TotalAmount, stored.TotalAmount)
	assert.Equal(t, booking.CreatedAt, stored.CreatedAt)

	available, err := repo.AvailableTickets(ctx, show.ShowID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)
}

func TestPostgresRepository_Create_sold_out(t *testing.T) {
	ctx := context.Background()
	repo, showsRepo := setup(t)

	show := storeShow(t, showsRepo, 1)

	err := repo.Create(ctx, newBooking(t, show, 2, time.Now()))
	assert.ErrorIs(t, err, entity.ErrSoldOut)

	available, err := repo.AvailableTickets(ctx, show.ShowID)
	require.NoError(t, err)
	assert.Equal(t, 1, available, "failed reservation must not hold tickets")
}

func TestPostgresRepository_Create_unknown_show(t *testing.T) {
	repo, _ := setup(t)

	show := entity.Show{ShowID: uuid.NewString(), TicketPrice: entity.MustNewMoney("1", "USD")}
	err := repo.Create(context.Background(), newBooking(t, show, 1, time.Now()))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestPostgresRepository_Create_duplicate(t *testing.T) {
	ctx := context.Background()
	repo, showsRepo := setup(t)

	show := storeShow(t, showsRepo, 10)
	first := newBooking(t, show, 1, time.Now())
	require.NoError(t, repo.Create(ctx, first))

	second := newBooking(t, show, 1, time.Now())
	second.UserID = first.UserID

	err := repo.Create(ctx, second)
	assert.ErrorIs(t, err, entity.ErrDuplicateBooking)

	// a cancelled booking doesn't block a new one
	_, err = repo.Transition(ctx, first.BookingID, entity.CancelTransition("changed plans", time.Now()))
	require.NoError(t, err)

	err = repo.Create(ctx, second)
	assert.NoError(t, err)
}

func TestPostgresRepository_Create_concurrent_last_ticket(t *testing.T) {
	ctx := context.Background()
	repo, showsRepo := setup(t)

	show := storeShow(t, showsRepo, 1)

	const workers = 10

	var (
		mu        sync.Mutex
		succeeded int
		soldOut   int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			err := repo.Create(gctx, newBooking(t, show, 1, time.Now()))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, entity.ErrSoldOut):
				soldOut++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, soldOut)

	available, err := repo.AvailableTickets(ctx, show.ShowID)
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestPostgresRepository_Transition(t *testing.T) {
	ctx := context.Background()
	repo, showsRepo := setup(t)

	show := storeShow(t, showsRepo, 4)
	booking := newBooking(t, show, 2, time.Now())
	require.NoError(t, repo.Create(ctx, booking))

	confirmed, err := repo.Transition(ctx, booking.BookingID, entity.ConfirmTransition("payment-1", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, confirmed.Status)

	stored, err := repo.Get(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "payment-1", stored.PaymentID)
	require.NotNil(t, stored.PaidAt)

	_, err = repo.Transition(ctx, booking.BookingID, entity.ConfirmTransition("payment-2", time.Now()))
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	_, err = repo.Transition(ctx, booking.BookingID, entity.CancelTransition("too late", time.Now()))
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	available, err := repo.AvailableTickets(ctx, show.ShowID)
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	refunded, err := repo.Transition(ctx, booking.BookingID, entity.RefundTransition(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusRefunded, refunded.Status)

	available, err = repo.AvailableTickets(ctx, show.ShowID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)
}

func TestPostgresRepository_Transition_release_is_idempotent(t *testing.T) {
	ctx := context.Background()
	repo, showsRepo := setup(t)

	show := storeShow(t, showsRepo, 3)
	booking := newBooking(t, show, 2, time.Now())
	require.NoError(t, repo.Create(ctx, booking))

	_, err := repo.Transition(ctx, booking.BookingID, entity.CancelTransition("first", time.Now()))
	require.NoError(t, err)

	_, err = repo.Transition(ctx, booking.BookingID, entity.CancelTransition("second", time.Now()))
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	stored, err := repo.Get(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.CancellationReason)

	available, err := repo.AvailableTickets(ctx, show.ShowID)
	require.NoError(t, err)
	assert.Equal(t, 3, available)
}

func TestPostgresRepository_Get_not_found(t *testing.T) {
	repo, _ := setup(t)

	_, err := repo.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = repo.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestPostgresRepository_ListPendingCreatedBefore(t *testing.T) {
	ctx := context.Background()
	repo, showsRepo := setup(t)

	show := storeShow(t, showsRepo, 10)
	now := time.Now().UTC()

	stale := newBooking(t, show, 1, now.Add(-time.Hour))
	fresh := newBooking(t, show, 1, now)
	staleConfirmed := newBooking(t, show, 1, now.Add(-time.Hour))

	for _, b := range []entity.Booking{stale, fresh, staleConfirmed} {
		require.NoError(t, repo.Create(ctx, b))
	}
	_, err := repo.Transition(ctx, staleConfirmed.BookingID, entity.ConfirmTransition("payment-1", now))
	require.NoError(t, err)

	pending, err := repo.ListPendingCreatedBefore(ctx, now.Add(-15*time.Minute), 1000)
	require.NoError(t, err)

	ids := lo.Map(pending, func(b entity.Booking, _ int) string { return b.BookingID })
	assert.Contains(t, ids, stale.BookingID)
	assert.NotContains(t, ids, fresh.BookingID)
	assert.NotContains(t, ids, staleConfirmed.BookingID)
}

func TestPostgresRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	repo, showsRepo := setup(t)

	userID := uuid.NewString()
	for i := 0; i < 3; i++ {
		b := newBooking(t, storeShow(t, showsRepo, 5), 1, time.Now())
		b.UserID = userID
		require.NoError(t, repo.Create(ctx, b))
	}

	list, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
