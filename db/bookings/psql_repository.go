package bookings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"ticketing/db"
	"ticketing/entity"
	"ticketing/pubsub/bus"
	"ticketing/pubsub/outbox"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return &PostgresRepository{db: db}
}

type bookingRow struct {
	BookingID          string          `db:"booking_id"`
	ShowID             string          `db:"show_id"`
	UserID             string          `db:"user_id"`
	NumberOfTickets    int             `db:"number_of_tickets"`
	TotalAmount        decimal.Decimal `db:"total_amount"`
	TotalCurrency      string          `db:"total_currency"`
	Status             string          `db:"status"`
	CustomerEmail      string          `db:"customer_email"`
	CustomerPhone      string          `db:"customer_phone"`
	SpecialRequest     string          `db:"special_request"`
	CreatedAt          time.Time       `db:"created_at"`
	CancelledAt        *time.Time      `db:"cancelled_at"`
	CancellationReason string          `db:"cancellation_reason"`
	PaymentID          string          `db:"payment_id"`
	PaidAt             *time.Time      `db:"paid_at"`
	RefundedAt         *time.Time      `db:"refunded_at"`
}

type transitionRow struct {
	bookingRow
	ExpectedStatus string `db:"expected_status"`
}

const bookingColumns = `
	booking_id, show_id, user_id, number_of_tickets, total_amount, total_currency, status,
	customer_email, customer_phone, special_request, created_at, cancelled_at,
	cancellation_reason, payment_id, paid_at, refunded_at`

func toRow(b entity.Booking) bookingRow {
	return bookingRow{
		BookingID:          b.BookingID,
		ShowID:             b.ShowID,
		UserID:             b.UserID,
		NumberOfTickets:    b.NumberOfTickets,
		TotalAmount:        b.TotalAmount.Amount,
		TotalCurrency:      b.TotalAmount.Currency,
		Status:             string(b.Status),
		CustomerEmail:      b.CustomerEmail,
		CustomerPhone:      b.CustomerPhone,
		SpecialRequest:     b.SpecialRequest,
		CreatedAt:          b.CreatedAt,
		CancelledAt:        b.CancelledAt,
		CancellationReason: b.CancellationReason,
		PaymentID:          b.PaymentID,
		PaidAt:             b.PaidAt,
		RefundedAt:         b.RefundedAt,
	}
}

func (r bookingRow) toEntity() entity.Booking {
	return entity.Booking{
		BookingID:          r.BookingID,
		ShowID:             r.ShowID,
		UserID:             r.UserID,
		NumberOfTickets:    r.NumberOfTickets,
		TotalAmount:        entity.Money{Amount: r.TotalAmount, Currency: r.TotalCurrency},
		Status:             entity.BookingStatus(r.Status),
		CustomerEmail:      r.CustomerEmail,
		CustomerPhone:      r.CustomerPhone,
		SpecialRequest:     r.SpecialRequest,
		CreatedAt:          r.CreatedAt.UTC(),
		CancelledAt:        utcPtr(r.CancelledAt),
		CancellationReason: r.CancellationReason,
		PaymentID:          r.PaymentID,
		PaidAt:             utcPtr(r.PaidAt),
		RefundedAt:         utcPtr(r.RefundedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Create reserves tickets for the booking and stores it as PENDING.
//
// The show row is locked for the whole transaction, so reservations for the same show are
// serialized and the available count computed below can't be stale when the insert happens.
// The BookingCreated_v1 event goes through the outbox in the same transaction.
func (r *PostgresRepository) Create(ctx context.Context, booking entity.Booking) error {
	if booking.Status != entity.BookingStatusPending {
		return fmt.Errorf("%w: new booking must be %s", entity.ErrInvalidTransition, entity.BookingStatusPending)
	}

	return db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		capacity, err := lockShow(ctx, tx, booking.ShowID)
		if err != nil {
			return err
		}

		var activeForUser int
		err = tx.GetContext(ctx, &activeForUser, `
			SELECT COUNT(*)
			FROM bookings
			WHERE show_id = $1 AND user_id = $2 AND status IN ('PENDING', 'CONFIRMED')
		`, booking.ShowID, booking.UserID)
		if err != nil {
			return fmt.Errorf("could not check existing bookings: %w", err)
		}
		if activeForUser > 0 {
			return entity.ErrDuplicateBooking
		}

		available, err := availableTickets(ctx, tx, booking.ShowID, capacity)
		if err != nil {
			return err
		}
		if available < booking.NumberOfTickets {
			return fmt.Errorf("%w: requested %d, available %d", entity.ErrSoldOut, booking.NumberOfTickets, available)
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO bookings (`+bookingColumns+`)
			VALUES (
				:booking_id, :show_id, :user_id, :number_of_tickets, :total_amount, :total_currency, :status,
				:customer_email, :customer_phone, :special_request, :created_at, :cancelled_at,
				:cancellation_reason, :payment_id, :paid_at, :refunded_at
			)
		`, toRow(booking))
		if db.IsUniqueViolation(err) {
			return entity.ErrDuplicateBooking
		}
		if err != nil {
			return fmt.Errorf("could not add booking: %w", err)
		}

		return publishInTx(ctx, tx, entity.BookingCreated_v1{
			Header:          entity.NewEventHeaderWithIdempotencyKey(booking.BookingID + "-created"),
			BookingID:       booking.BookingID,
			ShowID:          booking.ShowID,
			UserID:          booking.UserID,
			NumberOfTickets: booking.NumberOfTickets,
			TotalAmount:     booking.TotalAmount,
			CustomerEmail:   booking.CustomerEmail,
		})
	})
}

// Transition applies a compare-and-swap status change. It fails with
// entity.ErrInvalidTransition when the booking is not in transition.From anymore.
func (r *PostgresRepository) Transition(
	ctx context.Context,
	bookingID string,
	transition entity.BookingTransition,
) (entity.Booking, error) {
	if err := transition.Validate(); err != nil {
		return entity.Booking{}, err
	}

	var updated entity.Booking

	err := db.UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		current, err := getBooking(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}

		updated, err = transition.Apply(current)
		if err != nil {
			return err
		}

		res, err := tx.NamedExecContext(ctx, `
			UPDATE bookings
			SET
				status = :status,
				cancelled_at = :cancelled_at,
				cancellation_reason = :cancellation_reason,
				payment_id = :payment_id,
				paid_at = :paid_at,
				refunded_at = :refunded_at
			WHERE booking_id = :booking_id AND status = :expected_status
		`, transitionRow{
			bookingRow:     toRow(updated),
			ExpectedStatus: string(transition.From),
		})
		if err != nil {
			return fmt.Errorf("could not update booking: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("could not get affected rows: %w", err)
		}
		if affected != 1 {
			return fmt.Errorf("%w: booking %s is no longer %s", entity.ErrInvalidTransition, bookingID, transition.From)
		}

		return publishInTx(ctx, tx, entity.TransitionEvent(updated))
	})
	if err != nil {
		return entity.Booking{}, err
	}

	return updated, nil
}

func (r *PostgresRepository) Get(ctx context.Context, bookingID string) (entity.Booking, error) {
	return getBooking(ctx, r.db, bookingID, false)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]entity.Booking, error) {
	var rows []bookingRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("could not list bookings of user %s: %w", userID, err)
	}

	return toEntities(rows), nil
}

// ListPendingCreatedBefore returns the oldest PENDING bookings created before the given time.
func (r *PostgresRepository) ListPendingCreatedBefore(ctx context.Context, before time.Time, limit int) ([]entity.Booking, error) {
	var rows []bookingRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list pending bookings: %w", err)
	}

	return toEntities(rows), nil
}

func (r *PostgresRepository) AvailableTickets(ctx context.Context, showID string) (int, error) {
	var capacity int
	err := r.db.GetContext(ctx, &capacity, `SELECT max_capacity FROM shows WHERE show_id = $1`, showID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("show %s: %w", showID, entity.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("could not get show capacity: %w", err)
	}

	return availableTickets(ctx, r.db, showID, capacity)
}

func lockShow(ctx context.Context, tx *sqlx.Tx, showID string) (int, error) {
	var capacity int
	err := tx.GetContext(ctx, &capacity, `
		SELECT max_capacity
		FROM shows
		WHERE show_id = $1
		FOR UPDATE
	`, showID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("show %s: %w", showID, entity.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("could not lock show: %w", err)
	}

	return capacity, nil
}

func availableTickets(ctx context.Context, executor db.Executor, showID string, capacity int) (int, error) {
	var held int
	err := executor.GetContext(ctx, &held, `
		SELECT COALESCE(SUM(number_of_tickets), 0)
		FROM bookings
		WHERE show_id = $1 AND status IN ('PENDING', 'CONFIRMED')
	`, showID)
	if err != nil {
		return 0, fmt.Errorf("could not get held tickets count: %w", err)
	}

	return capacity - held, nil
}

func getBooking(ctx context.Context, executor db.Executor, bookingID string, forUpdate bool) (entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var row bookingRow
	err := executor.GetContext(ctx, &row, query, bookingID)
	if errors.Is(err, sql.ErrNoRows) || db.IsInvalidInput(err) {
		return entity.Booking{}, fmt.Errorf("booking %s: %w", bookingID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Booking{}, fmt.Errorf("could not get booking %s: %w", bookingID, err)
	}

	return row.toEntity(), nil
}

func toEntities(rows []bookingRow) []entity.Booking {
	bookings := make([]entity.Booking, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toEntity())
	}
	return bookings
}

func publishInTx(ctx context.Context, tx *sqlx.Tx, event entity.Event) error {
	outboxPublisher, err := outbox.NewPublisherForDb(ctx, tx)
	if err != nil {
		return fmt.Errorf("could not create outbox publisher: %w", err)
	}

	eventBus, err := bus.NewEventBus(outboxPublisher)
	if err != nil {
		return fmt.Errorf("could not create event bus: %w", err)
	}

	if err := eventBus.Publish(ctx, event); err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}
