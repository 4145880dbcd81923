package shows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"ticketing/entity"
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

type showRow struct {
	ShowID              string          `db:"show_id"`
	Title               string          `db:"title"`
	Venue               string          `db:"venue"`
	StartTime           time.Time       `db:"start_time"`
	MaxCapacity         int             `db:"max_capacity"`
	TicketPriceAmount   decimal.Decimal `db:"ticket_price_amount"`
	TicketPriceCurrency string          `db:"ticket_price_currency"`
	OrganizerID         string          `db:"organizer_id"`
}

func (r *PostgresRepository) Store(ctx context.Context, show entity.Show) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO shows (show_id, title, venue, start_time, max_capacity, ticket_price_amount, ticket_price_currency, organizer_id)
		VALUES (:show_id, :title, :venue, :start_time, :max_capacity, :ticket_price_amount, :ticket_price_currency, :organizer_id)
		ON CONFLICT DO NOTHING -- ignore if already exists
	`, showRow{
		ShowID:              show.ShowID,
		Title:               show.Title,
		Venue:               show.Venue,
		StartTime:           show.StartTime,
		MaxCapacity:         show.MaxCapacity,
		TicketPriceAmount:   show.TicketPrice.Amount,
		TicketPriceCurrency: show.TicketPrice.Currency,
		OrganizerID:         show.OrganizerID,
	})
	if err != nil {
		return fmt.Errorf("could not store show %s: %w", show.ShowID, err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, showID string) (entity.Show, error) {
	var row showRow
	err := r.db.GetContext(ctx, &row, `
		SELECT show_id, title, venue, start_time, max_capacity, ticket_price_amount, ticket_price_currency, organizer_id
		FROM shows
		WHERE show_id = $1
	`, showID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Show{}, fmt.Errorf("show %s: %w", showID, entity.ErrNotFound)
	}
	if err != nil {
		return entity.Show{}, fmt.Errorf("could not get show %s: %w", showID, err)
	}

	return entity.Show{
		ShowID:      row.ShowID,
		Title:       row.Title,
		Venue:       row.Venue,
		StartTime:   row.StartTime.UTC(),
		MaxCapacity: row.MaxCapacity,
		TicketPrice: entity.Money{Amount: row.TicketPriceAmount, Currency: row.TicketPriceCurrency},
		OrganizerID: row.OrganizerID,
	}, nil
}
