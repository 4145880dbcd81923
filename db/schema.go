package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		user_id VARCHAR(255) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		role VARCHAR(32) NOT NULL DEFAULT 'user',
		notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS shows (
		show_id VARCHAR(255) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		venue VARCHAR(255) NOT NULL DEFAULT '',
		start_time TIMESTAMPTZ NOT NULL,
		max_capacity INT NOT NULL CHECK (max_capacity > 0),
		ticket_price_amount NUMERIC(12, 2) NOT NULL,
		ticket_price_currency VARCHAR(8) NOT NULL,
		organizer_id VARCHAR(255) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bookings (
		booking_id UUID PRIMARY KEY,
		show_id VARCHAR(255) NOT NULL REFERENCES shows (show_id),
		user_id VARCHAR(255) NOT NULL,
		number_of_tickets INT NOT NULL CHECK (number_of_tickets BETWEEN 1 AND 10),
		total_amount NUMERIC(12, 2) NOT NULL,
		total_currency VARCHAR(8) NOT NULL,
		status VARCHAR(16) NOT NULL,
		customer_email VARCHAR(255) NOT NULL,
		customer_phone VARCHAR(64) NOT NULL DEFAULT '',
		special_request TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		cancelled_at TIMESTAMPTZ,
		cancellation_reason TEXT NOT NULL DEFAULT '',
		payment_id VARCHAR(255) NOT NULL DEFAULT '',
		paid_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ
	);

	-- one active booking per user and show
	CREATE UNIQUE INDEX IF NOT EXISTS bookings_active_user_show_idx
		ON bookings (show_id, user_id)
		WHERE status IN ('PENDING', 'CONFIRMED');

	CREATE INDEX IF NOT EXISTS bookings_pending_created_at_idx
		ON bookings (created_at)
		WHERE status = 'PENDING';

	CREATE INDEX IF NOT EXISTS bookings_user_id_idx ON bookings (user_id);

	CREATE TABLE IF NOT EXISTS payment_transactions (
		transaction_id UUID PRIMARY KEY,
		payment_id VARCHAR(255) NOT NULL DEFAULT '',
		booking_id UUID NOT NULL,
		amount NUMERIC(12, 2) NOT NULL,
		currency VARCHAR(8) NOT NULL,
		type VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS payment_transactions_booking_id_idx ON payment_transactions (booking_id);

	CREATE OR REPLACE FUNCTION payment_transactions_append_only() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'payment_transactions is append-only';
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS payment_transactions_append_only ON payment_transactions;
	CREATE TRIGGER payment_transactions_append_only
		BEFORE UPDATE OR DELETE ON payment_transactions
		FOR EACH ROW EXECUTE FUNCTION payment_transactions_append_only();

	CREATE TABLE IF NOT EXISTS events (
		event_id UUID PRIMARY KEY,
		published_at TIMESTAMPTZ NOT NULL,
		event_name VARCHAR(255) NOT NULL,
		event_payload JSONB NOT NULL
	);
`

func InitializeDatabaseSchema(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}

	return nil
}
