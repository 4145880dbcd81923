package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"ticketing/entity"
)

// PostgresRepository is the payment ledger. Rows are only ever inserted;
// a trigger on the table rejects updates and deletes.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return &PostgresRepository{db: db}
}

type transactionRow struct {
	TransactionID string          `db:"transaction_id"`
	PaymentID     string          `db:"payment_id"`
	BookingID     string          `db:"booking_id"`
	Amount        decimal.Decimal `db:"amount"`
	Currency      string          `db:"currency"`
	Type          string          `db:"type"`
	Status        string          `db:"status"`
	Message       string          `db:"message"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r *PostgresRepository) Append(ctx context.Context, transaction entity.Transaction) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO payment_transactions
			(transaction_id, payment_id, booking_id, amount, currency, type, status, message, created_at)
		VALUES
			(:transaction_id, :payment_id, :booking_id, :amount, :currency, :type, :status, :message, :created_at)
	`, transactionRow{
		TransactionID: transaction.TransactionID,
		PaymentID:     transaction.PaymentID,
		BookingID:     transaction.BookingID,
		Amount:        transaction.Amount.Amount,
		Currency:      transaction.Amount.Currency,
		Type:          string(transaction.Type),
		Status:        string(transaction.Status),
		Message:       transaction.Message,
		CreatedAt:     transaction.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("could not append transaction %s: %w", transaction.TransactionID, err)
	}

	return nil
}

func (r *PostgresRepository) ListByBooking(ctx context.Context, bookingID string) ([]entity.Transaction, error) {
	var rows []transactionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT transaction_id, payment_id, booking_id, amount, currency, type, status, message, created_at
		FROM payment_transactions
		WHERE booking_id = $1
		ORDER BY created_at ASC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("could not list transactions of booking %s: %w", bookingID, err)
	}

	transactions := make([]entity.Transaction, 0, len(rows))
	for _, row := range rows {
		transactions = append(transactions, entity.Transaction{
			TransactionID: row.TransactionID,
			PaymentID:     row.PaymentID,
			BookingID:     row.BookingID,
			Amount:        entity.Money{Amount: row.Amount, Currency: row.Currency},
			Type:          entity.TransactionType(row.Type),
			Status:        entity.TransactionStatus(row.Status),
			Message:       row.Message,
			CreatedAt:     row.CreatedAt.UTC(),
		})
	}

	return transactions, nil
}
