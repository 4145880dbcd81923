package mocks

import (
	"context"
	"sync"

	"github.com/samber/lo"

	"ticketing/entity"
)

// MockLedger records appended transactions. AppendFunc, when set, can fail the append.
type MockLedger struct {
	mu           sync.Mutex
	AppendFunc   func(ctx context.Context, transaction entity.Transaction) error
	Transactions []entity.Transaction
}

func NewMockLedger() *MockLedger {
	return &MockLedger{Transactions: make([]entity.Transaction, 0)}
}

func (m *MockLedger) Append(ctx context.Context, transaction entity.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AppendFunc != nil {
		// AppendFunc may not call back into the ledger
		if err := m.AppendFunc(ctx, transaction); err != nil {
			return err
		}
	}
	m.Transactions = append(m.Transactions, transaction)

	return nil
}

func (m *MockLedger) ForBooking(bookingID string) []entity.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	return lo.Filter(m.Transactions, func(tr entity.Transaction, _ int) bool {
		return tr.BookingID == bookingID
	})
}

func (m *MockLedger) ListByBooking(ctx context.Context, bookingID string) ([]entity.Transaction, error) {
	return m.ForBooking(bookingID), nil
}
