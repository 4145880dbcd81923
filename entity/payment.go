package entity

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusSuccess  PaymentStatus = "SUCCESS"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

type Payment struct {
	PaymentID   string        `json:"payment_id"`
	BookingID   string        `json:"booking_id"`
	UserID      string        `json:"user_id"`
	Amount      Money         `json:"amount"`
	Status      PaymentStatus `json:"status"`
	Message     string        `json:"message,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

func (p Payment) Succeeded() bool {
	return p.Status == PaymentStatusSuccess
}

// InProgress is true while the payment service is still settling the charge.
func (p Payment) InProgress() bool {
	return p.Status == PaymentStatusPending
}

type ChargeRequest struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	Amount    Money  `json:"amount"`
}

type RefundRequest struct {
	PaymentID string `json:"-"`
	BookingID string `json:"booking_id"`
	Amount    Money  `json:"amount"`
}

type TransactionType string

const (
	TransactionTypePayment TransactionType = "PAYMENT"
	TransactionTypeRefund  TransactionType = "REFUND"
)

type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
	// the payment service accepted the charge but hasn't settled it yet
	TransactionStatusPending TransactionStatus = "PENDING"
)

// Transaction is an append-only ledger entry recorded for every remote payment call.
type Transaction struct {
	TransactionID string            `json:"transaction_id"`
	PaymentID     string            `json:"payment_id,omitempty"`
	BookingID     string            `json:"booking_id"`
	Amount        Money             `json:"amount"`
	Type          TransactionType   `json:"type"`
	Status        TransactionStatus `json:"status"`
	Message       string            `json:"message"`
	CreatedAt     time.Time         `json:"created_at"`
}
