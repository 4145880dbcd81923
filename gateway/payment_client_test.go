package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/entity"
	"ticketing/gateway"
)

func TestPaymentClient_Charge(t *testing.T) {
	var received entity.ChargeRequest
	var correlationID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		correlationID = r.Header.Get("Correlation-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(entity.Payment{
			PaymentID: "payment-1",
			BookingID: received.BookingID,
			Amount:    received.Amount,
			Status:    entity.PaymentStatusSuccess,
		})
	}))
	defer server.Close()

	client := gateway.NewPaymentClient(server.URL, gateway.NewHTTPClient(time.Second))

	ctx := log.ContextWithCorrelationID(context.Background(), "correlation-1")
	payment, err := client.Charge(ctx, entity.ChargeRequest{
		BookingID: "booking-1",
		UserID:    "user-1",
		Amount:    entity.MustNewMoney("30", "EUR"),
	})
	require.NoError(t, err)

	assert.Equal(t, "payment-1", payment.PaymentID)
	assert.Equal(t, entity.PaymentStatusSuccess, payment.Status)
	assert.True(t, payment.Amount.Equal(entity.MustNewMoney("30", "EUR")))
	assert.Equal(t, "booking-1", received.BookingID)
	assert.Equal(t, "correlation-1", correlationID)
}

func TestPaymentClient_Charge_declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(entity.Payment{
			PaymentID: "payment-1",
			Status:    entity.PaymentStatusFailed,
			Message:   "insufficient funds",
		})
	}))
	defer server.Close()

	client := gateway.NewPaymentClient(server.URL, gateway.NewHTTPClient(time.Second))

	payment, err := client.Charge(context.Background(), entity.ChargeRequest{BookingID: "booking-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "insufficient funds", payment.Message)
}

func TestPaymentClient_remote_unavailable(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := gateway.NewPaymentClient(server.URL, gateway.NewHTTPClient(50*time.Millisecond))

			_, err := client.Charge(context.Background(), entity.ChargeRequest{BookingID: "booking-1"})
			assert.ErrorIs(t, err, entity.ErrRemoteUnavailable)
		})
	}
}

func TestPaymentClient_GetByBooking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("booking_id") != "booking-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(entity.Payment{PaymentID: "payment-1", Status: entity.PaymentStatusSuccess})
	}))
	defer server.Close()

	client := gateway.NewPaymentClient(server.URL, gateway.NewHTTPClient(time.Second))

	payment, err := client.GetByBooking(context.Background(), "booking-1")
	require.NoError(t, err)
	assert.Equal(t, "payment-1", payment.PaymentID)

	_, err = client.GetByBooking(context.Background(), "booking-2")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestPaymentClient_Refund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/payment-1/refunds", r.URL.Path)
		_ = json.NewEncoder(w).Encode(entity.Payment{PaymentID: "payment-1", Status: entity.PaymentStatusRefunded})
	}))
	defer server.Close()

	client := gateway.NewPaymentClient(server.URL, gateway.NewHTTPClient(time.Second))

	payment, err := client.Refund(context.Background(), entity.RefundRequest{
		PaymentID: "payment-1",
		BookingID: "booking-1",
		Amount:    entity.MustNewMoney("30", "EUR"),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusRefunded, payment.Status)
}
