package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"ticketing/entity"
)

type PaymentClient struct {
	client jsonClient
}

func NewPaymentClient(baseURL string, httpClient *http.Client) PaymentClient {
	return PaymentClient{
		client: newJSONClient(baseURL, httpClient),
	}
}

// Charge asks the payment service to charge the booking. A declined charge is not an error:
// it comes back as a payment with status FAILED.
func (c PaymentClient) Charge(ctx context.Context, request entity.ChargeRequest) (entity.Payment, error) {
	var payment entity.Payment
	_, err := c.client.do(
		ctx,
		http.MethodPost,
		"/payments",
		request,
		&payment,
		http.StatusOK, http.StatusCreated, http.StatusPaymentRequired,
	)
	if err != nil {
		return entity.Payment{}, fmt.Errorf("could not charge booking %s: %w", request.BookingID, err)
	}

	return payment, nil
}

func (c PaymentClient) Refund(ctx context.Context, request entity.RefundRequest) (entity.Payment, error) {
	var payment entity.Payment
	_, err := c.client.do(
		ctx,
		http.MethodPost,
		"/payments/"+url.PathEscape(request.PaymentID)+"/refunds",
		request,
		&payment,
		http.StatusOK, http.StatusCreated, http.StatusPaymentRequired,
	)
	if err != nil {
		return entity.Payment{}, fmt.Errorf("could not refund payment %s: %w", request.PaymentID, err)
	}

	return payment, nil
}

// GetByBooking returns entity.ErrNotFound when the booking was never charged.
func (c PaymentClient) GetByBooking(ctx context.Context, bookingID string) (entity.Payment, error) {
	var payment entity.Payment
	_, err := c.client.do(
		ctx,
		http.MethodGet,
		"/payments?booking_id="+url.QueryEscape(bookingID),
		nil,
		&payment,
		http.StatusOK,
	)
	if err != nil {
		return entity.Payment{}, fmt.Errorf("could not get payment of booking %s: %w", bookingID, err)
	}

	return payment, nil
}
