package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketing/booking"
	"ticketing/clock"
	"ticketing/entity"
	"ticketing/gateway"
	ticketingHTTP "ticketing/http"
	"ticketing/lock"
	"ticketing/mocks"
	"ticketing/notification"
	"ticketing/payment"
)

type testServer struct {
	handler       http.Handler
	show          entity.Show
	payments      *gateway.PaymentMock
	notifications *gateway.NotificationsMock
}

var (
	customer  = entity.User{UserID: "customer", Email: "customer@example.com", Role: entity.RoleUser, NotificationsEnabled: true}
	stranger  = entity.User{UserID: "stranger", Email: "stranger@example.com", Role: entity.RoleUser}
	organizer = entity.User{UserID: "organizer", Email: "organizer@example.com", Role: entity.RoleOrganizer}
)

func newTestServer(t *testing.T, jwtSecret string) testServer {
	t.Helper()

	clk := clock.NewFixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	show := entity.Show{
		ShowID:      uuid.NewString(),
		Title:       "Jazz night",
		Venue:       "Club",
		StartTime:   time.Date(2024, 5, 20, 21, 0, 0, 0, time.UTC),
		MaxCapacity: 5,
		TicketPrice: entity.MustNewMoney("30", "USD"),
		OrganizerID: organizer.UserID,
	}

	shows := mocks.NewShowsRepository(show)
	users := mocks.NewUsersRepository(customer, stranger, organizer)
	bookings := mocks.NewBookingsRepository(shows)
	payments := &gateway.PaymentMock{}
	notifications := &gateway.NotificationsMock{}
	dispatcher := notification.NewDispatcher(notifications, notifications)

	service := booking.NewService(
		bookings,
		shows,
		users,
		payment.NewAdapter(payments, mocks.NewMockLedger(), clk),
		dispatcher,
		lock.NewLocalLocker(8),
		clk,
	)

	server := ticketingHTTP.NewServer(":0", service, shows, users, bookings, dispatcher, jwtSecret)

	return testServer{
		handler:       server.Handler(),
		show:          show,
		payments:      payments,
		notifications: notifications,
	}
}

func (s testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	return rec
}

func (s testServer) book(t *testing.T, tickets int) entity.Booking {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/bookings", customer.UserID, map[string]any{
		"show_id":           s.show.ShowID,
		"number_of_tickets": tickets,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var b entity.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))

	return b
}

func availableTickets(t *testing.T, s testServer) int {
	t.Helper()

	rec := s.do(t, http.MethodGet, "/shows/"+s.show.ShowID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AvailableTickets int `json:"available_tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp.AvailableTickets
}

func TestServer_booking_lifecycle(t *testing.T) {
	s := newTestServer(t, "")

	b := s.book(t, 2)
	assert.Equal(t, entity.BookingStatusPending, b.Status)
	assert.Equal(t, 3, availableTickets(t, s))

	rec := s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/payment", customer.UserID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var paid struct {
		Booking entity.Booking `json:"booking"`
		Payment entity.Payment `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paid))
	assert.Equal(t, entity.BookingStatusConfirmed, paid.Booking.Status)
	assert.Equal(t, entity.PaymentStatusSuccess, paid.Payment.Status)

	rec = s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/cancel", customer.UserID, map[string]string{"reason": "too late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/refund", customer.UserID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, availableTickets(t, s))

	rec = s.do(t, http.MethodGet, "/bookings/"+b.BookingID, customer.UserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stored entity.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, entity.BookingStatusRefunded, stored.Status)

	rec = s.do(t, http.MethodGet, "/users/"+customer.UserID+"/bookings", customer.UserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []entity.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestServer_payment_declined(t *testing.T) {
	s := newTestServer(t, "")
	b := s.book(t, 1)

	s.payments.SetDecline(true)

	rec := s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/payment", customer.UserID, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	s.payments.SetUnavailable(true)

	rec = s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/payment", customer.UserID, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_payment_in_progress(t *testing.T) {
	s := newTestServer(t, "")
	b := s.book(t, 1)

	s.payments.SetSettleLater(true)

	rec := s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/payment", customer.UserID, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var response struct {
		Booking entity.Booking `json:"booking"`
		Payment entity.Payment `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, entity.BookingStatusPending, response.Booking.Status)
	assert.Equal(t, entity.PaymentStatusPending, response.Payment.Status)

	rec = s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/cancel", customer.UserID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.payments.Settle(b.BookingID, entity.PaymentStatusSuccess)

	rec = s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/payment", customer.UserID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_error_mapping(t *testing.T) {
	s := newTestServer(t, "")
	b := s.book(t, 3)

	testCases := []struct {
		name           string
		method         string
		path           string
		userID         string
		body           any
		expectedStatus int
	}{
		{
			name:           "anonymous",
			method:         http.MethodPost,
			path:           "/bookings",
			body:           map[string]any{"show_id": s.show.ShowID, "number_of_tickets": 1},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unknown user",
			method:         http.MethodPost,
			path:           "/bookings",
			userID:         "ghost",
			body:           map[string]any{"show_id": s.show.ShowID, "number_of_tickets": 1},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "too many tickets",
			method:         http.MethodPost,
			path:           "/bookings",
			userID:         stranger.UserID,
			body:           map[string]any{"show_id": s.show.ShowID, "number_of_tickets": 11},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "sold out",
			method:         http.MethodPost,
			path:           "/bookings",
			userID:         stranger.UserID,
			body:           map[string]any{"show_id": s.show.ShowID, "number_of_tickets": 3},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "duplicate",
			method:         http.MethodPost,
			path:           "/bookings",
			userID:         customer.UserID,
			body:           map[string]any{"show_id": s.show.ShowID, "number_of_tickets": 1},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "cancel someone else's booking",
			method:         http.MethodPost,
			path:           "/bookings/" + b.BookingID + "/cancel",
			userID:         stranger.UserID,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "unknown booking",
			method:         http.MethodGet,
			path:           "/bookings/" + uuid.NewString(),
			userID:         customer.UserID,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "unknown show",
			method:         http.MethodGet,
			path:           "/shows/" + uuid.NewString(),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "refund pending booking",
			method:         http.MethodPost,
			path:           "/bookings/" + b.BookingID + "/refund",
			userID:         customer.UserID,
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.userID, tc.body)
			assert.Equal(t, tc.expectedStatus, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, 2, availableTickets(t, s))
}

func TestServer_cancel_by_organizer(t *testing.T) {
	s := newTestServer(t, "")
	b := s.book(t, 2)

	rec := s.do(t, http.MethodPost, "/bookings/"+b.BookingID+"/cancel", organizer.UserID, map[string]string{"reason": "venue closed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cancelled entity.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, entity.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, "venue closed", cancelled.CancellationReason)
	assert.Equal(t, 5, availableTickets(t, s))
}

func TestServer_PostShows(t *testing.T) {
	s := newTestServer(t, "")

	request := map[string]any{
		"title":        "Opera",
		"venue":        "Hall",
		"start_time":   time.Date(2024, 9, 1, 19, 0, 0, 0, time.UTC),
		"max_capacity": 200,
		"ticket_price": map[string]string{"amount": "80.00", "currency": "EUR"},
	}

	rec := s.do(t, http.MethodPost, "/shows", customer.UserID, request)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/shows", organizer.UserID, request)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ShowID string `json:"show_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = s.do(t, http.MethodGet, "/shows/"+created.ShowID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var show struct {
		entity.Show
		AvailableTickets int `json:"available_tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &show))
	assert.Equal(t, organizer.UserID, show.OrganizerID)
	assert.Equal(t, 200, show.AvailableTickets)
}

func TestServer_notifications(t *testing.T) {
	s := newTestServer(t, "")
	s.book(t, 1)

	rec := s.do(t, http.MethodGet, "/notifications", customer.UserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var notifications []entity.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notifications))
	require.Len(t, notifications, 1)

	id := notifications[0].NotificationID

	rec = s.do(t, http.MethodDelete, "/notifications/"+id, stranger.UserID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/notifications/"+id, customer.UserID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.notifications.Sent())
}

func TestServer_jwt_identity(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, secret)

	sign := func(key string, sub string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  sub,
			"role": "admin",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(key))
		require.NoError(t, err)
		return signed
	}

	request := func(token string, userHeader string) int {
		payload, err := json.Marshal(map[string]any{"show_id": s.show.ShowID, "number_of_tickets": 1})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if userHeader != "" {
			req.Header.Set("X-User-ID", userHeader)
		}

		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, request("", customer.UserID), "header is ignored when tokens are required")
	assert.Equal(t, http.StatusUnauthorized, request(sign("other-secret", customer.UserID), ""))
	assert.Equal(t, http.StatusCreated, request(sign(secret, customer.UserID), ""))
}
