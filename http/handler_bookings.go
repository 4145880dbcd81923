package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ticketing/booking"
	"ticketing/entity"
)

type postBookingRequest struct {
	ShowID          string `json:"show_id"`
	NumberOfTickets int    `json:"number_of_tickets"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	SpecialRequest  string `json:"special_request"`
}

type paymentResponse struct {
	Booking entity.Booking `json:"booking"`
	Payment entity.Payment `json:"payment"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (s Server) PostBookings(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	var request postBookingRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	b, err := s.bookings.CreateBooking(c.Request().Context(), actor, booking.CreateBookingRequest{
		ShowID:          request.ShowID,
		NumberOfTickets: request.NumberOfTickets,
		Contact: entity.BookingContact{
			Email:          request.CustomerEmail,
			Phone:          request.CustomerPhone,
			SpecialRequest: request.SpecialRequest,
		},
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, b)
}

func (s Server) GetBooking(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	b, err := s.bookings.GetBooking(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, b)
}

func (s Server) GetUserBookings(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	bookings, err := s.bookings.ListBookingsForUser(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	if bookings == nil {
		bookings = []entity.Booking{}
	}

	return c.JSON(http.StatusOK, bookings)
}

// PostBookingPayment answers 402 when the charge was declined and 202 while the payment
// service is still settling it. In both cases the booking stays pending and the call can
// be repeated.
func (s Server) PostBookingPayment(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	result, err := s.bookings.ProcessPayment(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}

	status := http.StatusOK
	switch {
	case result.Payment.InProgress():
		status = http.StatusAccepted
	case !result.Payment.Succeeded():
		status = http.StatusPaymentRequired
	}

	return c.JSON(status, paymentResponse{Booking: result.Booking, Payment: result.Payment})
}

func (s Server) PostBookingCancel(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	var request cancelBookingRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&request); err != nil {
			return err
		}
	}

	b, err := s.bookings.CancelBooking(c.Request().Context(), actor, c.Param("id"), request.Reason)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, b)
}

func (s Server) PostBookingRefund(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	b, err := s.bookings.RefundBooking(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, b)
}
