package http

import (
	"context"
	"errors"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"ticketing/booking"
	"ticketing/entity"
)

type BookingService interface {
	CreateBooking(ctx context.Context, actor entity.Actor, request booking.CreateBookingRequest) (entity.Booking, error)
	ProcessPayment(ctx context.Context, actor entity.Actor, bookingID string) (booking.PaymentResult, error)
	CancelBooking(ctx context.Context, actor entity.Actor, bookingID string, reason string) (entity.Booking, error)
	RefundBooking(ctx context.Context, actor entity.Actor, bookingID string) (entity.Booking, error)
	GetBooking(ctx context.Context, actor entity.Actor, bookingID string) (entity.Booking, error)
	ListBookingsForUser(ctx context.Context, actor entity.Actor, userID string) ([]entity.Booking, error)
}

type ShowsRepository interface {
	Store(ctx context.Context, show entity.Show) error
	Get(ctx context.Context, showID string) (entity.Show, error)
}

type UsersRepository interface {
	Get(ctx context.Context, userID string) (entity.User, error)
}

type Inventory interface {
	AvailableTickets(ctx context.Context, showID string) (int, error)
}

type Notifications interface {
	ListFor(ctx context.Context, recipientID string) ([]entity.Notification, error)
	Delete(ctx context.Context, actor entity.Actor, notificationID string) error
}

type Server struct {
	addr          string
	e             *echo.Echo
	bookings      BookingService
	showsRepo     ShowsRepository
	usersRepo     UsersRepository
	inventory     Inventory
	notifications Notifications
	jwtSecret     string
}

func NewServer(
	addr string,
	bookings BookingService,
	showsRepo ShowsRepository,
	usersRepo UsersRepository,
	inventory Inventory,
	notifications Notifications,
	jwtSecret string,
) *Server {
	e := echoHTTP.NewEcho()
	e.Use(otelecho.Middleware("ticketing"))

	server := &Server{
		addr:          addr,
		e:             e,
		bookings:      bookings,
		showsRepo:     showsRepo,
		usersRepo:     usersRepo,
		inventory:     inventory,
		notifications: notifications,
		jwtSecret:     jwtSecret,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	authenticated := server.identityMiddleware()

	e.POST("/shows", server.PostShows, authenticated)
	e.GET("/shows/:id", server.GetShow)

	e.POST("/bookings", server.PostBookings, authenticated)
	e.GET("/bookings/:id", server.GetBooking, authenticated)
	e.POST("/bookings/:id/payment", server.PostBookingPayment, authenticated)
	e.POST("/bookings/:id/cancel", server.PostBookingCancel, authenticated)
	e.POST("/bookings/:id/refund", server.PostBookingRefund, authenticated)
	e.GET("/users/:id/bookings", server.GetUserBookings, authenticated)

	e.GET("/notifications", server.GetNotifications, authenticated)
	e.DELETE("/notifications/:id", server.DeleteNotification, authenticated)

	return server
}

// Handler exposes the router, for tests.
func (s Server) Handler() http.Handler {
	return s.e
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(context.Background())
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
