package service

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"ticketing/booking"
	"ticketing/clock"
	"ticketing/config"
	dbLib "ticketing/db"
	"ticketing/db/bookings"
	"ticketing/db/data_lake"
	"ticketing/db/shows"
	"ticketing/db/transactions"
	"ticketing/db/users"
	"ticketing/http"
	"ticketing/lock"
	"ticketing/notification"
	"ticketing/payment"
	"ticketing/pubsub"
	"ticketing/pubsub/bus"
	"ticketing/pubsub/event"
	"ticketing/pubsub/outbox"
	"ticketing/scheduler"
)

type Service struct {
	db              *sqlx.DB
	watermillRouter *message.Router
	httpServer      *http.Server
	scheduler       *scheduler.ExpirationScheduler
}

// New wires the service. notificationSender may be nil, notifications are then sent
// through notificationsClient.
func New(
	cfg config.Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	paymentClient payment.Client,
	notificationsClient notification.Client,
	notificationSender notification.Sender,
	clk clock.Clock,
) Service {
	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	var redisPublisher message.Publisher
	redisPublisher = pubsub.NewRedisPublisher(redisClient, watermillLogger)
	redisPublisher = log.CorrelationPublisherDecorator{Publisher: redisPublisher}

	eventBus, err := bus.NewEventBus(redisPublisher)
	if err != nil {
		panic(fmt.Errorf("failed to create event bus: %w", err))
	}

	showsRepo := shows.NewPostgresRepository(db)
	usersRepo := users.NewPostgresRepository(db)
	bookingsRepo := bookings.NewPostgresRepository(db)
	ledger := transactions.NewPostgresRepository(db)
	dataLake := data_lake.NewDataLake(db)

	if notificationSender == nil {
		notificationSender = notificationsClient
	}
	dispatcher := notification.NewDispatcher(notificationSender, notificationsClient)

	bookingService := booking.NewService(
		bookingsRepo,
		showsRepo,
		usersRepo,
		payment.NewAdapter(paymentClient, ledger, clk),
		dispatcher,
		lock.NewRedisLocker(redisClient, "ticketing:booking-lock:", cfg.LockTTL),
		clk,
	)

	expirationScheduler := scheduler.NewExpirationScheduler(
		bookingsRepo,
		bookingService,
		eventBus,
		clk,
		scheduler.Config{
			Window:   cfg.ExpirationWindow,
			Interval: cfg.SweepInterval,
		},
	)

	watermillRouter, err := pubsub.NewWatermillRouter(
		outbox.NewPostgresSubscriber(db, watermillLogger),
		redisPublisher,
		pubsub.RedisSubscriberFactory(redisClient, watermillLogger),
		event.NewProcessorConfig(redisClient, watermillLogger),
		event.NewHandler().Handlers(),
		dataLake,
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	httpServer := http.NewServer(
		cfg.HTTPAddr,
		bookingService,
		showsRepo,
		usersRepo,
		bookingsRepo,
		dispatcher,
		cfg.JWTSecret,
	)

	return Service{
		db:              db,
		watermillRouter: watermillRouter,
		httpServer:      httpServer,
		scheduler:       expirationScheduler,
	}
}

func (s Service) Run(ctx context.Context) error {
	if err := dbLib.InitializeDatabaseSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	if err := outbox.InitializeSchema(s.db, log.NewWatermill(log.FromContext(ctx))); err != nil {
		return fmt.Errorf("failed to initialize outbox schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		// the service shouldn't be healthy before the router is ready
		select {
		case <-s.watermillRouter.Running():
		case <-ctx.Done():
			return nil
		}

		return s.httpServer.Run(ctx)
	})

	g.Go(func() error {
		select {
		case <-s.watermillRouter.Running():
		case <-ctx.Done():
			return nil
		}

		return s.scheduler.Run(ctx)
	})

	return g.Wait()
}
