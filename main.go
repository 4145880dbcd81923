package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"ticketing/clock"
	"ticketing/config"
	"ticketing/db"
	"ticketing/gateway"
	"ticketing/notification"
	"ticketing/pubsub"
	"ticketing/service"
	"ticketing/tracing"
)

func main() {
	// .env is optional, the environment wins over it
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("Could not load .env")
	}

	cfg, err := config.Load(os.Args[1:])
	if config.IsHelp(err) {
		os.Exit(0)
	}
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	log.Init(cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.JaegerEndpoint != "" || cfg.GatewayAddr != "" {
		traceProvider, err := tracing.ConfigureTraceProvider(cfg.JaegerEndpoint, cfg.GatewayAddr)
		if err != nil {
			panic(err)
		}
		defer func() {
			if err := traceProvider.Shutdown(context.Background()); err != nil {
				logrus.WithError(err).Error("Could not shut down trace provider")
			}
		}()
	}

	dbconn, err := db.Open(cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	defer dbconn.Close()

	redisClient := pubsub.NewRedisClient(cfg.RedisAddr)
	defer redisClient.Close()

	httpClient := gateway.NewHTTPClient(cfg.RemoteTimeout)
	paymentClient := gateway.NewPaymentClient(cfg.PaymentsURL, httpClient)
	notificationsClient := gateway.NewNotificationsClient(cfg.NotificationsURL, httpClient)

	var notificationSender notification.Sender
	if cfg.AMQPURL != "" {
		amqpSender, err := gateway.NewNotificationsAMQPSender(cfg.AMQPURL)
		if err != nil {
			panic(err)
		}
		defer amqpSender.Close()

		notificationSender = amqpSender
	}

	err = service.New(
		cfg,
		dbconn,
		redisClient,
		paymentClient,
		notificationsClient,
		notificationSender,
		clock.NewSystem(),
	).Run(ctx)
	if err != nil {
		panic(err)
	}
}
