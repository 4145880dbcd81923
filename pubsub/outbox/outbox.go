package outbox

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"

	"ticketing/tracing"
)

const outboxTopic = "events_to_forward"

// NewPublisherForDb returns a publisher that writes messages into the outbox table
// inside tx. They are forwarded to the broker only after tx commits.
func NewPublisherForDb(ctx context.Context, tx *sqlx.Tx) (message.Publisher, error) {
	var publisher message.Publisher

	logger := log.NewWatermill(log.FromContext(ctx))

	publisher, err := watermillSQL.NewPublisher(
		tx,
		watermillSQL.PublisherConfig{
			SchemaAdapter: watermillSQL.DefaultPostgreSQLSchema{},
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("could not create outbox publisher: %w", err)
	}

	publisher = forwarder.NewPublisher(publisher, forwarder.PublisherConfig{
		ForwarderTopic: outboxTopic,
	})
	publisher = tracing.PublisherDecorator{Publisher: publisher}
	publisher = log.CorrelationPublisherDecorator{Publisher: publisher}

	return publisher, nil
}

func NewPostgresSubscriber(db *sqlx.DB, logger watermill.LoggerAdapter) message.Subscriber {
	sub, err := watermillSQL.NewSubscriber(
		db.DB,
		watermillSQL.SubscriberConfig{
			SchemaAdapter:    watermillSQL.DefaultPostgreSQLSchema{},
			OffsetsAdapter:   watermillSQL.DefaultPostgreSQLOffsetsAdapter{},
			InitializeSchema: true,
		},
		logger,
	)
	if err != nil {
		panic(fmt.Errorf("could not create outbox subscriber: %w", err))
	}

	return sub
}

// AddForwarderHandler moves messages from the outbox table to the broker using the given router.
func AddForwarderHandler(
	postgresSubscriber message.Subscriber,
	publisher message.Publisher,
	router *message.Router,
	logger watermill.LoggerAdapter,
) {
	_, err := forwarder.NewForwarder(
		postgresSubscriber,
		publisher,
		logger,
		forwarder.Config{
			ForwarderTopic: outboxTopic,
			Router:         router,
		},
	)
	if err != nil {
		panic(fmt.Errorf("could not create forwarder: %w", err))
	}
}

// InitializeSchema creates the outbox table so transactions can publish before the forwarder starts.
func InitializeSchema(db *sqlx.DB, logger watermill.LoggerAdapter) error {
	sub := NewPostgresSubscriber(db, logger)
	defer sub.Close()

	initializer, ok := sub.(message.SubscribeInitializer)
	if !ok {
		return fmt.Errorf("outbox subscriber can't initialize schema")
	}
	if err := initializer.SubscribeInitialize(outboxTopic); err != nil {
		return fmt.Errorf("could not initialize outbox schema: %w", err)
	}
	return nil
}
