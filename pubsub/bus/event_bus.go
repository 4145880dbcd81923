package bus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"ticketing/entity"
)

const (
	// EventsTopic carries every external event. It is stored to the data lake and
	// split into per-event topics.
	EventsTopic = "events"

	internalEventsTopicPrefix = "internal-events.svc-ticketing."
	ConsumerGroupPrefix       = "svc-ticketing."
)

var Marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

func NewEventBus(pub message.Publisher) (*cqrs.EventBus, error) {
	return cqrs.NewEventBusWithConfig(pub, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			event, err := asEvent(params.Event)
			if err != nil {
				return "", err
			}

			if event.IsInternal() {
				return internalEventsTopicPrefix + params.EventName, nil
			}
			return EventsTopic, nil
		},
		Marshaler: Marshaler,
	})
}

// SubscribeTopic is the topic a handler of the event listens on: internal events are
// read where they were published, external ones from the splitter's per-event topic.
func SubscribeTopic(event any, eventName string) (string, error) {
	e, err := asEvent(event)
	if err != nil {
		return "", err
	}

	if e.IsInternal() {
		return internalEventsTopicPrefix + eventName, nil
	}
	return PerEventTopic(eventName), nil
}

func PerEventTopic(eventName string) string {
	return EventsTopic + "." + eventName
}

func asEvent(v any) (entity.Event, error) {
	event, ok := v.(entity.Event)
	if !ok {
		return nil, fmt.Errorf("invalid event type: %T doesn't implement entity.Event", v)
	}
	return event, nil
}
