package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"exchange-service/internal/models"
	"exchange-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes lifecycle events. A nil producer turns every publish
// into a no-op, which is how KAFKA_ENABLED=false runs.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishRequestEvent publishes REQUEST_CREATED / REQUEST_FULFILLED
func (ep *EventPublisher) PublishRequestEvent(ctx context.Context, event *models.RequestEvent) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("request-%s", event.RequestID), event)
}

// PublishTransactionEvent publishes TRANSACTION_* events
func (ep *EventPublisher) PublishTransactionEvent(ctx context.Context, event *models.TransactionEvent) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("transaction-%s", event.TransactionID), event)
}

// PublishFeedbackSubmitted publishes FEEDBACK_SUBMITTED
func (ep *EventPublisher) PublishFeedbackSubmitted(ctx context.Context, event *models.FeedbackSubmittedEvent) error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("transaction-%s", event.TransactionID), event)
}

// EventHandler routes inbound lifecycle events
type EventHandler struct {
	onDeliveryConfirmed func(context.Context, *models.DeliveryConfirmedEvent) error
	onListingMatched    func(context.Context, *models.ListingMatchedEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("event-handler")}
}

// OnDeliveryConfirmed registers a handler for DELIVERY_CONFIRMED events
func (eh *EventHandler) OnDeliveryConfirmed(handler func(context.Context, *models.DeliveryConfirmedEvent) error) {
	eh.onDeliveryConfirmed = handler
}

// OnListingMatched registers a handler for LISTING_MATCHED events
func (eh *EventHandler) OnListingMatched(handler func(context.Context, *models.ListingMatchedEvent) error) {
	eh.onListingMatched = handler
}

// HandleMessage routes messages to appropriate handlers. Our own outbound
// event types are ignored so the inbound topic may be shared.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: failed to unmarshal base event: %v", ErrMalformedMessage, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeDeliveryConfirmed:
		if eh.onDeliveryConfirmed != nil {
			var event models.DeliveryConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: failed to unmarshal DeliveryConfirmed event: %v", ErrMalformedMessage, err)
			}
			return eh.onDeliveryConfirmed(ctx, &event)
		}

	case models.EventTypeListingMatched:
		if eh.onListingMatched != nil {
			var event models.ListingMatchedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: failed to unmarshal ListingMatched event: %v", ErrMalformedMessage, err)
			}
			return eh.onListingMatched(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
