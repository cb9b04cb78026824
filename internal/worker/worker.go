package worker

import (
	"context"
	"strings"

	"exchange-service/internal/apperr"
	"exchange-service/internal/broker"
	"exchange-service/internal/identity"
	"exchange-service/internal/models"
	"exchange-service/internal/util"

	"go.uber.org/zap"
)

// Lifecycle is the part of the facade driven by other backends
type Lifecycle interface {
	ConfirmDelivery(ctx context.Context, actor identity.Identity, transactionID string) (*models.Transaction, error)
	LinkListing(ctx context.Context, actor identity.Identity, requestID, materialID string) (*models.MaterialRequest, error)
}

// LifecycleWorker applies DELIVERY_CONFIRMED and LISTING_MATCHED events
type LifecycleWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	lifecycle    Lifecycle
	logger       *zap.Logger
}

// NewLifecycleWorker creates a new lifecycle worker
func NewLifecycleWorker(consumer *broker.Consumer, lifecycle Lifecycle) *LifecycleWorker {
	w := &LifecycleWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		lifecycle:    lifecycle,
		logger:       util.ComponentLogger("lifecycle-worker"),
	}

	w.eventHandler.OnDeliveryConfirmed(w.handleDeliveryConfirmed)
	w.eventHandler.OnListingMatched(w.handleListingMatched)
	return w
}

// Start consumes until ctx is cancelled
func (w *LifecycleWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting lifecycle worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *LifecycleWorker) Stop() error {
	w.logger.Info("Stopping lifecycle worker")
	return w.consumer.Close()
}

func (w *LifecycleWorker) handleDeliveryConfirmed(ctx context.Context, event *models.DeliveryConfirmedEvent) error {
	ctx, span := util.StartSpan(ctx, "LifecycleWorker.DeliveryConfirmed")
	defer span.End()

	if strings.TrimSpace(event.TransactionID) == "" {
		return w.settle(event.EventType, event.EventID, apperr.Validation("transaction id is required"))
	}
	_, err := w.lifecycle.ConfirmDelivery(ctx, identity.System, event.TransactionID)
	return w.settle(event.EventType, event.EventID, err)
}

func (w *LifecycleWorker) handleListingMatched(ctx context.Context, event *models.ListingMatchedEvent) error {
	ctx, span := util.StartSpan(ctx, "LifecycleWorker.ListingMatched")
	defer span.End()

	if strings.TrimSpace(event.RequestID) == "" {
		return w.settle(event.EventType, event.EventID, apperr.Validation("request id is required"))
	}
	_, err := w.lifecycle.LinkListing(ctx, identity.System, event.RequestID, event.MaterialID)
	return w.settle(event.EventType, event.EventID, err)
}

// settle decides whether a message is committed. Declined events can never
// succeed on a retry, so they are logged and acknowledged; only internal
// failures are returned, and the consumer retries those in place.
func (w *LifecycleWorker) settle(eventType, eventID string, err error) error {
	if err == nil {
		util.InboundEventsTotal.WithLabelValues(eventType, "applied").Inc()
		return nil
	}

	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		util.InboundEventsTotal.WithLabelValues(eventType, "failed").Inc()
		return err
	}

	util.InboundEventsTotal.WithLabelValues(eventType, string(kind)).Inc()
	w.logger.Warn("Inbound event declined",
		zap.String("event_type", eventType),
		zap.String("event_id", eventID),
		zap.String("reason", string(kind)),
		zap.Error(err))
	return nil
}
