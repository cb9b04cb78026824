package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"exchange-service/internal/apperr"
	"exchange-service/internal/identity"
	"exchange-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLifecycle struct {
	confirmed []string
	linked    [][2]string
	actors    []identity.Identity
	err       error
}

func (f *fakeLifecycle) ConfirmDelivery(_ context.Context, actor identity.Identity, transactionID string) (*models.Transaction, error) {
	f.actors = append(f.actors, actor)
	f.confirmed = append(f.confirmed, transactionID)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Transaction{ID: transactionID, Status: models.TransactionStatusCompleted}, nil
}

func (f *fakeLifecycle) LinkListing(_ context.Context, actor identity.Identity, requestID, materialID string) (*models.MaterialRequest, error) {
	f.actors = append(f.actors, actor)
	f.linked = append(f.linked, [2]string{requestID, materialID})
	if f.err != nil {
		return nil, f.err
	}
	return &models.MaterialRequest{ID: requestID, Status: models.RequestStatusFulfilled}, nil
}

func msg(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: raw}
}

func deliveryConfirmed(txID string) *models.DeliveryConfirmedEvent {
	return &models.DeliveryConfirmedEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypeDeliveryConfirmed),
		TransactionID: txID,
	}
}

func TestDeliveryConfirmedCompletesAsSystem(t *testing.T) {
	lc := &fakeLifecycle{}
	w := NewLifecycleWorker(nil, lc)

	err := w.eventHandler.HandleMessage(context.Background(), msg(t, deliveryConfirmed("tx-1")))
	require.NoError(t, err)
	assert.Equal(t, []string{"tx-1"}, lc.confirmed)
	require.Len(t, lc.actors, 1)
	assert.True(t, lc.actors[0].IsSystem())
}

func TestListingMatchedLinksRequest(t *testing.T) {
	lc := &fakeLifecycle{}
	w := NewLifecycleWorker(nil, lc)

	err := w.eventHandler.HandleMessage(context.Background(), msg(t, &models.ListingMatchedEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeListingMatched),
		RequestID:  "req-1",
		MaterialID: "M1",
	}))
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"req-1", "M1"}}, lc.linked)
}

func TestDeclinedEventsAreAcknowledged(t *testing.T) {
	for _, err := range []error{
		apperr.InvalidState("transaction tx-1 is COMPLETED, expected IN_PROGRESS"),
		apperr.NotFound("transaction", "tx-1"),
		apperr.Validation("bad"),
	} {
		w := NewLifecycleWorker(nil, &fakeLifecycle{err: err})
		assert.NoError(t, w.eventHandler.HandleMessage(context.Background(), msg(t, deliveryConfirmed("tx-1"))))
	}
}

func TestInternalFailuresAreRetried(t *testing.T) {
	w := NewLifecycleWorker(nil, &fakeLifecycle{err: apperr.Internal(errors.New("db down"))})

	err := w.eventHandler.HandleMessage(context.Background(), msg(t, deliveryConfirmed("tx-1")))
	assert.Error(t, err)
}

func TestBlankIDsAreDropped(t *testing.T) {
	lc := &fakeLifecycle{}
	w := NewLifecycleWorker(nil, lc)

	err := w.eventHandler.HandleMessage(context.Background(), msg(t, deliveryConfirmed(" ")))
	assert.NoError(t, err)
	assert.Empty(t, lc.confirmed)
}
