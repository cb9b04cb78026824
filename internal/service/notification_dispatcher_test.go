package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"
	"exchange-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTask(t *testing.T, task *Task) *models.Notification {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := task.Wait(ctx)
	require.NoError(t, err)
	return n
}

func immediatePolicy() DispatchPolicy {
	p := DefaultDispatchPolicy()
	p.Mode = DispatchImmediate
	return p
}

func TestParseDispatchMode(t *testing.T) {
	assert.Equal(t, DispatchImmediate, ParseDispatchMode(" Immediate "))
	assert.Equal(t, DispatchDelayed, ParseDispatchMode("delayed"))
	assert.Equal(t, DispatchDelayed, ParseDispatchMode(""))
}

func TestRequestCreatedNotification(t *testing.T) {
	s := store.NewMemoryStore()
	nd := NewNotificationDispatcher(s, nil, immediatePolicy())

	n := waitTask(t, nd.RequestCreated(context.Background(), &models.MaterialRequest{ID: "r1", BuyerID: "B1", Name: "Recycled Asphalt"}))
	require.NotNil(t, n)
	assert.Equal(t, "Request Received", n.Title)
	assert.Equal(t, `We're looking for "Recycled Asphalt". We'll notify you when it matches a listing.`, n.Message)
	assert.Equal(t, models.NotificationKindInfo, n.Kind)
	assert.False(t, n.Read)

	list, unread, err := nd.ListForBuyer(context.Background(), "B1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, unread)
}

func TestDelayedModeWaitsForWindow(t *testing.T) {
	s := store.NewMemoryStore()
	policy := DefaultDispatchPolicy()
	policy.Delay = 100 * time.Millisecond
	nd := NewNotificationDispatcher(s, nil, policy)

	start := time.Now()
	task := nd.RequestCreated(context.Background(), &models.MaterialRequest{ID: "r1", BuyerID: "B1", Name: "Sand"})

	select {
	case <-task.Done():
		t.Fatal("notification emitted before the delay window")
	default:
	}

	waitTask(t, task)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestShutdownFlushesDelayedTasks(t *testing.T) {
	s := store.NewMemoryStore()
	policy := DefaultDispatchPolicy()
	policy.Delay = time.Hour
	nd := NewNotificationDispatcher(s, nil, policy)

	task := nd.RequestCreated(context.Background(), &models.MaterialRequest{ID: "r1", BuyerID: "B1", Name: "Sand"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, nd.Shutdown(ctx))

	n := waitTask(t, task)
	require.NotNil(t, n)
}

func TestEmissionAfterShutdownIsInline(t *testing.T) {
	s := store.NewMemoryStore()
	nd := NewNotificationDispatcher(s, nil, DefaultDispatchPolicy())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, nd.Shutdown(ctx))

	task := nd.RequestCreated(context.Background(), &models.MaterialRequest{ID: "r2", BuyerID: "B1", Name: "Gravel"})
	select {
	case <-task.Done():
	default:
		t.Fatal("emission after shutdown should finish before returning")
	}
	n, err := task.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, n)

	// a second shutdown has nothing left to wait for
	assert.NoError(t, nd.Shutdown(ctx))
}

func TestShutdownRacingEmissions(t *testing.T) {
	nd := NewNotificationDispatcher(store.NewMemoryStore(), nil, immediatePolicy())
	tx := &models.Transaction{ID: "t1", BuyerID: "B1", MaterialTitle: "Reclaimed Timber", Status: models.TransactionStatusInProgress}

	tasks := make(chan *Task, 50)
	go func() {
		for i := 0; i < cap(tasks); i++ {
			tasks <- nd.TransactionTransitioned(context.Background(), tx, "Acme Salvage")
		}
		close(tasks)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, nd.Shutdown(ctx))

	for task := range tasks {
		_, err := task.Wait(ctx)
		assert.NoError(t, err)
	}
}

func TestAcceptedNotification(t *testing.T) {
	nd := NewNotificationDispatcher(store.NewMemoryStore(), nil, immediatePolicy())
	tx := &models.Transaction{ID: "t1", BuyerID: "B1", SellerOrgID: "S1", MaterialTitle: "Reclaimed Timber", Status: models.TransactionStatusInProgress}

	n := waitTask(t, nd.TransactionTransitioned(context.Background(), tx, "Acme Salvage"))
	require.NotNil(t, n)
	assert.Equal(t, "Request Approved", n.Title)
	assert.Equal(t, "Your request for Reclaimed Timber has been approved by Acme Salvage.", n.Message)
	assert.Equal(t, models.NotificationKindSuccess, n.Kind)
}

func TestOtherTransitionsFollowPolicy(t *testing.T) {
	ctx := context.Background()
	rejected := &models.Transaction{ID: "t1", BuyerID: "B1", MaterialTitle: "Timber", Status: models.TransactionStatusRejected}
	completed := &models.Transaction{ID: "t2", BuyerID: "B1", MaterialTitle: "Timber", Status: models.TransactionStatusCompleted}
	fulfilled := &models.MaterialRequest{ID: "r1", BuyerID: "B1", Name: "Sand", Status: models.RequestStatusFulfilled}

	t.Run("default", func(t *testing.T) {
		nd := NewNotificationDispatcher(store.NewMemoryStore(), nil, immediatePolicy())
		assert.Nil(t, waitTask(t, nd.TransactionTransitioned(ctx, rejected, "Acme")))
		assert.Nil(t, waitTask(t, nd.TransactionTransitioned(ctx, completed, "Acme")))
		assert.Nil(t, waitTask(t, nd.RequestFulfilled(ctx, fulfilled)))

		list, _, err := nd.ListForBuyer(ctx, "B1")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("all transitions", func(t *testing.T) {
		policy := immediatePolicy()
		policy.NotifyAllTransitions = true
		nd := NewNotificationDispatcher(store.NewMemoryStore(), nil, policy)

		n := waitTask(t, nd.TransactionTransitioned(ctx, rejected, "Acme"))
		require.NotNil(t, n)
		assert.Equal(t, models.NotificationKindWarning, n.Kind)

		n = waitTask(t, nd.TransactionTransitioned(ctx, completed, "Acme"))
		require.NotNil(t, n)
		assert.Equal(t, models.NotificationKindSuccess, n.Kind)

		n = waitTask(t, nd.RequestFulfilled(ctx, fulfilled))
		require.NotNil(t, n)
		assert.Equal(t, "Request Matched", n.Title)
	})
}

func TestGuardEmitsOnce(t *testing.T) {
	s := store.NewMemoryStore()
	kv := newMemoryKV()
	nd := NewNotificationDispatcher(s, kv, immediatePolicy())
	tx := &models.Transaction{ID: "t1", BuyerID: "B1", MaterialTitle: "Timber", Status: models.TransactionStatusInProgress}

	first := waitTask(t, nd.TransactionTransitioned(context.Background(), tx, "Acme"))
	second := waitTask(t, nd.TransactionTransitioned(context.Background(), tx, "Acme"))
	assert.NotNil(t, first)
	assert.Nil(t, second)

	list, _, err := nd.ListForBuyer(context.Background(), "B1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGuardOutageStillEmits(t *testing.T) {
	kv := newMemoryKV()
	kv.failing = true
	nd := NewNotificationDispatcher(store.NewMemoryStore(), kv, immediatePolicy())

	n := waitTask(t, nd.RequestCreated(context.Background(), &models.MaterialRequest{ID: "r1", BuyerID: "B1", Name: "Sand"}))
	assert.NotNil(t, n)
}

// failingNotifications rejects every insert
type failingNotifications struct {
	store.NotificationRepository
}

func (failingNotifications) CreateNotification(context.Context, *models.Notification) error {
	return errors.New("disk full")
}

func TestStoreFailureReleasesGuard(t *testing.T) {
	kv := newMemoryKV()
	nd := NewNotificationDispatcher(failingNotifications{store.NewMemoryStore()}, kv, immediatePolicy())

	task := nd.RequestCreated(context.Background(), &models.MaterialRequest{ID: "r1", BuyerID: "B1", Name: "Sand"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := task.Wait(ctx)
	require.Error(t, err)

	kv.mu.Lock()
	defer kv.mu.Unlock()
	assert.False(t, kv.once["request-created:r1"])
}

func TestMarkRead(t *testing.T) {
	nd := NewNotificationDispatcher(store.NewMemoryStore(), nil, immediatePolicy())
	ctx := context.Background()
	n := waitTask(t, nd.RequestCreated(ctx, &models.MaterialRequest{ID: "r1", BuyerID: "B1", Name: "Sand"}))

	read, err := nd.MarkRead(ctx, n.ID, "B1")
	require.NoError(t, err)
	assert.True(t, read.Read)

	again, err := nd.MarkRead(ctx, n.ID, "B1")
	require.NoError(t, err)
	assert.True(t, again.Read)

	_, err = nd.MarkRead(ctx, n.ID, "B2")
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = nd.MarkRead(ctx, "missing", "B1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, unread, err := nd.ListForBuyer(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestTaskWaitHonoursContext(t *testing.T) {
	policy := DefaultDispatchPolicy()
	policy.Delay = time.Hour
	nd := NewNotificationDispatcher(store.NewMemoryStore(), nil, policy)
	task := nd.RequestCreated(context.Background(), &models.MaterialRequest{ID: "r1", BuyerID: "B1", Name: "Sand"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelShutdown()
	require.NoError(t, nd.Shutdown(shutdownCtx))
}
