package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"
	"exchange-service/internal/store"
	"exchange-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DispatchMode selects when a request acknowledgement is emitted
type DispatchMode string

const (
	DispatchImmediate DispatchMode = "immediate"
	DispatchDelayed   DispatchMode = "delayed"
)

// ParseDispatchMode accepts "immediate" or "delayed"; anything else is delayed
func ParseDispatchMode(raw string) DispatchMode {
	if strings.EqualFold(strings.TrimSpace(raw), string(DispatchImmediate)) {
		return DispatchImmediate
	}
	return DispatchDelayed
}

// DispatchPolicy configures the notification dispatcher
type DispatchPolicy struct {
	Mode DispatchMode
	// Delay is the acknowledgement window for new requests in delayed mode
	Delay time.Duration
	// NotifyAllTransitions adds notifications for rejected, completed and fulfilled
	NotifyAllTransitions bool
	// OnceTTL bounds how long an emission key is remembered by the guard
	OnceTTL time.Duration
}

// DefaultDispatchPolicy mirrors the observed behaviour: a 1.5s acknowledgement
// delay and notifications only for request-created and accepted.
func DefaultDispatchPolicy() DispatchPolicy {
	return DispatchPolicy{
		Mode:    DispatchDelayed,
		Delay:   1500 * time.Millisecond,
		OnceTTL: 24 * time.Hour,
	}
}

// Task is the pending outcome of one notification emission.
// Notification is nil when nothing qualified or the emission was a duplicate.
type Task struct {
	done         chan struct{}
	notification *models.Notification
	err          error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func completedTask() *Task {
	t := newTask()
	close(t.done)
	return t
}

func (t *Task) finish(n *models.Notification, err error) {
	t.notification, t.err = n, err
	close(t.done)
}

// Done is closed once the emission finished or was skipped
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done
func (t *Task) Wait(ctx context.Context) (*models.Notification, error) {
	select {
	case <-t.done:
		return t.notification, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NotificationDispatcher turns qualifying request and transaction transitions
// into buyer notifications. Emission never blocks the triggering mutation.
type NotificationDispatcher struct {
	store  store.NotificationRepository
	guard  OnceGuard
	policy DispatchPolicy
	logger *zap.Logger

	// mu orders wg.Add against Shutdown's Wait
	mu       sync.Mutex
	stopped  bool
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewNotificationDispatcher creates a dispatcher. guard may be nil, in which
// case each trigger emits without cross-instance deduplication.
func NewNotificationDispatcher(store store.NotificationRepository, guard OnceGuard, policy DispatchPolicy) *NotificationDispatcher {
	return &NotificationDispatcher{
		store:  store,
		guard:  guard,
		policy: policy,
		logger: util.ComponentLogger("notification-dispatcher"),
		stop:   make(chan struct{}),
	}
}

// RequestCreated schedules the "Request Received" acknowledgement
func (nd *NotificationDispatcher) RequestCreated(ctx context.Context, req *models.MaterialRequest) *Task {
	n := &models.Notification{
		RecipientBuyerID: req.BuyerID,
		Title:            "Request Received",
		Message:          fmt.Sprintf("We're looking for %q. We'll notify you when it matches a listing.", req.Name),
		Kind:             models.NotificationKindInfo,
	}
	var delay time.Duration
	if nd.policy.Mode == DispatchDelayed {
		delay = nd.policy.Delay
	}
	return nd.schedule(ctx, "request-created:"+req.ID, n, delay)
}

// TransactionTransitioned reacts to a transaction reaching tx.Status
func (nd *NotificationDispatcher) TransactionTransitioned(ctx context.Context, tx *models.Transaction, sellerName string) *Task {
	if sellerName == "" {
		sellerName = tx.SellerOrgID
	}

	n := &models.Notification{RecipientBuyerID: tx.BuyerID}
	switch tx.Status {
	case models.TransactionStatusInProgress:
		n.Title = "Request Approved"
		n.Message = fmt.Sprintf("Your request for %s has been approved by %s.", tx.MaterialTitle, sellerName)
		n.Kind = models.NotificationKindSuccess
	case models.TransactionStatusRejected:
		if !nd.policy.NotifyAllTransitions {
			return nd.skip("policy")
		}
		n.Title = "Request Declined"
		n.Message = fmt.Sprintf("Your request for %s was declined by %s.", tx.MaterialTitle, sellerName)
		n.Kind = models.NotificationKindWarning
	case models.TransactionStatusCompleted:
		if !nd.policy.NotifyAllTransitions {
			return nd.skip("policy")
		}
		n.Title = "Deal Completed"
		n.Message = fmt.Sprintf("Your deal for %s with %s is complete. Leave feedback to help other buyers.", tx.MaterialTitle, sellerName)
		n.Kind = models.NotificationKindSuccess
	default:
		return nd.skip("not_notifiable")
	}

	return nd.schedule(ctx, fmt.Sprintf("transaction:%s:%s", tx.ID, tx.Status), n, 0)
}

// RequestFulfilled reacts to a request being linked to a listing
func (nd *NotificationDispatcher) RequestFulfilled(ctx context.Context, req *models.MaterialRequest) *Task {
	if !nd.policy.NotifyAllTransitions {
		return nd.skip("policy")
	}
	n := &models.Notification{
		RecipientBuyerID: req.BuyerID,
		Title:            "Request Matched",
		Message:          fmt.Sprintf("A listing now matches your request for %q.", req.Name),
		Kind:             models.NotificationKindSuccess,
	}
	return nd.schedule(ctx, "request-fulfilled:"+req.ID, n, 0)
}

func (nd *NotificationDispatcher) skip(reason string) *Task {
	util.NotificationsSkippedTotal.WithLabelValues(reason).Inc()
	return completedTask()
}

// schedule emits n on its own goroutine after delay. The caller's span is
// carried over but not its cancellation, since the request that triggered the
// emission has usually returned by then. Once Shutdown has begun, emission
// happens inline and without delay.
func (nd *NotificationDispatcher) schedule(ctx context.Context, key string, n *models.Notification, delay time.Duration) *Task {
	task := newTask()
	detached := trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
	triggered := time.Now()

	nd.mu.Lock()
	if nd.stopped {
		nd.mu.Unlock()
		task.finish(nd.emit(detached, key, n))
		return task
	}
	nd.wg.Add(1)
	nd.mu.Unlock()

	go func() {
		defer nd.wg.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-nd.stop:
				timer.Stop()
			}
		}

		stored, err := nd.emit(detached, key, n)
		if err == nil && stored != nil {
			util.NotificationDispatchLatency.Observe(time.Since(triggered).Seconds())
		}
		task.finish(stored, err)
	}()

	return task
}

func (nd *NotificationDispatcher) emit(ctx context.Context, key string, n *models.Notification) (_ *models.Notification, err error) {
	ctx, span := util.StartSpan(ctx, "NotificationDispatcher.Emit")
	defer func() { util.EndSpan(span, err) }()

	guarded := false
	if nd.guard != nil {
		first, err := nd.guard.MarkOnce(ctx, key, nd.policy.OnceTTL)
		switch {
		case err != nil:
			nd.logger.Warn("Notification guard unavailable, emitting anyway", zap.String("key", key), zap.Error(err))
		case !first:
			util.NotificationsSkippedTotal.WithLabelValues("duplicate").Inc()
			nd.logger.Debug("Notification already emitted", zap.String("key", key))
			return nil, nil
		default:
			guarded = true
		}
	}

	stored := *n
	stored.ID = uuid.New().String()
	stored.Read = false
	if err := nd.store.CreateNotification(ctx, &stored); err != nil {
		if guarded {
			if ferr := nd.guard.ForgetOnce(ctx, key); ferr != nil {
				nd.logger.Warn("Failed to release notification guard", zap.String("key", key), zap.Error(ferr))
			}
		}
		nd.logger.Error("Failed to store notification", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	util.NotificationsEmittedTotal.WithLabelValues(stored.Kind).Inc()
	nd.logger.Info("Notification emitted",
		zap.String("notification_id", stored.ID),
		zap.String("recipient_buyer_id", stored.RecipientBuyerID),
		zap.String("kind", stored.Kind))
	return &stored, nil
}

// MarkRead flips read to true. Marking an already-read notification succeeds.
// A blank buyerID skips the ownership check.
func (nd *NotificationDispatcher) MarkRead(ctx context.Context, notificationID, buyerID string) (*models.Notification, error) {
	ctx, span := util.StartSpan(ctx, "NotificationDispatcher.MarkRead")
	defer span.End()

	if buyerID != "" {
		existing, err := nd.store.GetNotificationByID(ctx, notificationID)
		if err != nil {
			return nil, err
		}
		if existing.RecipientBuyerID != buyerID {
			return nil, apperr.Authorization("notification %s belongs to another buyer", notificationID)
		}
		if existing.Read {
			return existing, nil
		}
	}
	return nd.store.MarkNotificationRead(ctx, notificationID)
}

// ListForBuyer returns a buyer's notifications newest first and the unread count
func (nd *NotificationDispatcher) ListForBuyer(ctx context.Context, buyerID string) ([]models.Notification, int, error) {
	notifications, err := nd.store.GetNotificationsByBuyerID(ctx, buyerID)
	if err != nil {
		return nil, 0, err
	}
	unread := 0
	for _, n := range notifications {
		if !n.Read {
			unread++
		}
	}
	return notifications, unread, nil
}

// Shutdown flushes delayed emissions immediately and waits for in-flight ones
func (nd *NotificationDispatcher) Shutdown(ctx context.Context) error {
	nd.mu.Lock()
	nd.stopped = true
	nd.stopOnce.Do(func() { close(nd.stop) })
	nd.mu.Unlock()

	done := make(chan struct{})
	go func() {
		nd.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		nd.logger.Info("Notification dispatcher drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
