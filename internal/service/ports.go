package service

import (
	"context"
	"time"

	"exchange-service/internal/models"
)

// EventPublisher is satisfied by broker.EventPublisher
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, event *models.RequestEvent) error
	PublishTransactionEvent(ctx context.Context, event *models.TransactionEvent) error
	PublishFeedbackSubmitted(ctx context.Context, event *models.FeedbackSubmittedEvent) error
}

// IdempotencyStore remembers which record an idempotency key created.
// Satisfied by redisclient.Client.
type IdempotencyStore interface {
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error
}

// OnceGuard lets exactly one caller claim a key. Satisfied by redisclient.Client.
type OnceGuard interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ForgetOnce(ctx context.Context, key string) error
}
