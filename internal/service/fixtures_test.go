package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"exchange-service/internal/models"
	"exchange-service/internal/store"
)

// recordingPublisher captures published events
type recordingPublisher struct {
	mu           sync.Mutex
	requests     []*models.RequestEvent
	transactions []*models.TransactionEvent
	feedback     []*models.FeedbackSubmittedEvent
	err          error
}

func (p *recordingPublisher) PublishRequestEvent(_ context.Context, e *models.RequestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, e)
	return p.err
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, e *models.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transactions = append(p.transactions, e)
	return p.err
}

func (p *recordingPublisher) PublishFeedbackSubmitted(_ context.Context, e *models.FeedbackSubmittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feedback = append(p.feedback, e)
	return p.err
}

func (p *recordingPublisher) transactionTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.transactions))
	for _, e := range p.transactions {
		out = append(out, e.EventType)
	}
	return out
}

// memoryKV stands in for redis as both IdempotencyStore and OnceGuard
type memoryKV struct {
	mu      sync.Mutex
	values  map[string]string
	once    map[string]bool
	failing bool
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: make(map[string]string), once: make(map[string]bool)}
}

var errKVDown = errors.New("kv unavailable")

func (kv *memoryKV) GetIdempotencyKey(_ context.Context, key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.failing {
		return "", false, errKVDown
	}
	v, ok := kv.values[key]
	return v, ok, nil
}

func (kv *memoryKV) SetIdempotencyKey(_ context.Context, key, value string, _ time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.failing {
		return errKVDown
	}
	kv.values[key] = value
	return nil
}

func (kv *memoryKV) MarkOnce(_ context.Context, key string, _ time.Duration) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.failing {
		return false, errKVDown
	}
	if kv.once[key] {
		return false, nil
	}
	kv.once[key] = true
	return true, nil
}

func (kv *memoryKV) ForgetOnce(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.once, key)
	return nil
}

// seededStore returns a memory store with sellers S1 (Acme Salvage), S2 and
// blocked S3, and materials M1 (S1, "10 units"), M2 (S1, unavailable),
// M3 (S3) and M4 (S1, opaque quantity).
func seededStore() *store.MemoryStore {
	s := store.NewMemoryStore()
	s.PutOrganization(models.Organization{ID: "S1", Name: "Acme Salvage"})
	s.PutOrganization(models.Organization{ID: "S2", Name: "Brick Depot"})
	s.PutOrganization(models.Organization{ID: "S3", Name: "Shady Supplies", Blocked: true})

	s.PutMaterial(models.Material{ID: "M1", SellerOrgID: "S1", Title: "Reclaimed Timber", Quantity: "10 units", Available: true})
	s.PutMaterial(models.Material{ID: "M2", SellerOrgID: "S1", Title: "Steel Beams", Quantity: "4 beams", Available: false})
	s.PutMaterial(models.Material{ID: "M3", SellerOrgID: "S3", Title: "Copper Pipe", Quantity: "50 m", Available: true})
	s.PutMaterial(models.Material{ID: "M4", SellerOrgID: "S1", Title: "Mixed Tiles", Quantity: "a few crates", Available: true})
	return s
}
