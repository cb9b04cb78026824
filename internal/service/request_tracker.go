package service

import (
	"context"
	"fmt"
	"strings"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"
	"exchange-service/internal/store"
	"exchange-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestTracker tracks buyer asks for materials the catalog does not list yet
type RequestTracker struct {
	store          store.RequestRepository
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewRequestTracker creates a new request tracker
func NewRequestTracker(store store.RequestRepository, eventPublisher EventPublisher) *RequestTracker {
	return &RequestTracker{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.ComponentLogger("request-tracker"),
	}
}

// CreateRequestRequest represents a buyer's request for an unlisted material
type CreateRequestRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Urgency     string `json:"urgency"`
	BuyerID     string `json:"-"`
}

// CreateRequest records a PENDING request. Urgency defaults to STANDARD.
func (rt *RequestTracker) CreateRequest(ctx context.Context, req *CreateRequestRequest) (mr *models.MaterialRequest, err error) {
	ctx, span := util.StartSpan(ctx, "RequestTracker.CreateRequest")
	defer func() { util.EndSpan(span, err) }()

	buyerID := strings.TrimSpace(req.BuyerID)
	name := strings.TrimSpace(req.Name)
	if buyerID == "" {
		return nil, apperr.Validation("buyer id is required")
	}
	if name == "" {
		return nil, apperr.Validation("material name is required")
	}
	urgency, ok := models.ParseUrgency(req.Urgency)
	if !ok {
		return nil, apperr.Validation("unknown urgency %q", req.Urgency)
	}

	mr = &models.MaterialRequest{
		ID:          uuid.New().String(),
		BuyerID:     buyerID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Quantity:    strings.TrimSpace(req.Quantity),
		Urgency:     urgency,
		Status:      models.RequestStatusPending,
	}
	if err := rt.store.CreateRequest(ctx, mr); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	util.RequestsCreatedTotal.WithLabelValues(urgency).Inc()
	rt.logger.Info("Request created",
		zap.String("request_id", mr.ID),
		zap.String("buyer_id", mr.BuyerID),
		zap.String("urgency", mr.Urgency))

	rt.publish(ctx, mr, models.EventTypeRequestCreated)
	return mr, nil
}

// MarkFulfilled links a listing to the request. Calling it on a FULFILLED
// request returns the stored record unchanged and changed=false.
func (rt *RequestTracker) MarkFulfilled(ctx context.Context, requestID, materialID string) (mr *models.MaterialRequest, changed bool, err error) {
	ctx, span := util.StartSpan(ctx, "RequestTracker.MarkFulfilled")
	defer func() { util.EndSpan(span, err) }()

	mr, changed, err = rt.store.MarkRequestFulfilled(ctx, requestID, strings.TrimSpace(materialID))
	if err != nil {
		return nil, false, err
	}
	if !changed {
		rt.logger.Debug("Request already fulfilled", zap.String("request_id", requestID))
		return mr, false, nil
	}

	util.RequestsFulfilledTotal.Inc()
	rt.logger.Info("Request fulfilled",
		zap.String("request_id", mr.ID),
		zap.String("material_id", mr.MaterialID))

	rt.publish(ctx, mr, models.EventTypeRequestFulfilled)
	return mr, true, nil
}

func (rt *RequestTracker) publish(ctx context.Context, mr *models.MaterialRequest, eventType string) {
	event := &models.RequestEvent{
		BaseEvent:  models.NewBaseEvent(eventType),
		RequestID:  mr.ID,
		BuyerID:    mr.BuyerID,
		Name:       mr.Name,
		Urgency:    mr.Urgency,
		Status:     mr.Status,
		MaterialID: mr.MaterialID,
	}
	if err := rt.eventPublisher.PublishRequestEvent(ctx, event); err != nil {
		rt.logger.Error("Failed to publish request event",
			zap.String("request_id", mr.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// GetRequest retrieves a request by ID
func (rt *RequestTracker) GetRequest(ctx context.Context, requestID string) (*models.MaterialRequest, error) {
	return rt.store.GetRequestByID(ctx, requestID)
}

// ListForBuyer returns a buyer's requests, newest first
func (rt *RequestTracker) ListForBuyer(ctx context.Context, buyerID string) ([]models.MaterialRequest, error) {
	return rt.store.GetRequestsByBuyerID(ctx, buyerID)
}

func (rt *RequestTracker) CountByStatus(ctx context.Context) (map[string]int, error) {
	return rt.store.CountRequestsByStatus(ctx)
}
