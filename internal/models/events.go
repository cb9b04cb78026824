package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeRequestCreated       = "REQUEST_CREATED"
	EventTypeRequestFulfilled     = "REQUEST_FULFILLED"
	EventTypeTransactionCreated   = "TRANSACTION_CREATED"
	EventTypeTransactionAccepted  = "TRANSACTION_ACCEPTED"
	EventTypeTransactionRejected  = "TRANSACTION_REJECTED"
	EventTypeTransactionCompleted = "TRANSACTION_COMPLETED"
	EventTypeFeedbackSubmitted    = "FEEDBACK_SUBMITTED"

	// inbound, produced by the delivery and matching backends
	EventTypeDeliveryConfirmed = "DELIVERY_CONFIRMED"
	EventTypeListingMatched    = "LISTING_MATCHED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// RequestEvent is published when a material request is created or fulfilled
type RequestEvent struct {
	BaseEvent
	RequestID  string `json:"request_id"`
	BuyerID    string `json:"buyer_id"`
	Name       string `json:"name"`
	Urgency    string `json:"urgency"`
	Status     string `json:"status"`
	MaterialID string `json:"material_id,omitempty"`
}

// TransactionEvent is published on transaction creation and on every transition
type TransactionEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
	MaterialID    string `json:"material_id"`
	BuyerID       string `json:"buyer_id"`
	SellerOrgID   string `json:"seller_org_id"`
	FromStatus    string `json:"from_status,omitempty"`
	ToStatus      string `json:"to_status"`
}

// FeedbackSubmittedEvent is published after a feedback row is appended
type FeedbackSubmittedEvent struct {
	BaseEvent
	FeedbackID    string `json:"feedback_id"`
	TransactionID string `json:"transaction_id"`
	SellerOrgID   string `json:"seller_org_id"`
	Rating        int    `json:"rating"`
	Stage         string `json:"stage"`
}

// DeliveryConfirmedEvent completes an in-progress transaction
type DeliveryConfirmedEvent struct {
	BaseEvent
	TransactionID string `json:"transaction_id"`
}

// ListingMatchedEvent links a listing to a pending request
type ListingMatchedEvent struct {
	BaseEvent
	RequestID  string `json:"request_id"`
	MaterialID string `json:"material_id"`
}

// TransitionEventType maps a target transaction status to its event type
func TransitionEventType(status string) string {
	switch status {
	case TransactionStatusInProgress:
		return EventTypeTransactionAccepted
	case TransactionStatusRejected:
		return EventTypeTransactionRejected
	case TransactionStatusCompleted:
		return EventTypeTransactionCompleted
	default:
		return EventTypeTransactionCreated
	}
}
