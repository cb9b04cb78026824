package models

import (
	"fmt"
	"strings"
	"time"
)

// Material is a catalog listing. The catalog owns it; this service only reads it.
type Material struct {
	ID          string    `db:"id" json:"id"`
	SellerOrgID string    `db:"seller_org_id" json:"seller_org_id"`
	Title       string    `db:"title" json:"title"`
	Quantity    string    `db:"quantity" json:"quantity"`
	Available   bool      `db:"available" json:"available"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Organization is a seller organization as reported by the catalog
type Organization struct {
	ID      string `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Blocked bool   `db:"blocked" json:"blocked"`
}

// MaterialRequest is a buyer's ask for a material the catalog does not list
type MaterialRequest struct {
	ID          string    `db:"id" json:"id"`
	BuyerID     string    `db:"buyer_id" json:"buyer_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Quantity    string    `db:"quantity" json:"quantity"`
	Urgency     string    `db:"urgency" json:"urgency"`
	Status      string    `db:"status" json:"status"`
	MaterialID  string    `db:"material_id" json:"material_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction tracks a buyer's interest in one listed material
type Transaction struct {
	ID                string    `db:"id" json:"id"`
	MaterialID        string    `db:"material_id" json:"material_id"`
	MaterialTitle     string    `db:"material_title" json:"material_title"`
	BuyerID           string    `db:"buyer_id" json:"buyer_id"`
	SellerOrgID       string    `db:"seller_org_id" json:"seller_org_id"`
	RequestedQuantity string    `db:"requested_quantity" json:"requested_quantity"`
	PurposeNote       string    `db:"purpose_note" json:"purpose_note"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Feedback is an append-only rating of a seller
type Feedback struct {
	ID            string    `db:"id" json:"id"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	SellerOrgID   string    `db:"seller_org_id" json:"seller_org_id"`
	BuyerID       string    `db:"buyer_id" json:"buyer_id"`
	Rating        int       `db:"rating" json:"rating"`
	Comment       string    `db:"comment" json:"comment"`
	Stage         string    `db:"stage" json:"stage"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DisplayComment prefixes the comment with the stage label.
func (f *Feedback) DisplayComment() string {
	return fmt.Sprintf("[%s] %s", StageLabel(f.Stage), f.Comment)
}

// SellerReport is a seller's complaint about the buyer of one of its transactions
type SellerReport struct {
	ID            string    `db:"id" json:"id"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	SellerOrgID   string    `db:"seller_org_id" json:"seller_org_id"`
	BuyerID       string    `db:"buyer_id" json:"buyer_id"`
	Reason        string    `db:"reason" json:"reason"`
	Description   string    `db:"description" json:"description"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Notification is a buyer-facing informational event
type Notification struct {
	ID               string    `db:"id" json:"id"`
	RecipientBuyerID string    `db:"recipient_buyer_id" json:"recipient_buyer_id"`
	Title            string    `db:"title" json:"title"`
	Message          string    `db:"message" json:"message"`
	Kind             string    `db:"kind" json:"kind"`
	Read             bool      `db:"read" json:"read"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// RatingTotals is the running sum/count kept per seller
type RatingTotals struct {
	SellerOrgID string `db:"seller_org_id" json:"seller_org_id"`
	Count       int    `db:"rating_count" json:"count"`
	Sum         int64  `db:"rating_sum" json:"sum"`
}

// SellerRatingSummary is derived on read and never stored.
// Average is nil when the seller has no feedback yet.
type SellerRatingSummary struct {
	SellerOrgID string   `json:"seller_org_id"`
	Count       int      `json:"count"`
	Average     *float64 `json:"average"`
}

// ActivityStats summarises marketplace activity
type ActivityStats struct {
	TransactionsByStatus map[string]int `json:"transactions_by_status"`
	RequestsByStatus     map[string]int `json:"requests_by_status"`
	TotalTransactions    int            `json:"total_transactions"`
	ConversionRatio      float64        `json:"conversion_ratio"`
}

// Transaction statuses
const (
	TransactionStatusPending    = "PENDING"
	TransactionStatusInProgress = "IN_PROGRESS"
	TransactionStatusCompleted  = "COMPLETED"
	TransactionStatusRejected   = "REJECTED"
)

// Request statuses
const (
	RequestStatusPending   = "PENDING"
	RequestStatusFulfilled = "FULFILLED"
)

// Request urgencies
const (
	UrgencyStandard = "STANDARD"
	UrgencyUrgent   = "URGENT"
	UrgencyCritical = "CRITICAL"
)

// Feedback stages
const (
	StageDuringDeal   = "DURING_DEAL"
	StagePostDelivery = "POST_DELIVERY"
	StageGeneral      = "GENERAL"
)

// Notification kinds
const (
	NotificationKindInfo    = "INFO"
	NotificationKindSuccess = "SUCCESS"
	NotificationKindWarning = "WARNING"
)

// ParseUrgency normalizes an urgency value. Blank input means STANDARD.
func ParseUrgency(raw string) (string, bool) {
	switch normalizeEnum(raw) {
	case "", UrgencyStandard:
		return UrgencyStandard, true
	case UrgencyUrgent:
		return UrgencyUrgent, true
	case UrgencyCritical:
		return UrgencyCritical, true
	}
	return "", false
}

// ParseStage normalizes a feedback stage. Blank input means GENERAL.
func ParseStage(raw string) (string, bool) {
	switch normalizeEnum(raw) {
	case "", StageGeneral:
		return StageGeneral, true
	case StageDuringDeal:
		return StageDuringDeal, true
	case StagePostDelivery:
		return StagePostDelivery, true
	}
	return "", false
}

// StageLabel returns the human label of a stage
func StageLabel(stage string) string {
	switch stage {
	case StageDuringDeal:
		return "During Deal"
	case StagePostDelivery:
		return "Post-Delivery"
	default:
		return "General"
	}
}

// IsTerminal reports whether no further transaction transition is allowed
func IsTerminal(status string) bool {
	return status == TransactionStatusCompleted || status == TransactionStatusRejected
}

// normalizeEnum accepts "Post-Delivery", "post delivery", "POST_DELIVERY" alike
func normalizeEnum(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return s
}
