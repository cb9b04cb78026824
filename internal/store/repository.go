package store

import (
	"context"

	"exchange-service/internal/models"
)

// TransactionRepository persists transactions. TransitionTransaction must be
// atomic per transaction id: exactly one of two racing callers sees `from`.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	TransitionTransaction(ctx context.Context, id, from, to string) (*models.Transaction, error)
	GetOpenTransaction(ctx context.Context, buyerID, materialID string) (*models.Transaction, error)
	GetTransactionsByBuyerID(ctx context.Context, buyerID string) ([]models.Transaction, error)
	GetTransactionsBySellerOrgID(ctx context.Context, sellerOrgID string) ([]models.Transaction, error)
	CountTransactionsByStatus(ctx context.Context) (map[string]int, error)
}

// RequestRepository persists material requests
type RequestRepository interface {
	CreateRequest(ctx context.Context, req *models.MaterialRequest) error
	GetRequestByID(ctx context.Context, id string) (*models.MaterialRequest, error)
	MarkRequestFulfilled(ctx context.Context, id, materialID string) (*models.MaterialRequest, bool, error)
	GetRequestsByBuyerID(ctx context.Context, buyerID string) ([]models.MaterialRequest, error)
	CountRequestsByStatus(ctx context.Context) (map[string]int, error)
}

// FeedbackRepository is the append-only trust store. CreateFeedback fails with
// a NotFound error when the referenced transaction does not exist and keeps the
// per-seller rating totals in step with the inserted row.
type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, fb *models.Feedback, onePerStage bool) error
	GetRatingTotals(ctx context.Context, sellerOrgID string) (*models.RatingTotals, error)
	GetFeedbackBySellerOrgID(ctx context.Context, sellerOrgID string) ([]models.Feedback, error)
	GetFeedbackByTransactionID(ctx context.Context, transactionID string) ([]models.Feedback, error)
	CreateSellerReport(ctx context.Context, report *models.SellerReport) error
	GetSellerReportsBySellerOrgID(ctx context.Context, sellerOrgID string) ([]models.SellerReport, error)
}

// NotificationRepository persists buyer notifications
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotificationByID(ctx context.Context, id string) (*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) (*models.Notification, error)
	GetNotificationsByBuyerID(ctx context.Context, buyerID string) ([]models.Notification, error)
}

// CatalogRepository reads catalog data owned by the catalog collaborator
type CatalogRepository interface {
	GetMaterialByID(ctx context.Context, id string) (*models.Material, error)
	GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error)
}

// Repository is everything the interaction core persists or reads
type Repository interface {
	TransactionRepository
	RequestRepository
	FeedbackRepository
	NotificationRepository
	CatalogRepository
	Close() error
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*MemoryStore)(nil)
)
