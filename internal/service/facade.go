package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"exchange-service/internal/apperr"
	"exchange-service/internal/catalog"
	"exchange-service/internal/identity"
	"exchange-service/internal/models"
	"exchange-service/internal/util"

	"go.uber.org/zap"
)

// Decision is a seller's answer to an inquiry
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Inbox is a buyer's notifications, newest first
type Inbox struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

// Facade is the single entry point of the interaction core. It resolves
// identities and catalog references, delegates to the owning component and
// triggers notifications. Every error it returns is an *apperr.Error.
type Facade struct {
	transactions *TransactionCoordinator
	requests     *RequestTracker
	ledger       *TrustLedger
	dispatcher   *NotificationDispatcher
	catalog      catalog.Source

	idempotency    IdempotencyStore
	idempotencyTTL time.Duration

	logger *zap.Logger
}

// NewFacade wires the facade. idempotency may be nil.
func NewFacade(
	transactions *TransactionCoordinator,
	requests *RequestTracker,
	ledger *TrustLedger,
	dispatcher *NotificationDispatcher,
	catalog catalog.Source,
	idempotency IdempotencyStore,
	idempotencyTTL time.Duration,
) *Facade {
	return &Facade{
		transactions:   transactions,
		requests:       requests,
		ledger:         ledger,
		dispatcher:     dispatcher,
		catalog:        catalog,
		idempotency:    idempotency,
		idempotencyTTL: idempotencyTTL,
		logger:         util.ComponentLogger("facade"),
	}
}

// RequestMaterial records a buyer's ask for an unlisted material and schedules
// the acknowledgement notification.
func (f *Facade) RequestMaterial(ctx context.Context, actor identity.Identity, req *CreateRequestRequest, idempotencyKey string) (*models.MaterialRequest, error) {
	if err := actor.RequireBuyer(); err != nil {
		return nil, err
	}

	key := f.scopedKey("request", actor.ID, idempotencyKey)
	if id, ok := f.replay(ctx, key); ok {
		if existing, err := f.requests.GetRequest(ctx, id); err == nil {
			return existing, nil
		}
	}

	in := *req
	in.BuyerID = actor.ID
	mr, err := f.requests.CreateRequest(ctx, &in)
	if err != nil {
		return nil, f.fail("requestMaterial", err)
	}

	f.remember(ctx, key, mr.ID)
	f.dispatcher.RequestCreated(ctx, mr)
	return mr, nil
}

// InquireAboutMaterial opens a PENDING transaction against a listed material
func (f *Facade) InquireAboutMaterial(ctx context.Context, actor identity.Identity, req *CreateTransactionRequest, idempotencyKey string) (*models.Transaction, error) {
	if err := actor.RequireBuyer(); err != nil {
		return nil, err
	}

	key := f.scopedKey("transaction", actor.ID, idempotencyKey)
	if id, ok := f.replay(ctx, key); ok {
		if existing, err := f.transactions.GetTransaction(ctx, id); err == nil {
			return existing, nil
		}
	}

	in := *req
	in.BuyerID = actor.ID
	tx, err := f.transactions.CreateTransaction(ctx, &in)
	if err != nil {
		return nil, f.fail("inquireAboutMaterial", err)
	}

	f.remember(ctx, key, tx.ID)
	return tx, nil
}

// RespondToInquiry applies the acting seller's decision
func (f *Facade) RespondToInquiry(ctx context.Context, actor identity.Identity, transactionID string, decision Decision) (*models.Transaction, error) {
	if err := actor.RequireSeller(); err != nil {
		return nil, err
	}

	var (
		tx  *models.Transaction
		err error
	)
	switch decision {
	case DecisionAccept:
		tx, err = f.transactions.AcceptTransaction(ctx, transactionID, actor.OrgID)
	case DecisionReject:
		tx, err = f.transactions.RejectTransaction(ctx, transactionID, actor.OrgID)
	default:
		return nil, apperr.Validation("unknown decision %q", decision)
	}
	if err != nil {
		return nil, f.fail("respondToInquiry", err)
	}

	f.dispatcher.TransactionTransitioned(ctx, tx, f.sellerName(ctx, tx.SellerOrgID))
	return tx, nil
}

// ConfirmDelivery is the completion event. It comes from the delivery backend
// (system actor) or from the seller owning the transaction; buyers cannot
// advance a transaction.
func (f *Facade) ConfirmDelivery(ctx context.Context, actor identity.Identity, transactionID string) (*models.Transaction, error) {
	if !actor.IsSystem() {
		if err := actor.RequireSeller(); err != nil {
			return nil, err
		}
		current, err := f.transactions.GetTransaction(ctx, transactionID)
		if err != nil {
			return nil, f.fail("confirmDelivery", err)
		}
		if current.SellerOrgID != actor.OrgID {
			return nil, apperr.Authorization("organization %s does not own transaction %s", actor.OrgID, transactionID)
		}
	}

	tx, err := f.transactions.CompleteTransaction(ctx, transactionID)
	if err != nil {
		return nil, f.fail("confirmDelivery", err)
	}

	f.dispatcher.TransactionTransitioned(ctx, tx, f.sellerName(ctx, tx.SellerOrgID))
	return tx, nil
}

// LinkListing marks a request fulfilled by a listing. Repeating it is a no-op.
func (f *Facade) LinkListing(ctx context.Context, actor identity.Identity, requestID, materialID string) (*models.MaterialRequest, error) {
	if !actor.IsSystem() {
		if err := actor.RequireBuyer(); err != nil {
			return nil, err
		}
		current, err := f.requests.GetRequest(ctx, requestID)
		if err != nil {
			return nil, f.fail("linkListing", err)
		}
		if current.BuyerID != actor.ID {
			return nil, apperr.Authorization("request %s belongs to another buyer", requestID)
		}
	}
	if materialID = strings.TrimSpace(materialID); materialID != "" {
		if _, err := f.catalog.GetMaterialByID(ctx, materialID); err != nil {
			return nil, f.fail("linkListing", err)
		}
	}

	mr, changed, err := f.requests.MarkFulfilled(ctx, requestID, materialID)
	if err != nil {
		return nil, f.fail("linkListing", err)
	}
	if changed {
		f.dispatcher.RequestFulfilled(ctx, mr)
	}
	return mr, nil
}

// RateSeller appends the buyer's feedback about the seller of transactionID
func (f *Facade) RateSeller(ctx context.Context, actor identity.Identity, transactionID string, req *SubmitFeedbackRequest) (*models.Feedback, error) {
	if err := actor.RequireBuyer(); err != nil {
		return nil, err
	}

	tx, err := f.transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, f.fail("rateSeller", err)
	}
	if tx.BuyerID != actor.ID {
		return nil, apperr.Authorization("only the buyer of transaction %s can rate its seller", transactionID)
	}

	in := *req
	in.TransactionID = tx.ID
	in.BuyerID = actor.ID
	in.SellerOrgID = tx.SellerOrgID
	fb, err := f.ledger.SubmitFeedback(ctx, &in)
	if err != nil {
		return nil, f.fail("rateSeller", err)
	}
	return fb, nil
}

// ReportBuyer files the owning seller's report about a transaction's buyer
func (f *Facade) ReportBuyer(ctx context.Context, actor identity.Identity, transactionID string, req *ReportBuyerRequest) (*models.SellerReport, error) {
	if err := actor.RequireSeller(); err != nil {
		return nil, err
	}

	tx, err := f.transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, f.fail("reportBuyer", err)
	}
	if tx.SellerOrgID != actor.OrgID {
		return nil, apperr.Authorization("organization %s does not own transaction %s", actor.OrgID, transactionID)
	}

	in := *req
	in.TransactionID = tx.ID
	in.SellerOrgID = tx.SellerOrgID
	in.BuyerID = tx.BuyerID
	report, err := f.ledger.ReportBuyer(ctx, &in)
	if err != nil {
		return nil, f.fail("reportBuyer", err)
	}
	return report, nil
}

// AcknowledgeNotification marks one of the buyer's notifications read
func (f *Facade) AcknowledgeNotification(ctx context.Context, actor identity.Identity, notificationID string) (*models.Notification, error) {
	if err := actor.RequireBuyer(); err != nil {
		return nil, err
	}
	n, err := f.dispatcher.MarkRead(ctx, notificationID, actor.ID)
	if err != nil {
		return nil, f.fail("acknowledgeNotification", err)
	}
	return n, nil
}

// BuyerTransactions lists the actor's transactions, newest first
func (f *Facade) BuyerTransactions(ctx context.Context, actor identity.Identity) ([]models.Transaction, error) {
	if err := actor.RequireBuyer(); err != nil {
		return nil, err
	}
	txs, err := f.transactions.ListForBuyer(ctx, actor.ID)
	return txs, f.wrap("buyerTransactions", err)
}

// SellerTransactions lists inquiries addressed to the actor's organization,
// optionally only those about one of its listings
func (f *Facade) SellerTransactions(ctx context.Context, actor identity.Identity, materialID string) ([]models.Transaction, error) {
	if err := actor.RequireSeller(); err != nil {
		return nil, err
	}
	txs, err := f.transactions.ListForSeller(ctx, actor.OrgID, materialID)
	return txs, f.wrap("sellerTransactions", err)
}

// BuyerRequests lists the actor's material requests, newest first
func (f *Facade) BuyerRequests(ctx context.Context, actor identity.Identity) ([]models.MaterialRequest, error) {
	if err := actor.RequireBuyer(); err != nil {
		return nil, err
	}
	reqs, err := f.requests.ListForBuyer(ctx, actor.ID)
	return reqs, f.wrap("buyerRequests", err)
}

func (f *Facade) SellerRating(ctx context.Context, sellerOrgID string) (*models.SellerRatingSummary, error) {
	summary, err := f.ledger.SummaryForSeller(ctx, sellerOrgID)
	return summary, f.wrap("sellerRating", err)
}

func (f *Facade) SellerFeedback(ctx context.Context, sellerOrgID string) ([]models.Feedback, error) {
	fbs, err := f.ledger.FeedbackForSeller(ctx, sellerOrgID)
	return fbs, f.wrap("sellerFeedback", err)
}

// TransactionFeedback lists feedback for a transaction that exists
func (f *Facade) TransactionFeedback(ctx context.Context, transactionID string) ([]models.Feedback, error) {
	if _, err := f.transactions.GetTransaction(ctx, transactionID); err != nil {
		return nil, f.fail("transactionFeedback", err)
	}
	fbs, err := f.ledger.FeedbackForTransaction(ctx, transactionID)
	return fbs, f.wrap("transactionFeedback", err)
}

// SellerReports lists the reports the actor's organization filed
func (f *Facade) SellerReports(ctx context.Context, actor identity.Identity) ([]models.SellerReport, error) {
	if err := actor.RequireSeller(); err != nil {
		return nil, err
	}
	reports, err := f.ledger.ReportsForSeller(ctx, actor.OrgID)
	return reports, f.wrap("sellerReports", err)
}

// Notifications returns the actor's inbox
func (f *Facade) Notifications(ctx context.Context, actor identity.Identity) (*Inbox, error) {
	if err := actor.RequireBuyer(); err != nil {
		return nil, err
	}
	ns, unread, err := f.dispatcher.ListForBuyer(ctx, actor.ID)
	if err != nil {
		return nil, f.fail("notifications", err)
	}
	return &Inbox{Notifications: ns, Unread: unread}, nil
}

// ActivityStats summarises transactions and requests by status. The
// conversion ratio is completed over all transactions, 0 when there are none.
func (f *Facade) ActivityStats(ctx context.Context) (*models.ActivityStats, error) {
	txCounts, err := f.transactions.CountByStatus(ctx)
	if err != nil {
		return nil, f.fail("activityStats", err)
	}
	reqCounts, err := f.requests.CountByStatus(ctx)
	if err != nil {
		return nil, f.fail("activityStats", err)
	}

	stats := &models.ActivityStats{
		TransactionsByStatus: txCounts,
		RequestsByStatus:     reqCounts,
	}
	for _, n := range txCounts {
		stats.TotalTransactions += n
	}
	if stats.TotalTransactions > 0 {
		stats.ConversionRatio = float64(txCounts[models.TransactionStatusCompleted]) / float64(stats.TotalTransactions)
	}
	return stats, nil
}

// Shutdown drains pending notifications
func (f *Facade) Shutdown(ctx context.Context) error {
	return f.dispatcher.Shutdown(ctx)
}

func (f *Facade) sellerName(ctx context.Context, sellerOrgID string) string {
	org, err := f.catalog.GetOrganizationByID(ctx, sellerOrgID)
	if err != nil || org.Name == "" {
		return sellerOrgID
	}
	return org.Name
}

// scopedKey namespaces an idempotency key per operation and actor. Blank
// keys disable replay.
func (f *Facade) scopedKey(op, actorID, key string) string {
	key = strings.TrimSpace(key)
	if key == "" || f.idempotency == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", op, actorID, key)
}

func (f *Facade) replay(ctx context.Context, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	id, found, err := f.idempotency.GetIdempotencyKey(ctx, key)
	if err != nil {
		f.logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return id, found
}

func (f *Facade) remember(ctx context.Context, key, id string) {
	if key == "" {
		return
	}
	if err := f.idempotency.SetIdempotencyKey(ctx, key, id, f.idempotencyTTL); err != nil {
		f.logger.Warn("Failed to store idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func (f *Facade) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return f.fail(op, err)
}

// fail converts err to *apperr.Error. Declines are expected and logged by the
// components; only internal failures are logged here.
func (f *Facade) fail(op string, err error) error {
	wrapped := apperr.Wrap(err)
	if apperr.KindOf(wrapped) == apperr.KindInternal {
		f.logger.Error("Operation failed", zap.String("operation", op), zap.Error(err))
	}
	return wrapped
}
