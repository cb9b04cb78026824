package service

import (
	"context"
	"fmt"
	"strings"

	"exchange-service/internal/apperr"
	"exchange-service/internal/catalog"
	"exchange-service/internal/models"
	"exchange-service/internal/store"
	"exchange-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransactionCoordinator owns the inquiry-to-deal lifecycle of listed materials.
// Only the owning seller moves PENDING forward; only a completion event reaches COMPLETED.
type TransactionCoordinator struct {
	store          store.TransactionRepository
	catalog        catalog.Source
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewTransactionCoordinator creates a new transaction coordinator
func NewTransactionCoordinator(
	store store.TransactionRepository,
	catalog catalog.Source,
	eventPublisher EventPublisher,
) *TransactionCoordinator {
	return &TransactionCoordinator{
		store:          store,
		catalog:        catalog,
		eventPublisher: eventPublisher,
		logger:         util.ComponentLogger("transaction-coordinator"),
	}
}

// CreateTransactionRequest represents a buyer's inquiry about a listed material
type CreateTransactionRequest struct {
	MaterialID        string `json:"material_id" binding:"required"`
	RequestedQuantity string `json:"requested_quantity" binding:"required"`
	PurposeNote       string `json:"purpose_note"`
	BuyerID           string `json:"-"`
}

// CreateTransaction validates the inquiry against the catalog and records it as PENDING
func (tc *TransactionCoordinator) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (tx *models.Transaction, err error) {
	ctx, span := util.StartSpan(ctx, "TransactionCoordinator.CreateTransaction")
	defer func() { util.EndSpan(span, err) }()

	materialID := strings.TrimSpace(req.MaterialID)
	buyerID := strings.TrimSpace(req.BuyerID)
	if materialID == "" {
		return nil, tc.decline("create", apperr.Validation("material id is required"))
	}
	if buyerID == "" {
		return nil, tc.decline("create", apperr.Validation("buyer id is required"))
	}

	material, err := catalog.CurrentMaterial(ctx, tc.catalog, materialID)
	if err != nil {
		return nil, tc.decline("create", err)
	}
	if !material.Available {
		return nil, tc.decline("create", apperr.Validation("material %s is not available", materialID))
	}

	seller, err := tc.catalog.GetOrganizationByID(ctx, material.SellerOrgID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, tc.decline("create", apperr.Validation("cannot request from this seller"))
		}
		return nil, fmt.Errorf("failed to resolve seller: %w", err)
	}
	if seller.Blocked {
		return nil, tc.decline("create", apperr.Validation("cannot request from this seller"))
	}

	if err := validateRequestedQuantity(req.RequestedQuantity, material.Quantity); err != nil {
		return nil, tc.decline("create", err)
	}

	open, err := tc.store.GetOpenTransaction(ctx, buyerID, materialID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open transactions: %w", err)
	}
	if open != nil {
		return nil, tc.decline("create", apperr.Validation("you have already requested this material"))
	}

	tx = &models.Transaction{
		ID:                uuid.New().String(),
		MaterialID:        materialID,
		MaterialTitle:     material.Title,
		BuyerID:           buyerID,
		SellerOrgID:       material.SellerOrgID,
		RequestedQuantity: strings.TrimSpace(req.RequestedQuantity),
		PurposeNote:       strings.TrimSpace(req.PurposeNote),
		Status:            models.TransactionStatusPending,
	}

	if err := tc.store.CreateTransaction(ctx, tx); err != nil {
		// a concurrent duplicate can still lose the race inside the store
		if apperr.Is(err, apperr.KindValidation) {
			return nil, tc.decline("create", err)
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	util.TransactionsCreatedTotal.Inc()
	tc.logger.Info("Transaction created",
		zap.String("transaction_id", tx.ID),
		zap.String("material_id", tx.MaterialID),
		zap.String("seller_org_id", tx.SellerOrgID))

	tc.publish(ctx, tx, "")
	return tx, nil
}

// AcceptTransaction moves PENDING to IN_PROGRESS on behalf of the owning seller
func (tc *TransactionCoordinator) AcceptTransaction(ctx context.Context, transactionID, actingSellerOrgID string) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "TransactionCoordinator.AcceptTransaction")
	tx, err := tc.decide(ctx, "accept", transactionID, actingSellerOrgID, models.TransactionStatusInProgress)
	util.EndSpan(span, err)
	return tx, err
}

// RejectTransaction moves PENDING to REJECTED on behalf of the owning seller
func (tc *TransactionCoordinator) RejectTransaction(ctx context.Context, transactionID, actingSellerOrgID string) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "TransactionCoordinator.RejectTransaction")
	tx, err := tc.decide(ctx, "reject", transactionID, actingSellerOrgID, models.TransactionStatusRejected)
	util.EndSpan(span, err)
	return tx, err
}

// CompleteTransaction applies a completion event: IN_PROGRESS to COMPLETED
func (tc *TransactionCoordinator) CompleteTransaction(ctx context.Context, transactionID string) (tx *models.Transaction, err error) {
	ctx, span := util.StartSpan(ctx, "TransactionCoordinator.CompleteTransaction")
	defer func() { util.EndSpan(span, err) }()

	tx, err = tc.store.TransitionTransaction(ctx, transactionID,
		models.TransactionStatusInProgress, models.TransactionStatusCompleted)
	if err != nil {
		return nil, tc.decline("complete", err)
	}

	tc.transitioned(ctx, tx, models.TransactionStatusInProgress)
	return tx, nil
}

// decide applies a seller decision. Ownership is checked before state so a
// non-owner never learns the transaction's status.
func (tc *TransactionCoordinator) decide(ctx context.Context, op, transactionID, actingSellerOrgID, to string) (*models.Transaction, error) {
	if strings.TrimSpace(actingSellerOrgID) == "" {
		return nil, tc.decline(op, apperr.Authorization("acting seller organization is required"))
	}

	current, err := tc.store.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, tc.decline(op, err)
	}
	if current.SellerOrgID != actingSellerOrgID {
		return nil, tc.decline(op, apperr.Authorization("organization %s does not own transaction %s", actingSellerOrgID, transactionID))
	}

	if to == models.TransactionStatusInProgress {
		org, err := tc.catalog.GetOrganizationByID(ctx, actingSellerOrgID)
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return nil, fmt.Errorf("failed to resolve seller: %w", err)
		}
		if org == nil || org.Blocked {
			return nil, tc.decline(op, apperr.Authorization("blocked organization cannot accept requests"))
		}
	}

	tx, err := tc.store.TransitionTransaction(ctx, transactionID, models.TransactionStatusPending, to)
	if err != nil {
		return nil, tc.decline(op, err)
	}

	tc.transitioned(ctx, tx, models.TransactionStatusPending)
	return tx, nil
}

func (tc *TransactionCoordinator) transitioned(ctx context.Context, tx *models.Transaction, from string) {
	util.TransactionTransitionsTotal.WithLabelValues(tx.Status).Inc()
	tc.logger.Info("Transaction transitioned",
		zap.String("transaction_id", tx.ID),
		zap.String("from", from),
		zap.String("to", tx.Status))
	tc.publish(ctx, tx, from)
}

func (tc *TransactionCoordinator) publish(ctx context.Context, tx *models.Transaction, from string) {
	event := &models.TransactionEvent{
		BaseEvent:     models.NewBaseEvent(models.TransitionEventType(tx.Status)),
		TransactionID: tx.ID,
		MaterialID:    tx.MaterialID,
		BuyerID:       tx.BuyerID,
		SellerOrgID:   tx.SellerOrgID,
		FromStatus:    from,
		ToStatus:      tx.Status,
	}
	if err := tc.eventPublisher.PublishTransactionEvent(ctx, event); err != nil {
		tc.logger.Error("Failed to publish transaction event",
			zap.String("transaction_id", tx.ID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

// decline counts and logs a refused operation, passing the error through
func (tc *TransactionCoordinator) decline(op string, err error) error {
	kind := apperr.KindOf(err)
	util.TransactionsDeclinedTotal.WithLabelValues(op, string(kind)).Inc()
	if kind != apperr.KindInternal {
		tc.logger.Warn("Transaction operation declined", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// GetTransaction retrieves a transaction by ID
func (tc *TransactionCoordinator) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return tc.store.GetTransactionByID(ctx, transactionID)
}

// ListForBuyer returns a buyer's transactions, newest first
func (tc *TransactionCoordinator) ListForBuyer(ctx context.Context, buyerID string) ([]models.Transaction, error) {
	return tc.store.GetTransactionsByBuyerID(ctx, buyerID)
}

// ListForSeller returns transactions addressed to a seller, newest first.
// A non-blank materialID narrows the list to inquiries about that listing.
func (tc *TransactionCoordinator) ListForSeller(ctx context.Context, sellerOrgID, materialID string) ([]models.Transaction, error) {
	txs, err := tc.store.GetTransactionsBySellerOrgID(ctx, sellerOrgID)
	if err != nil {
		return nil, err
	}
	materialID = strings.TrimSpace(materialID)
	if materialID == "" {
		return txs, nil
	}

	filtered := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.MaterialID == materialID {
			filtered = append(filtered, tx)
		}
	}
	return filtered, nil
}

// CountByStatus counts transactions per status
func (tc *TransactionCoordinator) CountByStatus(ctx context.Context) (map[string]int, error) {
	return tc.store.CountTransactionsByStatus(ctx)
}
