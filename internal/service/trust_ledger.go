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

// TrustLedger is the append-only feedback log and the seller rating aggregates
// derived from it. Feedback rows are never updated or deleted.
type TrustLedger struct {
	store          store.FeedbackRepository
	eventPublisher EventPublisher
	onePerStage    bool
	logger         *zap.Logger
}

// NewTrustLedger creates a new trust ledger. With onePerStage set a second
// submission for the same transaction and stage is declined.
func NewTrustLedger(store store.FeedbackRepository, eventPublisher EventPublisher, onePerStage bool) *TrustLedger {
	return &TrustLedger{
		store:          store,
		eventPublisher: eventPublisher,
		onePerStage:    onePerStage,
		logger:         util.ComponentLogger("trust-ledger"),
	}
}

// SubmitFeedbackRequest represents a buyer's rating of a seller
type SubmitFeedbackRequest struct {
	Rating        int    `json:"rating" binding:"required"`
	Comment       string `json:"comment" binding:"required"`
	Stage         string `json:"stage"`
	TransactionID string `json:"-"`
	BuyerID       string `json:"-"`
	SellerOrgID   string `json:"-"`
}

// SubmitFeedback validates and appends one feedback row
func (tl *TrustLedger) SubmitFeedback(ctx context.Context, req *SubmitFeedbackRequest) (fb *models.Feedback, err error) {
	ctx, span := util.StartSpan(ctx, "TrustLedger.SubmitFeedback")
	defer func() { util.EndSpan(span, err) }()

	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperr.Validation("rating must be an integer between 1 and 5, got %d", req.Rating)
	}
	comment := strings.TrimSpace(req.Comment)
	if comment == "" {
		return nil, apperr.Validation("comment is required")
	}
	stage, ok := models.ParseStage(req.Stage)
	if !ok {
		return nil, apperr.Validation("unknown feedback stage %q", req.Stage)
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, apperr.Validation("transaction id is required")
	}
	if strings.TrimSpace(req.SellerOrgID) == "" || strings.TrimSpace(req.BuyerID) == "" {
		return nil, apperr.Validation("buyer and seller are required")
	}

	fb = &models.Feedback{
		ID:            uuid.New().String(),
		TransactionID: req.TransactionID,
		SellerOrgID:   req.SellerOrgID,
		BuyerID:       req.BuyerID,
		Rating:        req.Rating,
		Comment:       comment,
		Stage:         stage,
	}
	if err := tl.store.CreateFeedback(ctx, fb, tl.onePerStage); err != nil {
		return nil, fmt.Errorf("failed to create feedback: %w", err)
	}

	util.FeedbackSubmittedTotal.WithLabelValues(stage).Inc()
	tl.logger.Info("Feedback submitted",
		zap.String("feedback_id", fb.ID),
		zap.String("transaction_id", fb.TransactionID),
		zap.String("seller_org_id", fb.SellerOrgID),
		zap.Int("rating", fb.Rating))

	event := &models.FeedbackSubmittedEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypeFeedbackSubmitted),
		FeedbackID:    fb.ID,
		TransactionID: fb.TransactionID,
		SellerOrgID:   fb.SellerOrgID,
		Rating:        fb.Rating,
		Stage:         fb.Stage,
	}
	if err := tl.eventPublisher.PublishFeedbackSubmitted(ctx, event); err != nil {
		tl.logger.Error("Failed to publish feedback event", zap.String("feedback_id", fb.ID), zap.Error(err))
	}
	return fb, nil
}

// SummaryForSeller reads the running totals. Average stays nil until the
// seller has at least one rating.
func (tl *TrustLedger) SummaryForSeller(ctx context.Context, sellerOrgID string) (*models.SellerRatingSummary, error) {
	totals, err := tl.store.GetRatingTotals(ctx, sellerOrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rating totals: %w", err)
	}

	summary := &models.SellerRatingSummary{SellerOrgID: sellerOrgID, Count: totals.Count}
	if totals.Count > 0 {
		avg := float64(totals.Sum) / float64(totals.Count)
		summary.Average = &avg
	}
	return summary, nil
}

// FeedbackForSeller returns a seller's feedback, newest first
func (tl *TrustLedger) FeedbackForSeller(ctx context.Context, sellerOrgID string) ([]models.Feedback, error) {
	return tl.store.GetFeedbackBySellerOrgID(ctx, sellerOrgID)
}

// FeedbackForTransaction returns a transaction's feedback, newest first
func (tl *TrustLedger) FeedbackForTransaction(ctx context.Context, transactionID string) ([]models.Feedback, error) {
	return tl.store.GetFeedbackByTransactionID(ctx, transactionID)
}

// ReportBuyerRequest represents a seller's complaint about a buyer
type ReportBuyerRequest struct {
	Reason        string `json:"reason" binding:"required"`
	Description   string `json:"description"`
	TransactionID string `json:"-"`
	SellerOrgID   string `json:"-"`
	BuyerID       string `json:"-"`
}

// ReportBuyer appends a seller report. Ownership is checked by the caller.
func (tl *TrustLedger) ReportBuyer(ctx context.Context, req *ReportBuyerRequest) (report *models.SellerReport, err error) {
	ctx, span := util.StartSpan(ctx, "TrustLedger.ReportBuyer")
	defer func() { util.EndSpan(span, err) }()

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperr.Validation("report reason is required")
	}

	report = &models.SellerReport{
		ID:            uuid.New().String(),
		TransactionID: req.TransactionID,
		SellerOrgID:   req.SellerOrgID,
		BuyerID:       req.BuyerID,
		Reason:        reason,
		Description:   strings.TrimSpace(req.Description),
	}
	if err := tl.store.CreateSellerReport(ctx, report); err != nil {
		return nil, err
	}

	util.SellerReportsTotal.Inc()
	tl.logger.Info("Seller report filed",
		zap.String("report_id", report.ID),
		zap.String("transaction_id", report.TransactionID),
		zap.String("seller_org_id", report.SellerOrgID))
	return report, nil
}

// ReportsForSeller returns the reports a seller filed, newest first
func (tl *TrustLedger) ReportsForSeller(ctx context.Context, sellerOrgID string) ([]models.SellerReport, error) {
	return tl.store.GetSellerReportsBySellerOrgID(ctx, sellerOrgID)
}
