package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"
)

// CreateFeedback appends a feedback row and bumps the seller's running totals
// in the same database transaction
func (s *Store) CreateFeedback(ctx context.Context, fb *models.Feedback, onePerStage bool) error {
	dbTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	// FOR UPDATE serializes duplicate checks for the same transaction
	lock := "FOR SHARE"
	if onePerStage {
		lock = "FOR UPDATE"
	}
	var txID string
	err = dbTx.GetContext(ctx, &txID, "SELECT id FROM transactions WHERE id = $1 "+lock, fb.TransactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("transaction", fb.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock transaction: %w", err)
	}

	if onePerStage {
		var exists bool
		err = dbTx.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM feedback WHERE transaction_id = $1 AND stage = $2)",
			fb.TransactionID, fb.Stage)
		if err != nil {
			return err
		}
		if exists {
			return apperr.Validation("feedback already submitted for this transaction at stage %s", models.StageLabel(fb.Stage))
		}
	}

	err = dbTx.QueryRowxContext(ctx, `
		INSERT INTO feedback (id, transaction_id, seller_org_id, buyer_id, rating, comment, stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		fb.ID, fb.TransactionID, fb.SellerOrgID, fb.BuyerID, fb.Rating, fb.Comment, fb.Stage,
	).Scan(&fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO seller_rating_totals (seller_org_id, rating_count, rating_sum)
		VALUES ($1, 1, $2)
		ON CONFLICT (seller_org_id) DO UPDATE
		SET rating_count = seller_rating_totals.rating_count + 1,
		    rating_sum = seller_rating_totals.rating_sum + EXCLUDED.rating_sum`,
		fb.SellerOrgID, fb.Rating)
	if err != nil {
		return fmt.Errorf("failed to update rating totals: %w", err)
	}

	return dbTx.Commit()
}

// GetRatingTotals returns the running totals for a seller; zero when no feedback exists
func (s *Store) GetRatingTotals(ctx context.Context, sellerOrgID string) (*models.RatingTotals, error) {
	totals := models.RatingTotals{SellerOrgID: sellerOrgID}
	err := s.db.GetContext(ctx, &totals,
		"SELECT * FROM seller_rating_totals WHERE seller_org_id = $1", sellerOrgID)
	if errors.Is(err, sql.ErrNoRows) {
		return &totals, nil
	}
	if err != nil {
		return nil, err
	}
	return &totals, nil
}

// GetFeedbackBySellerOrgID retrieves feedback about a seller, newest first
func (s *Store) GetFeedbackBySellerOrgID(ctx context.Context, sellerOrgID string) ([]models.Feedback, error) {
	rows := []models.Feedback{}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM feedback WHERE seller_org_id = $1 ORDER BY created_at DESC", sellerOrgID)
	return rows, err
}

// GetFeedbackByTransactionID retrieves feedback for a transaction, newest first
func (s *Store) GetFeedbackByTransactionID(ctx context.Context, transactionID string) ([]models.Feedback, error) {
	rows := []models.Feedback{}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM feedback WHERE transaction_id = $1 ORDER BY created_at DESC", transactionID)
	return rows, err
}

// CreateSellerReport inserts a seller report
func (s *Store) CreateSellerReport(ctx context.Context, report *models.SellerReport) error {
	query := `
		INSERT INTO seller_reports (id, transaction_id, seller_org_id, buyer_id, reason, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	return s.db.QueryRowxContext(ctx, query,
		report.ID, report.TransactionID, report.SellerOrgID, report.BuyerID, report.Reason, report.Description,
	).Scan(&report.CreatedAt)
}

// GetSellerReportsBySellerOrgID retrieves reports filed by a seller, newest first
func (s *Store) GetSellerReportsBySellerOrgID(ctx context.Context, sellerOrgID string) ([]models.SellerReport, error) {
	rows := []models.SellerReport{}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM seller_reports WHERE seller_org_id = $1 ORDER BY created_at DESC", sellerOrgID)
	return rows, err
}
