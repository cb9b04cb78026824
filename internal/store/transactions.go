package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// CreateTransaction inserts a new transaction
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, material_id, material_title, buyer_id, seller_org_id,
			requested_quantity, purpose_note, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		tx.ID, tx.MaterialID, tx.MaterialTitle, tx.BuyerID, tx.SellerOrgID,
		tx.RequestedQuantity, tx.PurposeNote, tx.Status,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperr.Validation("you have already requested this material")
	}
	return err
}

// GetTransactionByID retrieves a transaction by ID
func (s *Store) GetTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx, "SELECT * FROM transactions WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("transaction", id)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// TransitionTransaction moves a transaction from one status to another under a
// row lock (FOR UPDATE), so concurrent transitions on the same id serialize.
func (s *Store) TransitionTransaction(ctx context.Context, id, from, to string) (*models.Transaction, error) {
	dbTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer dbTx.Rollback()

	var current models.Transaction
	err = dbTx.GetContext(ctx, &current, "SELECT * FROM transactions WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	if current.Status != from {
		return nil, apperr.InvalidState("transaction %s is %s, expected %s", id, current.Status, from)
	}

	err = dbTx.QueryRowxContext(ctx,
		"UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at",
		to, id).Scan(&current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction status: %w", err)
	}
	current.Status = to

	if err := dbTx.Commit(); err != nil {
		return nil, err
	}
	return &current, nil
}

// GetOpenTransaction returns the buyer's pending or in-progress transaction for
// a material, or nil when there is none
func (s *Store) GetOpenTransaction(ctx context.Context, buyerID, materialID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx, `
		SELECT * FROM transactions
		WHERE buyer_id = $1 AND material_id = $2 AND status IN ($3, $4)
		ORDER BY created_at DESC LIMIT 1`,
		buyerID, materialID, models.TransactionStatusPending, models.TransactionStatusInProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransactionsByBuyerID retrieves transactions for a buyer, newest first
func (s *Store) GetTransactionsByBuyerID(ctx context.Context, buyerID string) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM transactions WHERE buyer_id = $1 ORDER BY created_at DESC", buyerID)
	return txs, err
}

// GetTransactionsBySellerOrgID retrieves transactions addressed to a seller, newest first
func (s *Store) GetTransactionsBySellerOrgID(ctx context.Context, sellerOrgID string) ([]models.Transaction, error) {
	txs := []models.Transaction{}
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM transactions WHERE seller_org_id = $1 ORDER BY created_at DESC", sellerOrgID)
	return txs, err
}

// CountTransactionsByStatus counts transactions per status
func (s *Store) CountTransactionsByStatus(ctx context.Context) (map[string]int, error) {
	return countByStatus(ctx, s.db, "transactions")
}
