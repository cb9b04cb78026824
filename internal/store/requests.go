package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"
)

// CreateRequest inserts a new material request
func (s *Store) CreateRequest(ctx context.Context, req *models.MaterialRequest) error {
	query := `
		INSERT INTO material_requests (id, buyer_id, name, description, quantity, urgency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		req.ID, req.BuyerID, req.Name, req.Description, req.Quantity, req.Urgency, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
}

// GetRequestByID retrieves a material request by ID
func (s *Store) GetRequestByID(ctx context.Context, id string) (*models.MaterialRequest, error) {
	var req models.MaterialRequest
	err := s.db.GetContext(ctx, &req, "SELECT * FROM material_requests WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("request", id)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// MarkRequestFulfilled flips a pending request to fulfilled. The boolean is
// false when the request was already fulfilled.
func (s *Store) MarkRequestFulfilled(ctx context.Context, id, materialID string) (*models.MaterialRequest, bool, error) {
	dbTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer dbTx.Rollback()

	var req models.MaterialRequest
	err = dbTx.GetContext(ctx, &req, "SELECT * FROM material_requests WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, apperr.NotFound("request", id)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock request: %w", err)
	}

	if req.Status == models.RequestStatusFulfilled {
		return &req, false, nil
	}

	err = dbTx.QueryRowxContext(ctx, `
		UPDATE material_requests SET status = $1, material_id = $2, updated_at = NOW()
		WHERE id = $3 RETURNING updated_at`,
		models.RequestStatusFulfilled, materialID, id).Scan(&req.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fulfil request: %w", err)
	}
	req.Status = models.RequestStatusFulfilled
	req.MaterialID = materialID

	if err := dbTx.Commit(); err != nil {
		return nil, false, err
	}
	return &req, true, nil
}

// GetRequestsByBuyerID retrieves requests for a buyer, newest first
func (s *Store) GetRequestsByBuyerID(ctx context.Context, buyerID string) ([]models.MaterialRequest, error) {
	reqs := []models.MaterialRequest{}
	err := s.db.SelectContext(ctx, &reqs,
		"SELECT * FROM material_requests WHERE buyer_id = $1 ORDER BY created_at DESC", buyerID)
	return reqs, err
}

// CountRequestsByStatus counts requests per status
func (s *Store) CountRequestsByStatus(ctx context.Context) (map[string]int, error) {
	return countByStatus(ctx, s.db, "material_requests")
}
