package store

import (
	"context"
	"database/sql"
	"errors"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"
)

// CreateNotification inserts a notification
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_buyer_id, title, message, kind, read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	return s.db.QueryRowxContext(ctx, query,
		n.ID, n.RecipientBuyerID, n.Title, n.Message, n.Kind, n.Read,
	).Scan(&n.CreatedAt)
}

// GetNotificationByID retrieves a notification by ID
func (s *Store) GetNotificationByID(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := s.db.GetContext(ctx, &n, "SELECT * FROM notifications WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("notification", id)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkNotificationRead sets read=true. Setting it again is a no-op.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	err := s.db.GetContext(ctx, &n,
		"UPDATE notifications SET read = TRUE WHERE id = $1 RETURNING *", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("notification", id)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetNotificationsByBuyerID retrieves a buyer's notifications, newest first
func (s *Store) GetNotificationsByBuyerID(ctx context.Context, buyerID string) ([]models.Notification, error) {
	rows := []models.Notification{}
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM notifications WHERE recipient_buyer_id = $1 ORDER BY created_at DESC", buyerID)
	return rows, err
}
