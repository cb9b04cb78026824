package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"exchange-service/internal/apperr"
	"exchange-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/schema.sql
var schemaSQL string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Migrate creates the schema if it does not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// GetMaterialByID retrieves a catalog material by ID
func (s *Store) GetMaterialByID(ctx context.Context, id string) (*models.Material, error) {
	var material models.Material
	err := s.db.GetContext(ctx, &material, "SELECT * FROM materials WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("material", id)
	}
	if err != nil {
		return nil, err
	}
	return &material, nil
}

// GetOrganizationByID retrieves a seller organization by ID
func (s *Store) GetOrganizationByID(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.GetContext(ctx, &org, "SELECT * FROM organizations WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("organization", id)
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func countByStatus(ctx context.Context, db *sqlx.DB, table string) (map[string]int, error) {
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}
	query := fmt.Sprintf("SELECT status, COUNT(*) AS count FROM %s GROUP BY status", table)
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
