package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockpay/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new account and returns the created Account.
func (r *Repository) Create(ctx context.Context, organizationID uuid.UUID, email, passwordHash, displayName, role string) (*models.Account, error) {
	a := &models.Account{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Email:          email,
		DisplayName:    displayName,
		Role:           role,
		PasswordHash:   passwordHash,
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, organization_id, email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, a.ID, a.OrganizationID, a.Email, a.PasswordHash, a.DisplayName, a.Role).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByEmail returns the account for login. Returns nil when not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, email, display_name, role, password_hash, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email).Scan(&a.ID, &a.OrganizationID, &a.Email, &a.DisplayName, &a.Role, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, email, display_name, role, password_hash, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id).Scan(&a.ID, &a.OrganizationID, &a.Email, &a.DisplayName, &a.Role, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
