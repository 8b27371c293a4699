package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockpay/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

func (r *WalletRepo) Create(ctx context.Context, w *models.Wallet) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO wallets (id, organization_id, address, secret_ciphertext, requires_manual_signing, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, w.ID, w.OrganizationID, w.Address, w.SecretCiphertext, w.RequiresManualSigning, w.IsDefault, w.IsActive).Scan(&w.CreatedAt, &w.UpdatedAt)
}

// GetDefaultActive returns the organization's default active payer wallet.
// pgx.ErrNoRows when the organization has none configured.
func (r *WalletRepo) GetDefaultActive(ctx context.Context, organizationID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, address, secret_ciphertext, requires_manual_signing, is_default, is_active, created_at, updated_at
		FROM wallets
		WHERE organization_id = $1 AND is_default AND is_active
		ORDER BY updated_at DESC LIMIT 1
	`, organizationID).Scan(&w.ID, &w.OrganizationID, &w.Address, &w.SecretCiphertext, &w.RequiresManualSigning, &w.IsDefault, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepo) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.Wallet, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, address, secret_ciphertext, requires_manual_signing, is_default, is_active, created_at, updated_at
		FROM wallets WHERE organization_id = $1 ORDER BY created_at DESC
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Wallet
	for rows.Next() {
		var w models.Wallet
		if err := rows.Scan(&w.ID, &w.OrganizationID, &w.Address, &w.SecretCiphertext, &w.RequiresManualSigning, &w.IsDefault, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &w)
	}
	return list, rows.Err()
}
