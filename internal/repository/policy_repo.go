package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockpay/backend/internal/models"
)

type PolicyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

// GetByOrganization returns the organization's risk policy, or nil when none
// is configured (all limits off).
func (r *PolicyRepo) GetByOrganization(ctx context.Context, organizationID uuid.UUID) (*models.CryptoSetting, error) {
	var s models.CryptoSetting
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, daily_payment_limit, daily_amount_limit_usd, new_address_lock_hours, created_at, updated_at
		FROM crypto_settings WHERE organization_id = $1
	`, organizationID).Scan(&s.ID, &s.OrganizationID, &s.DailyPaymentLimit, &s.DailyAmountLimitUSD, &s.NewAddressLockHours, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PolicyRepo) Upsert(ctx context.Context, s *models.CryptoSetting) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO crypto_settings (id, organization_id, daily_payment_limit, daily_amount_limit_usd, new_address_lock_hours)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id) DO UPDATE
		SET daily_payment_limit = EXCLUDED.daily_payment_limit,
			daily_amount_limit_usd = EXCLUDED.daily_amount_limit_usd,
			new_address_lock_hours = EXCLUDED.new_address_lock_hours,
			updated_at = now()
		RETURNING id, created_at, updated_at
	`, s.ID, s.OrganizationID, s.DailyPaymentLimit, s.DailyAmountLimitUSD, s.NewAddressLockHours).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}
