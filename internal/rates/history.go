package rates

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clockpay/backend/internal/models"
)

// History is the append-only rate log. Every settlement attempt records the
// rate it used, whatever the attempt's outcome.
type History struct {
	pool *pgxpool.Pool
}

func NewHistory(pool *pgxpool.Pool) *History {
	return &History{pool: pool}
}

func (h *History) Record(ctx context.Context, organizationID uuid.UUID, cryptoType string, rateUSD decimal.Decimal, source string) error {
	_, err := h.pool.Exec(ctx, `
		INSERT INTO rate_history (id, organization_id, crypto_type, rate_usd, source)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), organizationID, cryptoType, rateUSD, source)
	return err
}

func (h *History) ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit int) ([]*models.RateSample, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT id, organization_id, crypto_type, rate_usd, source, created_at
		FROM rate_history WHERE organization_id = $1 ORDER BY created_at DESC LIMIT $2
	`, organizationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.RateSample
	for rows.Next() {
		var s models.RateSample
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.CryptoType, &s.RateUSD, &s.Source, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}
