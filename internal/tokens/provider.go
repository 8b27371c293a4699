package tokens

import (
	"context"
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockpay/backend/internal/models"
)

// Provider resolves the issued-token configuration for an organization. The
// orchestrator must not care which backing store supplied the answer.
type Provider interface {
	// Resolve returns the config, or ok=false when the organization has not
	// configured an issued token.
	Resolve(ctx context.Context, organizationID uuid.UUID, cryptoType string) (*models.TokenConfig, bool, error)
}

// EnvProvider serves a single deployment-wide token config from TOKEN_ISSUER,
// TOKEN_CURRENCY and TOKEN_NETWORK. It answers for every organization.
type EnvProvider struct{}

var _ Provider = EnvProvider{}

func (EnvProvider) Resolve(_ context.Context, organizationID uuid.UUID, cryptoType string) (*models.TokenConfig, bool, error) {
	if cryptoType != models.CryptoTypeIssued {
		return nil, false, nil
	}
	issuer := os.Getenv("TOKEN_ISSUER")
	currency := os.Getenv("TOKEN_CURRENCY")
	if issuer == "" || currency == "" {
		return nil, false, nil
	}
	network := os.Getenv("TOKEN_NETWORK")
	if network == "" {
		network = "mainnet"
	}
	return &models.TokenConfig{
		OrganizationID: organizationID,
		IssuerAddress:  issuer,
		CurrencyCode:   currency,
		Network:        network,
	}, true, nil
}

// DBProvider reads per-organization token configs from token_configs.
type DBProvider struct {
	pool *pgxpool.Pool
}

func NewDBProvider(pool *pgxpool.Pool) *DBProvider {
	return &DBProvider{pool: pool}
}

var _ Provider = (*DBProvider)(nil)

func (p *DBProvider) Resolve(ctx context.Context, organizationID uuid.UUID, cryptoType string) (*models.TokenConfig, bool, error) {
	if cryptoType != models.CryptoTypeIssued {
		return nil, false, nil
	}
	var c models.TokenConfig
	err := p.pool.QueryRow(ctx, `
		SELECT organization_id, issuer_address, currency_code, network
		FROM token_configs WHERE organization_id = $1
	`, organizationID).Scan(&c.OrganizationID, &c.IssuerAddress, &c.CurrencyCode, &c.Network)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

// Chain asks each provider in order and returns the first hit.
type Chain []Provider

var _ Provider = Chain(nil)

func (c Chain) Resolve(ctx context.Context, organizationID uuid.UUID, cryptoType string) (*models.TokenConfig, bool, error) {
	for _, p := range c {
		cfg, ok, err := p.Resolve(ctx, organizationID, cryptoType)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return cfg, true, nil
		}
	}
	return nil, false, nil
}
