package tokens

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/clockpay/backend/internal/models"
)

type stubProvider struct {
	cfg *models.TokenConfig
	ok  bool
	err error
}

func (s stubProvider) Resolve(context.Context, uuid.UUID, string) (*models.TokenConfig, bool, error) {
	return s.cfg, s.ok, s.err
}

func TestEnvProviderResolve(t *testing.T) {
	t.Setenv("TOKEN_ISSUER", "rIssuerXYZ")
	t.Setenv("TOKEN_CURRENCY", "USD")
	t.Setenv("TOKEN_NETWORK", "")

	org := uuid.New()
	cfg, ok, err := EnvProvider{}.Resolve(context.Background(), org, models.CryptoTypeIssued)
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if cfg.IssuerAddress != "rIssuerXYZ" || cfg.CurrencyCode != "USD" || cfg.Network != "mainnet" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.OrganizationID != org {
		t.Errorf("organization id not carried through")
	}
}

func TestEnvProviderSkipsNative(t *testing.T) {
	t.Setenv("TOKEN_ISSUER", "rIssuerXYZ")
	t.Setenv("TOKEN_CURRENCY", "USD")
	_, ok, err := EnvProvider{}.Resolve(context.Background(), uuid.New(), models.CryptoTypeNative)
	if err != nil || ok {
		t.Errorf("native must not resolve a token config: ok=%v err=%v", ok, err)
	}
}

func TestEnvProviderUnconfigured(t *testing.T) {
	t.Setenv("TOKEN_ISSUER", "")
	t.Setenv("TOKEN_CURRENCY", "")
	_, ok, err := EnvProvider{}.Resolve(context.Background(), uuid.New(), models.CryptoTypeIssued)
	if err != nil || ok {
		t.Errorf("unconfigured env must be absent: ok=%v err=%v", ok, err)
	}
}

func TestChainFirstHitWins(t *testing.T) {
	first := stubProvider{cfg: &models.TokenConfig{CurrencyCode: "AAA"}, ok: true}
	second := stubProvider{cfg: &models.TokenConfig{CurrencyCode: "BBB"}, ok: true}
	cfg, ok, err := Chain{first, second}.Resolve(context.Background(), uuid.New(), models.CryptoTypeIssued)
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if cfg.CurrencyCode != "AAA" {
		t.Errorf("chain order violated: got %s", cfg.CurrencyCode)
	}
}

func TestChainFallsThrough(t *testing.T) {
	miss := stubProvider{}
	hit := stubProvider{cfg: &models.TokenConfig{CurrencyCode: "BBB"}, ok: true}
	cfg, ok, err := Chain{miss, hit}.Resolve(context.Background(), uuid.New(), models.CryptoTypeIssued)
	if err != nil || !ok || cfg.CurrencyCode != "BBB" {
		t.Errorf("fallthrough failed: cfg=%+v ok=%v err=%v", cfg, ok, err)
	}
}

func TestChainEmptyIsAbsent(t *testing.T) {
	_, ok, err := Chain{}.Resolve(context.Background(), uuid.New(), models.CryptoTypeIssued)
	if err != nil || ok {
		t.Errorf("empty chain: ok=%v err=%v", ok, err)
	}
}
