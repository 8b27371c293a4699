package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CryptoSetting is the per-organization risk policy read by the limit
// validator. DailyPaymentLimit of 0 means unlimited; DailyAmountLimitUSD nil
// means no amount cap.
type CryptoSetting struct {
	ID                  uuid.UUID        `json:"id"`
	OrganizationID      uuid.UUID        `json:"organization_id"`
	DailyPaymentLimit   int              `json:"daily_payment_limit"`
	DailyAmountLimitUSD *decimal.Decimal `json:"daily_amount_limit_usd,omitempty"`
	NewAddressLockHours int              `json:"new_address_lock_hours"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// TokenConfig describes the issued token an organization pays with.
type TokenConfig struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	IssuerAddress  string    `json:"issuer_address"`
	CurrencyCode   string    `json:"currency_code"`
	Network        string    `json:"network"`
}
