package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment request status enums. Terminal states are COMPLETED, FAILED and
// CANCELLED; a failed request is never resurrected — a retry is a new request.
const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusCompleted  = "COMPLETED"
	PaymentStatusFailed     = "FAILED"
	PaymentStatusCancelled  = "CANCELLED"
)

// Crypto type enums: the ledger's native currency (XRP) or an issued token.
const (
	CryptoTypeNative = "NATIVE"
	CryptoTypeIssued = "ISSUED"
)

// Withdrawal type enums: which entry point created the request.
const (
	WithdrawalSelfService   = "SELF_SERVICE"
	WithdrawalAdminApproved = "ADMIN_APPROVED"
)

type PaymentRequest struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	WorkerID       uuid.UUID `json:"worker_id"`
	// AmountUSD, CryptoRate and CryptoAmount are captured at creation and
	// never recomputed: CryptoAmount == AmountUSD / CryptoRate always.
	AmountUSD          decimal.Decimal  `json:"amount_usd"`
	CryptoType         string           `json:"crypto_type"`
	CryptoRate         decimal.Decimal  `json:"crypto_rate"`
	CryptoAmount       decimal.Decimal  `json:"crypto_amount"`
	WithdrawalType     string           `json:"withdrawal_type"`
	Status             string           `json:"status"`
	DestinationAddress string           `json:"destination_address"`
	TransactionHash    *string          `json:"transaction_hash,omitempty"`
	DataHash           *string          `json:"data_hash,omitempty"`
	CanonicalData      *string          `json:"canonical_data,omitempty"`
	FailureReason      *string          `json:"failure_reason,omitempty"`
	ApprovedBy         *uuid.UUID       `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `json:"approved_at,omitempty"`
	ProcessedAt        *time.Time       `json:"processed_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}
