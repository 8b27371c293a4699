package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Audit action enums.
const (
	AuditActionCreated   = "CREATED"
	AuditActionCompleted = "COMPLETED"
	AuditActionFailed    = "FAILED"
	AuditActionCancelled = "CANCELLED"
)

// PaymentAuditEvent is an append-only row written on every payment state
// transition. Rows are never updated or read back by the orchestrator.
type PaymentAuditEvent struct {
	ID                 uuid.UUID       `json:"id"`
	PaymentRequestID   uuid.UUID       `json:"payment_request_id"`
	OrganizationID     uuid.UUID       `json:"organization_id"`
	WorkerID           uuid.UUID       `json:"worker_id"`
	Action             string          `json:"action"`
	AmountUSD          decimal.Decimal `json:"amount_usd"`
	CryptoType         string          `json:"crypto_type"`
	CryptoRate         decimal.Decimal `json:"crypto_rate"`
	CryptoAmount       decimal.Decimal `json:"crypto_amount"`
	DestinationAddress string          `json:"destination_address"`
	PreviousStatus     string          `json:"previous_status"`
	NewStatus          string          `json:"new_status"`
	ActorID            uuid.UUID       `json:"actor_id"`
	TransactionHash    *string         `json:"transaction_hash,omitempty"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// RateSample is an append-only record of the exchange rate used for a
// settlement attempt, written regardless of the attempt's outcome.
type RateSample struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	CryptoType     string          `json:"crypto_type"`
	RateUSD        decimal.Decimal `json:"rate_usd"`
	Source         string          `json:"source"`
	CreatedAt      time.Time       `json:"created_at"`
}
