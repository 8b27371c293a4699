package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Work session status enums. The approval workflow owns everything up to
// APPROVED; the settlement engine only moves APPROVED -> REQUESTED -> PAID
// (or back to APPROVED when a transfer fails).
const (
	SessionStatusApproved  = "APPROVED"
	SessionStatusRequested = "REQUESTED"
	SessionStatusPaid      = "PAID"
)

// WorkSession is an approved, unpaid block of tracked time with a USD value.
type WorkSession struct {
	ID               uuid.UUID       `json:"id"`
	OrganizationID   uuid.UUID       `json:"organization_id"`
	WorkerID         uuid.UUID       `json:"worker_id"`
	Status           string          `json:"status"`
	AmountUSD        decimal.Decimal `json:"amount_usd"`
	PaymentRequestID *uuid.UUID      `json:"payment_request_id,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
