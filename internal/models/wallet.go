package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the payer-side ledger account for an organization. In hot-wallet
// mode SecretCiphertext holds the sealed signing secret; when
// RequiresManualSigning is true the server never signs and the secret is
// absent.
type Wallet struct {
	ID                    uuid.UUID `json:"id"`
	OrganizationID        uuid.UUID `json:"organization_id"`
	Address               string    `json:"address"`
	SecretCiphertext      *string   `json:"-"`
	RequiresManualSigning bool      `json:"requires_manual_signing"`
	IsDefault             bool      `json:"is_default"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// DestinationAddress is a worker-controlled ledger address payments go to.
type DestinationAddress struct {
	ID         uuid.UUID `json:"id"`
	WorkerID   uuid.UUID `json:"worker_id"`
	Address    string    `json:"address"`
	Label      string    `json:"label"`
	CryptoType string    `json:"crypto_type"`
	IsDefault  bool      `json:"is_default"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Address event action enums.
const (
	AddressEventSetDefault = "SET_DEFAULT"
)

// AddressEvent is an append-only change-history row for a destination
// address. The most recent SET_DEFAULT event drives the new-address lock
// window check.
type AddressEvent struct {
	ID        uuid.UUID `json:"id"`
	AddressID uuid.UUID `json:"address_id"`
	WorkerID  uuid.UUID `json:"worker_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
