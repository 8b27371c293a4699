package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

type Account struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Role           string    `json:"role"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
