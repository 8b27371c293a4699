package addresses

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clockpay/backend/internal/gateway"
	"github.com/clockpay/backend/internal/models"
	"github.com/clockpay/backend/internal/repository"
)

var (
	ErrInvalidAddress = errors.New("address is not a valid ledger address")
	ErrNotOwned       = errors.New("address does not belong to this worker")
)

type Service interface {
	AddAddress(ctx context.Context, workerID uuid.UUID, address, cryptoType, label string, makeDefault bool) (*models.DestinationAddress, error)
	ListAddresses(ctx context.Context, workerID uuid.UUID) ([]*models.DestinationAddress, error)
	SetDefault(ctx context.Context, workerID, addressID uuid.UUID) error
}

// Repo is the subset of the address repository the service needs.
type Repo interface {
	Create(ctx context.Context, a *models.DestinationAddress) error
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.DestinationAddress, error)
	SetDefault(ctx context.Context, workerID, addressID uuid.UUID) error
	GetDefaultActive(ctx context.Context, workerID uuid.UUID) (*models.DestinationAddress, error)
}

type service struct {
	repo Repo
}

func NewService(repo Repo) *service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

// AddAddress registers a new payout address for the worker. Setting it as
// default writes a SET_DEFAULT event, which starts the new-address lock
// window on the payment side.
func (s *service) AddAddress(ctx context.Context, workerID uuid.UUID, address, cryptoType, label string, makeDefault bool) (*models.DestinationAddress, error) {
	address = strings.TrimSpace(address)
	if !gateway.IsValidAddress(address) {
		return nil, ErrInvalidAddress
	}
	if cryptoType == "" {
		cryptoType = models.CryptoTypeNative
	}
	if cryptoType != models.CryptoTypeNative && cryptoType != models.CryptoTypeIssued {
		return nil, errors.New("unknown crypto type")
	}

	// First address a worker registers becomes the default even when the
	// caller didn't ask; otherwise they could never get paid.
	if !makeDefault {
		if _, err := s.repo.GetDefaultActive(ctx, workerID); errors.Is(err, pgx.ErrNoRows) {
			makeDefault = true
		}
	}

	a := &models.DestinationAddress{
		ID:         uuid.New(),
		WorkerID:   workerID,
		Address:    address,
		CryptoType: cryptoType,
		Label:      label,
		IsActive:   true,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	if makeDefault {
		if err := s.repo.SetDefault(ctx, workerID, a.ID); err != nil {
			return nil, err
		}
		a.IsDefault = true
	}
	return a, nil
}

func (s *service) ListAddresses(ctx context.Context, workerID uuid.UUID) ([]*models.DestinationAddress, error) {
	return s.repo.ListByWorker(ctx, workerID)
}

// SetDefault switches the worker's payout target. The repository writes the
// SET_DEFAULT event in the same transaction, so the lock window cannot be
// skipped.
func (s *service) SetDefault(ctx context.Context, workerID, addressID uuid.UUID) error {
	err := s.repo.SetDefault(ctx, workerID, addressID)
	if errors.Is(err, repository.ErrAddressNotFound) {
		return ErrNotOwned
	}
	return err
}
