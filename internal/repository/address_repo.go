package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockpay/backend/internal/models"
)

// ErrAddressNotFound means the address does not exist, is inactive, or
// belongs to another worker.
var ErrAddressNotFound = errors.New("destination address not found")

type AddressRepo struct {
	pool *pgxpool.Pool
}

func NewAddressRepo(pool *pgxpool.Pool) *AddressRepo {
	return &AddressRepo{pool: pool}
}

func (r *AddressRepo) Create(ctx context.Context, a *models.DestinationAddress) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO destination_addresses (id, worker_id, address, label, crypto_type, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, a.ID, a.WorkerID, a.Address, a.Label, a.CryptoType, a.IsDefault, a.IsActive).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// GetDefaultActive returns the worker's default active destination address.
// pgx.ErrNoRows when none is configured.
func (r *AddressRepo) GetDefaultActive(ctx context.Context, workerID uuid.UUID) (*models.DestinationAddress, error) {
	var a models.DestinationAddress
	err := r.pool.QueryRow(ctx, `
		SELECT id, worker_id, address, label, crypto_type, is_default, is_active, created_at, updated_at
		FROM destination_addresses
		WHERE worker_id = $1 AND is_default AND is_active
		LIMIT 1
	`, workerID).Scan(&a.ID, &a.WorkerID, &a.Address, &a.Label, &a.CryptoType, &a.IsDefault, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AddressRepo) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.DestinationAddress, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, worker_id, address, label, crypto_type, is_default, is_active, created_at, updated_at
		FROM destination_addresses WHERE worker_id = $1 ORDER BY created_at DESC
	`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DestinationAddress
	for rows.Next() {
		var a models.DestinationAddress
		if err := rows.Scan(&a.ID, &a.WorkerID, &a.Address, &a.Label, &a.CryptoType, &a.IsDefault, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}

// SetDefault makes addressID the worker's default and appends the SET_DEFAULT
// event the settlement lock window reads. One transaction: clear the old
// default, set the new one, log the event.
func (r *AddressRepo) SetDefault(ctx context.Context, workerID, addressID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE destination_addresses SET is_default = false, updated_at = now()
		WHERE worker_id = $1 AND is_default
	`, workerID)
	if err != nil {
		return err
	}
	result, err := tx.Exec(ctx, `
		UPDATE destination_addresses SET is_default = true, updated_at = now()
		WHERE id = $1 AND worker_id = $2 AND is_active
	`, addressID, workerID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAddressNotFound
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO address_events (id, address_id, worker_id, action)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), addressID, workerID, models.AddressEventSetDefault)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LastSetDefault returns when the address most recently became the default,
// or nil if it never has. Implements risk.AddressEvents.
func (r *AddressRepo) LastSetDefault(ctx context.Context, addressID uuid.UUID) (*time.Time, error) {
	var at time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT created_at FROM address_events
		WHERE address_id = $1 AND action = $2
		ORDER BY created_at DESC LIMIT 1
	`, addressID, models.AddressEventSetDefault).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}
