package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockpay/backend/internal/models"
)

// Repository writes the append-only payment_audit_log table. Rows are never
// updated or deleted.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, e *models.PaymentAuditEvent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO payment_audit_log (id, payment_request_id, organization_id, worker_id, action, amount_usd,
			crypto_type, crypto_rate, crypto_amount, destination_address, previous_status, new_status,
			actor_id, transaction_hash, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`, e.ID, e.PaymentRequestID, e.OrganizationID, e.WorkerID, e.Action, e.AmountUSD,
		e.CryptoType, e.CryptoRate, e.CryptoAmount, e.DestinationAddress, e.PreviousStatus, e.NewStatus,
		e.ActorID, e.TransactionHash, e.ErrorMessage).Scan(&e.CreatedAt)
}

// CreateTx inserts an audit row inside the given transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, e *models.PaymentAuditEvent) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payment_audit_log (id, payment_request_id, organization_id, worker_id, action, amount_usd,
			crypto_type, crypto_rate, crypto_amount, destination_address, previous_status, new_status,
			actor_id, transaction_hash, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`, e.ID, e.PaymentRequestID, e.OrganizationID, e.WorkerID, e.Action, e.AmountUSD,
		e.CryptoType, e.CryptoRate, e.CryptoAmount, e.DestinationAddress, e.PreviousStatus, e.NewStatus,
		e.ActorID, e.TransactionHash, e.ErrorMessage).Scan(&e.CreatedAt)
}

func (r *Repository) ListByPaymentRequest(ctx context.Context, paymentRequestID uuid.UUID) ([]*models.PaymentAuditEvent, error) {
	return r.list(ctx, `WHERE payment_request_id = $1`, paymentRequestID)
}

func (r *Repository) ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.PaymentAuditEvent, error) {
	return r.list(ctx, `WHERE organization_id = $1`, organizationID)
}

func (r *Repository) list(ctx context.Context, where string, arg any) ([]*models.PaymentAuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_request_id, organization_id, worker_id, action, amount_usd,
			crypto_type, crypto_rate, crypto_amount, destination_address, previous_status, new_status,
			actor_id, transaction_hash, error_message, created_at
		FROM payment_audit_log `+where+` ORDER BY created_at ASC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentAuditEvent
	for rows.Next() {
		var e models.PaymentAuditEvent
		if err := rows.Scan(&e.ID, &e.PaymentRequestID, &e.OrganizationID, &e.WorkerID, &e.Action, &e.AmountUSD,
			&e.CryptoType, &e.CryptoRate, &e.CryptoAmount, &e.DestinationAddress, &e.PreviousStatus, &e.NewStatus,
			&e.ActorID, &e.TransactionHash, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
