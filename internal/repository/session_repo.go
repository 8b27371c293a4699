package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockpay/backend/internal/models"
)

// SessionRepo reads work sessions. Settlement-driven status transitions live
// in the settlement repository so they share the payment transaction.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// ListApprovedByWorker returns the worker's payable sessions.
func (r *SessionRepo) ListApprovedByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.WorkSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, worker_id, status, amount_usd, payment_request_id, approved_at, created_at, updated_at
		FROM work_sessions
		WHERE worker_id = $1 AND status = $2 AND payment_request_id IS NULL
		ORDER BY approved_at ASC
	`, workerID, models.SessionStatusApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (r *SessionRepo) ListByPaymentRequest(ctx context.Context, paymentRequestID uuid.UUID) ([]*models.WorkSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, worker_id, status, amount_usd, payment_request_id, approved_at, created_at, updated_at
		FROM work_sessions WHERE payment_request_id = $1 ORDER BY approved_at ASC
	`, paymentRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

type sessionRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSessions(rows sessionRows) ([]*models.WorkSession, error) {
	var list []*models.WorkSession
	for rows.Next() {
		var s models.WorkSession
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.WorkerID, &s.Status, &s.AmountUSD, &s.PaymentRequestID, &s.ApprovedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}
