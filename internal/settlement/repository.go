package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clockpay/backend/internal/audit"
	"github.com/clockpay/backend/internal/models"
)

type Repository struct {
	pool   *pgxpool.Pool
	audits *audit.Repository
}

func NewRepository(pool *pgxpool.Pool, audits *audit.Repository) *Repository {
	return &Repository{pool: pool, audits: audits}
}

// LoadSessions returns the work sessions for the given ids. Missing ids
// simply shorten the result; the service compares lengths.
func (r *Repository) LoadSessions(ctx context.Context, ids []uuid.UUID) ([]*models.WorkSession, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, worker_id, status, amount_usd, payment_request_id, approved_at, created_at, updated_at
		FROM work_sessions WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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

// CreateAttempt persists a settlement attempt in one transaction: insert the
// payment request, claim the work sessions, stamp the canonical hash and
// write the CREATED audit row. The commit is the sole serialization point.
//
// The session claim is a conditional UPDATE: a session already claimed
// elsewhere, or no longer APPROVED, does not match, the affected count comes
// up short and the whole transaction rolls back. A prior read is never
// trusted.
func (r *Repository) CreateAttempt(ctx context.Context, p *models.PaymentRequest, sessionIDs []uuid.UUID, event *models.PaymentAuditEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO payment_requests (id, organization_id, worker_id, amount_usd, crypto_type, crypto_rate, crypto_amount,
			withdrawal_type, status, destination_address, data_hash, canonical_data, approved_by, approved_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`, p.ID, p.OrganizationID, p.WorkerID, p.AmountUSD, p.CryptoType, p.CryptoRate, p.CryptoAmount,
		p.WithdrawalType, p.Status, p.DestinationAddress, p.DataHash, p.CanonicalData, p.ApprovedBy, p.ApprovedAt, p.ProcessedAt).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return err
	}

	result, err := tx.Exec(ctx, `
		UPDATE work_sessions
		SET status = $1, payment_request_id = $2, updated_at = now()
		WHERE id = ANY($3) AND worker_id = $4 AND status = $5 AND payment_request_id IS NULL
	`, models.SessionStatusRequested, p.ID, sessionIDs, p.WorkerID, models.SessionStatusApproved)
	if err != nil {
		return err
	}
	if int(result.RowsAffected()) != len(sessionIDs) {
		return eligibility("%d of %d sessions could not be claimed", len(sessionIDs)-int(result.RowsAffected()), len(sessionIDs))
	}

	if err := r.audits.CreateTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetByID(ctx context.Context, id, organizationID uuid.UUID) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, worker_id, amount_usd, crypto_type, crypto_rate, crypto_amount,
			withdrawal_type, status, destination_address, transaction_hash, data_hash, canonical_data,
			failure_reason, approved_by, approved_at, processed_at, created_at, updated_at
		FROM payment_requests WHERE id = $1 AND organization_id = $2
	`, id, organizationID).Scan(&p.ID, &p.OrganizationID, &p.WorkerID, &p.AmountUSD, &p.CryptoType, &p.CryptoRate, &p.CryptoAmount,
		&p.WithdrawalType, &p.Status, &p.DestinationAddress, &p.TransactionHash, &p.DataHash, &p.CanonicalData,
		&p.FailureReason, &p.ApprovedBy, &p.ApprovedAt, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkProcessing moves a PENDING request to PROCESSING and stamps
// processed_at, guarding against a second concurrent execution.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE payment_requests SET status = $1, processed_at = now(), updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.PaymentStatusProcessing, id, models.PaymentStatusPending)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkCompleted finishes the request and moves its sessions to PAID, in one
// transaction.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, transactionHash string, fromStatus string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	result, err := tx.Exec(ctx, `
		UPDATE payment_requests SET status = $1, transaction_hash = $2, processed_at = now(), updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.PaymentStatusCompleted, transactionHash, id, fromStatus)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotPending
	}
	_, err = tx.Exec(ctx, `
		UPDATE work_sessions SET status = $1, updated_at = now() WHERE payment_request_id = $2
	`, models.SessionStatusPaid, id)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkFailed finishes the request as FAILED and reverts its sessions to
// APPROVED with the link cleared, so a later attempt can claim them again.
// The failed request row stays behind as a permanent audit record.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	_, err = tx.Exec(ctx, `
		UPDATE payment_requests SET status = $1, failure_reason = $2, processed_at = now(), updated_at = now()
		WHERE id = $3
	`, models.PaymentStatusFailed, reason, id)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE work_sessions SET status = $1, payment_request_id = NULL, updated_at = now()
		WHERE payment_request_id = $2
	`, models.SessionStatusApproved, id)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CompleteManual accepts the client-reported transaction hash for a PENDING
// request and atomically completes it. The status precondition rejects
// double-completion.
func (r *Repository) CompleteManual(ctx context.Context, id, organizationID uuid.UUID, transactionHash string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	result, err := tx.Exec(ctx, `
		UPDATE payment_requests SET status = $1, transaction_hash = $2, processed_at = now(), updated_at = now()
		WHERE id = $3 AND organization_id = $4 AND status = $5
	`, models.PaymentStatusCompleted, transactionHash, id, organizationID, models.PaymentStatusPending)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotPending
	}
	_, err = tx.Exec(ctx, `
		UPDATE work_sessions SET status = $1, updated_at = now() WHERE payment_request_id = $2
	`, models.SessionStatusPaid, id)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Cancel aborts a PENDING request and releases its sessions.
func (r *Repository) Cancel(ctx context.Context, id, organizationID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	result, err := tx.Exec(ctx, `
		UPDATE payment_requests SET status = $1, updated_at = now()
		WHERE id = $2 AND organization_id = $3 AND status = $4
	`, models.PaymentStatusCancelled, id, organizationID, models.PaymentStatusPending)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotPending
	}
	_, err = tx.Exec(ctx, `
		UPDATE work_sessions SET status = $1, payment_request_id = NULL, updated_at = now()
		WHERE payment_request_id = $2
	`, models.SessionStatusApproved, id)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CountProcessedToday implements risk.PaymentStats.
func (r *Repository) CountProcessedToday(ctx context.Context, organizationID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM payment_requests
		WHERE organization_id = $1 AND status = ANY($2)
			AND processed_at >= date_trunc('day', now())
	`, organizationID, []string{models.PaymentStatusCompleted, models.PaymentStatusProcessing}).Scan(&count)
	return count, err
}

// SumProcessedTodayUSD implements risk.PaymentStats.
func (r *Repository) SumProcessedTodayUSD(ctx context.Context, organizationID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(amount_usd), 0) FROM payment_requests
		WHERE organization_id = $1 AND status = ANY($2)
			AND processed_at >= date_trunc('day', now())
	`, organizationID, []string{models.PaymentStatusCompleted, models.PaymentStatusProcessing}).Scan(&sum)
	return sum, err
}

func (r *Repository) ListByOrganization(ctx context.Context, organizationID uuid.UUID, status string) ([]*models.PaymentRequest, error) {
	query := `
		SELECT id, organization_id, worker_id, amount_usd, crypto_type, crypto_rate, crypto_amount,
			withdrawal_type, status, destination_address, transaction_hash, data_hash, canonical_data,
			failure_reason, approved_by, approved_at, processed_at, created_at, updated_at
		FROM payment_requests WHERE organization_id = $1`
	args := []any{organizationID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentRequest
	for rows.Next() {
		var p models.PaymentRequest
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.WorkerID, &p.AmountUSD, &p.CryptoType, &p.CryptoRate, &p.CryptoAmount,
			&p.WithdrawalType, &p.Status, &p.DestinationAddress, &p.TransactionHash, &p.DataHash, &p.CanonicalData,
			&p.FailureReason, &p.ApprovedBy, &p.ApprovedAt, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

// ListStuckProcessing returns PROCESSING requests whose dispatch started
// before the cutoff. Input to the reconciliation sweep.
func (r *Repository) ListStuckProcessing(ctx context.Context, olderThan time.Duration) ([]*models.PaymentRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, organization_id, worker_id, amount_usd, crypto_type, crypto_rate, crypto_amount,
			withdrawal_type, status, destination_address, transaction_hash, data_hash, canonical_data,
			failure_reason, approved_by, approved_at, processed_at, created_at, updated_at
		FROM payment_requests
		WHERE status = $1 AND processed_at < now() - make_interval(secs => $2)
	`, models.PaymentStatusProcessing, olderThan.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentRequest
	for rows.Next() {
		var p models.PaymentRequest
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.WorkerID, &p.AmountUSD, &p.CryptoType, &p.CryptoRate, &p.CryptoAmount,
			&p.WithdrawalType, &p.Status, &p.DestinationAddress, &p.TransactionHash, &p.DataHash, &p.CanonicalData,
			&p.FailureReason, &p.ApprovedBy, &p.ApprovedAt, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
