package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/clockpay/backend/internal/models"
)

const (
	// stuckAfter is how long a request may sit in PROCESSING before the
	// sweep considers it orphaned.
	stuckAfter = 10 * time.Minute
	// giveUpAfter is how long the sweep keeps searching the ledger for an
	// orphan before declaring the transfer lost.
	giveUpAfter = 24 * time.Hour
	// SweepInterval is how often the periodic sweep job runs.
	SweepInterval = 5 * time.Minute
)

type SweepArgs struct{}

func (SweepArgs) Kind() string { return "reconcile_sweep" }

// PaymentStore is the settlement persistence surface the sweep needs.
type PaymentStore interface {
	ListStuckProcessing(ctx context.Context, olderThan time.Duration) ([]*models.PaymentRequest, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, transactionHash, fromStatus string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// WalletSource lists the org's wallets whose transaction histories are
// searched.
type WalletSource interface {
	ListByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*models.Wallet, error)
}

// LedgerSearcher looks up a submitted transaction by its memo.
type LedgerSearcher interface {
	FindTransactionByMemo(ctx context.Context, account, memo string) (txHash string, found bool, err error)
}

// AuditSink records the terminal transition the sweep decides on.
type AuditSink interface {
	Create(ctx context.Context, e *models.PaymentAuditEvent) error
}

// SweepWorker resolves payment requests orphaned in PROCESSING by a crash
// between ledger submission and the terminal status write. The canonical hash
// rides the ledger transaction as a memo, so the ledger itself answers
// whether the transfer went out.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	store   PaymentStore
	wallets WalletSource
	ledger  LedgerSearcher
	audits  AuditSink
	logger  *slog.Logger
	now     func() time.Time
}

func NewSweepWorker(store PaymentStore, wallets WalletSource, ledger LedgerSearcher, audits AuditSink, logger *slog.Logger) *SweepWorker {
	return &SweepWorker{
		store:   store,
		wallets: wallets,
		ledger:  ledger,
		audits:  audits,
		logger:  logger,
		now:     time.Now,
	}
}

func (w *SweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	stuck, err := w.store.ListStuckProcessing(ctx, stuckAfter)
	if err != nil {
		return fmt.Errorf("list stuck payments: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}
	w.logger.Info("reconcile sweep", "stuck", len(stuck))

	for _, p := range stuck {
		if err := w.resolve(ctx, p); err != nil {
			// One unresolvable request must not starve the rest of the
			// sweep; river retries the whole job anyway.
			w.logger.Error("reconcile payment", "payment_request_id", p.ID, "error", err)
		}
	}
	return nil
}

func (w *SweepWorker) resolve(ctx context.Context, p *models.PaymentRequest) error {
	if p.DataHash == nil || *p.DataHash == "" {
		return w.fail(ctx, p, "no canonical hash to reconcile against")
	}

	// Every org wallet is a candidate payer: the default may have rotated
	// since the transfer was dispatched.
	candidates, err := w.wallets.ListByOrganization(ctx, p.OrganizationID)
	if err != nil {
		return fmt.Errorf("list wallets for org %s: %w", p.OrganizationID, err)
	}

	var (
		txHash string
		found  bool
	)
	for _, wallet := range candidates {
		txHash, found, err = w.ledger.FindTransactionByMemo(ctx, wallet.Address, *p.DataHash)
		if err != nil {
			return fmt.Errorf("search ledger: %w", err)
		}
		if found {
			break
		}
	}

	if found {
		if err := w.store.MarkCompleted(ctx, p.ID, txHash, models.PaymentStatusProcessing); err != nil {
			return err
		}
		w.logger.Info("reconciled orphaned payment as completed",
			"payment_request_id", p.ID, "transaction_hash", txHash)
		w.audit(ctx, p, models.AuditActionCompleted, models.PaymentStatusCompleted, &txHash, nil)
		return nil
	}

	// Not on the ledger. Keep waiting inside the grace window; validation
	// on the ledger side can lag the sweep.
	if p.ProcessedAt != nil && w.now().Sub(*p.ProcessedAt) < giveUpAfter {
		return nil
	}
	return w.fail(ctx, p, "transfer not found on ledger after reconciliation window")
}

func (w *SweepWorker) fail(ctx context.Context, p *models.PaymentRequest, reason string) error {
	if err := w.store.MarkFailed(ctx, p.ID, reason); err != nil {
		return err
	}
	w.logger.Warn("reconciled orphaned payment as failed", "payment_request_id", p.ID, "reason", reason)
	w.audit(ctx, p, models.AuditActionFailed, models.PaymentStatusFailed, nil, &reason)
	return nil
}

func (w *SweepWorker) audit(ctx context.Context, p *models.PaymentRequest, action, next string, txHash, errMsg *string) {
	if err := w.audits.Create(ctx, &models.PaymentAuditEvent{
		ID:                 uuid.New(),
		PaymentRequestID:   p.ID,
		OrganizationID:     p.OrganizationID,
		WorkerID:           p.WorkerID,
		Action:             action,
		AmountUSD:          p.AmountUSD,
		CryptoType:         p.CryptoType,
		CryptoRate:         p.CryptoRate,
		CryptoAmount:       p.CryptoAmount,
		DestinationAddress: p.DestinationAddress,
		PreviousStatus:     models.PaymentStatusProcessing,
		NewStatus:          next,
		ActorID:            uuid.Nil,
		TransactionHash:    txHash,
		ErrorMessage:       errMsg,
	}); err != nil {
		w.logger.Error("reconcile audit append", "payment_request_id", p.ID, "error", err)
	}
}
