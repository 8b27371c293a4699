package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/clockpay/backend/internal/canonical"
	"github.com/clockpay/backend/internal/gateway"
	"github.com/clockpay/backend/internal/models"
	"github.com/clockpay/backend/internal/rates"
	"github.com/clockpay/backend/internal/risk"
)

// cryptoAmountScale is the decimal precision crypto amounts are computed and
// stored at. Matches the canonical record formatting.
const cryptoAmountScale = 6

// Store is the persistence surface the orchestrator needs.
type Store interface {
	LoadSessions(ctx context.Context, ids []uuid.UUID) ([]*models.WorkSession, error)
	CreateAttempt(ctx context.Context, p *models.PaymentRequest, sessionIDs []uuid.UUID, event *models.PaymentAuditEvent) error
	GetByID(ctx context.Context, id, organizationID uuid.UUID) (*models.PaymentRequest, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, transactionHash, fromStatus string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	CompleteManual(ctx context.Context, id, organizationID uuid.UUID, transactionHash string) error
	Cancel(ctx context.Context, id, organizationID uuid.UUID) error
}

// WalletSource resolves the organization's payer wallet.
type WalletSource interface {
	GetDefaultActive(ctx context.Context, organizationID uuid.UUID) (*models.Wallet, error)
}

// AddressSource resolves the worker's payout destination.
type AddressSource interface {
	GetDefaultActive(ctx context.Context, workerID uuid.UUID) (*models.DestinationAddress, error)
}

// PolicySource reads the organization's risk policy.
type PolicySource interface {
	GetByOrganization(ctx context.Context, organizationID uuid.UUID) (*models.CryptoSetting, error)
}

// TokenSource resolves issued-token configuration.
type TokenSource interface {
	Resolve(ctx context.Context, organizationID uuid.UUID, cryptoType string) (*models.TokenConfig, bool, error)
}

// Gater runs the pre-flight balance and limit checks.
type Gater interface {
	Validate(ctx context.Context, in risk.Input) error
}

// RateLog is the append-only rate history sink.
type RateLog interface {
	Record(ctx context.Context, organizationID uuid.UUID, cryptoType string, rateUSD decimal.Decimal, source string) error
}

// AuditSink records terminal state transitions. The CREATED row rides the
// creation transaction inside the Store.
type AuditSink interface {
	Create(ctx context.Context, e *models.PaymentAuditEvent) error
}

// SecretOpener decrypts the hot wallet's sealed signing secret.
type SecretOpener interface {
	Open(ciphertext string) (string, error)
}

// Sender dispatches a signed transfer on the ledger. Narrowed from
// gateway.Ledger so tests only fake what the orchestrator touches.
type Sender interface {
	SendPayment(ctx context.Context, p gateway.Payment) (string, error)
}

// Receipt is what both entry points hand back to the caller.
type Receipt struct {
	PaymentRequestID      uuid.UUID
	TransactionHash       *string
	AmountUSD             decimal.Decimal
	CryptoRate            decimal.Decimal
	CryptoAmount          decimal.Decimal
	DestinationAddress    string
	RequiresManualSigning bool
}

type Service struct {
	store     Store
	wallets   WalletSource
	addresses AddressSource
	policies  PolicySource
	tokens    TokenSource
	rates     rates.Source
	rateLog   RateLog
	gate      Gater
	sender    Sender
	vault     SecretOpener
	audits    AuditSink
	now       func() time.Time
}

func NewService(store Store, wallets WalletSource, addresses AddressSource, policies PolicySource, tokens TokenSource, rateSource rates.Source, rateLog RateLog, gate Gater, sender Sender, vault SecretOpener, audits AuditSink) *Service {
	return &Service{
		store:     store,
		wallets:   wallets,
		addresses: addresses,
		policies:  policies,
		tokens:    tokens,
		rates:     rateSource,
		rateLog:   rateLog,
		gate:      gate,
		sender:    sender,
		vault:     vault,
		audits:    audits,
		now:       time.Now,
	}
}

// attempt carries everything resolved for one settlement attempt through the
// shared pipeline.
type attempt struct {
	workerID       uuid.UUID
	organizationID uuid.UUID
	sessionIDs     []uuid.UUID
	cryptoType     string
	destination    *models.DestinationAddress
	wallet         *models.Wallet
	token          *models.TokenConfig
	amountUSD      decimal.Decimal
	cryptoRate     decimal.Decimal
	cryptoAmount   decimal.Decimal
	mode           Mode
}

// prepare runs the shared steps of both entry points: session eligibility,
// destination/token/wallet resolution, amount and rate computation, the risk
// gate, and the rate-history append. It mutates nothing.
func (s *Service) prepare(ctx context.Context, workerID, organizationID uuid.UUID, sessionIDs []uuid.UUID, cryptoType string) (*attempt, error) {
	if len(sessionIDs) == 0 {
		return nil, eligibility("no work sessions selected")
	}
	seen := make(map[uuid.UUID]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		if seen[id] {
			return nil, eligibility("duplicate work session %s", id)
		}
		seen[id] = true
	}

	sessions, err := s.store.LoadSessions(ctx, sessionIDs)
	if err != nil {
		return nil, err
	}
	if len(sessions) != len(sessionIDs) {
		return nil, eligibility("%d of %d sessions not found", len(sessionIDs)-len(sessions), len(sessionIDs))
	}
	amountUSD := decimal.Zero
	for _, sess := range sessions {
		if sess.WorkerID != workerID || sess.OrganizationID != organizationID {
			return nil, eligibility("session %s belongs to another worker or organization", sess.ID)
		}
		if sess.Status != models.SessionStatusApproved {
			return nil, eligibility("session %s is %s, not %s", sess.ID, sess.Status, models.SessionStatusApproved)
		}
		if sess.PaymentRequestID != nil {
			return nil, eligibility("session %s is already tied to payment request %s", sess.ID, *sess.PaymentRequestID)
		}
		amountUSD = amountUSD.Add(sess.AmountUSD)
	}

	destination, err := s.addresses.GetDefaultActive(ctx, workerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDestinationAddress
		}
		return nil, err
	}
	// Self-service callers may omit the crypto type; the destination
	// address's own preference is the per-flow default.
	if cryptoType == "" {
		cryptoType = destination.CryptoType
	}
	if cryptoType != models.CryptoTypeNative && cryptoType != models.CryptoTypeIssued {
		return nil, eligibility("unknown crypto type %q", cryptoType)
	}

	var token *models.TokenConfig
	if cryptoType == models.CryptoTypeIssued {
		cfg, ok, err := s.tokens.Resolve(ctx, organizationID, cryptoType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoTokenConfig
		}
		token = cfg
	}

	wallet, err := s.wallets.GetDefaultActive(ctx, organizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoWallet
		}
		return nil, err
	}

	symbol := rates.NativeSymbol
	if token != nil {
		symbol = token.CurrencyCode
	}
	rate, err := s.rates.Rate(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !rate.IsPositive() {
		return nil, rates.ErrBadRate
	}
	cryptoAmount := amountUSD.DivRound(rate, cryptoAmountScale)

	policy, err := s.policies.GetByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Validate(ctx, risk.Input{
		OrganizationID: organizationID,
		Wallet:         wallet,
		Destination:    destination,
		Policy:         policy,
		CryptoType:     cryptoType,
		Token:          token,
		AmountUSD:      amountUSD,
		CryptoAmount:   cryptoAmount,
	}); err != nil {
		return nil, err
	}

	if err := s.rateLog.Record(ctx, organizationID, cryptoType, rate, "settlement"); err != nil {
		return nil, err
	}

	return &attempt{
		workerID:       workerID,
		organizationID: organizationID,
		sessionIDs:     sessionIDs,
		cryptoType:     cryptoType,
		destination:    destination,
		wallet:         wallet,
		token:          token,
		amountUSD:      amountUSD,
		cryptoRate:     rate,
		cryptoAmount:   cryptoAmount,
		mode:           resolveMode(wallet),
	}, nil
}

// persist creates the PaymentRequest, claims the sessions and stamps the
// canonical hash, all in the store's single creation transaction.
func (s *Service) persist(ctx context.Context, a *attempt, status, withdrawalType string, actorID uuid.UUID, approvedBy *uuid.UUID) (*models.PaymentRequest, error) {
	now := s.now()
	p := &models.PaymentRequest{
		ID:                 uuid.New(),
		OrganizationID:     a.organizationID,
		WorkerID:           a.workerID,
		AmountUSD:          a.amountUSD,
		CryptoType:         a.cryptoType,
		CryptoRate:         a.cryptoRate,
		CryptoAmount:       a.cryptoAmount,
		WithdrawalType:     withdrawalType,
		Status:             status,
		DestinationAddress: a.destination.Address,
	}
	if approvedBy != nil {
		p.ApprovedBy = approvedBy
		at := now
		p.ApprovedAt = &at
	}
	if status == models.PaymentStatusProcessing {
		at := now
		p.ProcessedAt = &at
	}

	record := canonical.Build(p.ID, p.WorkerID, p.AmountUSD, p.CryptoAmount, p.CryptoRate, a.sessionIDs, p.DestinationAddress, now)
	data := record.Serialize()
	digest := record.Hash()
	p.CanonicalData = &data
	p.DataHash = &digest

	event := &models.PaymentAuditEvent{
		ID:                 uuid.New(),
		PaymentRequestID:   p.ID,
		OrganizationID:     p.OrganizationID,
		WorkerID:           p.WorkerID,
		Action:             models.AuditActionCreated,
		AmountUSD:          p.AmountUSD,
		CryptoType:         p.CryptoType,
		CryptoRate:         p.CryptoRate,
		CryptoAmount:       p.CryptoAmount,
		DestinationAddress: p.DestinationAddress,
		PreviousStatus:     "",
		NewStatus:          status,
		ActorID:            actorID,
	}
	if err := s.store.CreateAttempt(ctx, p, a.sessionIDs, event); err != nil {
		return nil, err
	}
	return p, nil
}

// dispatch decrypts the signing secret, sends the transfer and records the
// terminal state. Called exactly once per request, only after PROCESSING is
// persisted.
func (s *Service) dispatch(ctx context.Context, p *models.PaymentRequest, mode HotMode, token *models.TokenConfig, walletAddress string, actorID uuid.UUID) (*Receipt, error) {
	secret, err := s.vault.Open(mode.SecretCiphertext)
	if err != nil {
		return nil, s.fail(ctx, p, actorID, err)
	}
	payment := gateway.Payment{
		FromSecret:  secret,
		FromAddress: walletAddress,
		ToAddress:   p.DestinationAddress,
		Amount:      p.CryptoAmount,
		Memos:       []string{*p.DataHash},
	}
	if token != nil {
		payment.CurrencyCode = token.CurrencyCode
		payment.IssuerAddress = token.IssuerAddress
	}

	txHash, err := s.sender.SendPayment(ctx, payment)
	if err != nil {
		return nil, s.fail(ctx, p, actorID, err)
	}

	if err := s.store.MarkCompleted(ctx, p.ID, txHash, models.PaymentStatusProcessing); err != nil {
		return nil, err
	}
	s.auditTerminal(ctx, p, models.AuditActionCompleted, models.PaymentStatusProcessing, models.PaymentStatusCompleted, actorID, &txHash, nil)

	return &Receipt{
		PaymentRequestID:   p.ID,
		TransactionHash:    &txHash,
		AmountUSD:          p.AmountUSD,
		CryptoRate:         p.CryptoRate,
		CryptoAmount:       p.CryptoAmount,
		DestinationAddress: p.DestinationAddress,
	}, nil
}

// fail records the FAILED terminal state and reverts the sessions, then
// returns the original transfer error for the caller.
func (s *Service) fail(ctx context.Context, p *models.PaymentRequest, actorID uuid.UUID, cause error) error {
	msg := cause.Error()
	if err := s.store.MarkFailed(ctx, p.ID, msg); err != nil {
		return errors.Join(cause, err)
	}
	s.auditTerminal(ctx, p, models.AuditActionFailed, models.PaymentStatusProcessing, models.PaymentStatusFailed, actorID, nil, &msg)
	return cause
}

func (s *Service) auditTerminal(ctx context.Context, p *models.PaymentRequest, action, prev, next string, actorID uuid.UUID, txHash, errMsg *string) {
	// Audit rows are side effects; a failed append must not mask the
	// settlement outcome.
	_ = s.audits.Create(ctx, &models.PaymentAuditEvent{
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
		PreviousStatus:     prev,
		NewStatus:          next,
		ActorID:            actorID,
		TransactionHash:    txHash,
		ErrorMessage:       errMsg,
	})
}

// ReceivePayment is the worker self-service entry point: settle the given
// approved sessions right now. With a hot wallet the transfer happens before
// this returns; with a manual-signing wallet the request is left PENDING and
// the receipt says so.
func (s *Service) ReceivePayment(ctx context.Context, workerID, organizationID uuid.UUID, sessionIDs []uuid.UUID, cryptoType string) (*Receipt, error) {
	a, err := s.prepare(ctx, workerID, organizationID, sessionIDs, cryptoType)
	if err != nil {
		return nil, err
	}

	switch mode := a.mode.(type) {
	case HotMode:
		p, err := s.persist(ctx, a, models.PaymentStatusProcessing, models.WithdrawalSelfService, workerID, nil)
		if err != nil {
			return nil, err
		}
		return s.dispatch(ctx, p, mode, a.token, a.wallet.Address, workerID)
	case ManualMode:
		p, err := s.persist(ctx, a, models.PaymentStatusPending, models.WithdrawalSelfService, workerID, nil)
		if err != nil {
			return nil, err
		}
		return pendingReceipt(p), nil
	default:
		return nil, errors.New("unreachable settlement mode")
	}
}

// ApprovePayment is the admin pre-authorization: it creates a PENDING
// ADMIN_APPROVED request for the worker's sessions without touching the
// ledger. ExecutePayment releases it later. The admin flow never falls back
// to the address-level crypto type; the caller must name one.
func (s *Service) ApprovePayment(ctx context.Context, adminID, organizationID, workerID uuid.UUID, sessionIDs []uuid.UUID, cryptoType string) (*Receipt, error) {
	if cryptoType == "" {
		return nil, eligibility("crypto type is required for admin approval")
	}
	a, err := s.prepare(ctx, workerID, organizationID, sessionIDs, cryptoType)
	if err != nil {
		return nil, err
	}
	p, err := s.persist(ctx, a, models.PaymentStatusPending, models.WithdrawalAdminApproved, adminID, &adminID)
	if err != nil {
		return nil, err
	}
	return pendingReceipt(p), nil
}

// ExecutePayment releases a PENDING request: with a hot wallet it moves the
// request to PROCESSING and sends the transfer; with a manual-signing wallet
// it leaves the request PENDING for completeManualPayment. Amounts and rate
// are the ones captured at creation and are never refreshed.
func (s *Service) ExecutePayment(ctx context.Context, paymentRequestID, organizationID, adminID uuid.UUID) (*Receipt, error) {
	p, err := s.store.GetByID(ctx, paymentRequestID, organizationID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PaymentStatusPending {
		return nil, ErrNotPending
	}

	destination, err := s.addresses.GetDefaultActive(ctx, p.WorkerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDestinationAddress
		}
		return nil, err
	}
	if destination.Address != p.DestinationAddress {
		return nil, eligibility("worker's default address changed since the request was created")
	}

	var token *models.TokenConfig
	if p.CryptoType == models.CryptoTypeIssued {
		cfg, ok, err := s.tokens.Resolve(ctx, organizationID, p.CryptoType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoTokenConfig
		}
		token = cfg
	}

	wallet, err := s.wallets.GetDefaultActive(ctx, organizationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoWallet
		}
		return nil, err
	}

	policy, err := s.policies.GetByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Validate(ctx, risk.Input{
		OrganizationID: organizationID,
		Wallet:         wallet,
		Destination:    destination,
		Policy:         policy,
		CryptoType:     p.CryptoType,
		Token:          token,
		AmountUSD:      p.AmountUSD,
		CryptoAmount:   p.CryptoAmount,
	}); err != nil {
		return nil, err
	}

	switch mode := resolveMode(wallet).(type) {
	case HotMode:
		// The PENDING -> PROCESSING transition is conditional; a concurrent
		// execution of the same request loses here.
		if err := s.store.MarkProcessing(ctx, p.ID); err != nil {
			return nil, err
		}
		return s.dispatch(ctx, p, mode, token, wallet.Address, adminID)
	case ManualMode:
		return pendingReceipt(p), nil
	default:
		return nil, errors.New("unreachable settlement mode")
	}
}

// CompleteManualPayment records a client-reported transaction hash for a
// PENDING manual-signing request and completes it. Rejected when the request
// already left PENDING.
func (s *Service) CompleteManualPayment(ctx context.Context, paymentRequestID, organizationID, adminID uuid.UUID, transactionHash string) error {
	if transactionHash == "" {
		return eligibility("transaction hash is required")
	}
	p, err := s.store.GetByID(ctx, paymentRequestID, organizationID)
	if err != nil {
		return err
	}
	if p.Status != models.PaymentStatusPending {
		return ErrNotPending
	}
	if err := s.store.CompleteManual(ctx, paymentRequestID, organizationID, transactionHash); err != nil {
		return err
	}
	s.auditTerminal(ctx, p, models.AuditActionCompleted, models.PaymentStatusPending, models.PaymentStatusCompleted, adminID, &transactionHash, nil)
	return nil
}

// CancelPayment aborts a PENDING request and releases its sessions back to
// APPROVED.
func (s *Service) CancelPayment(ctx context.Context, paymentRequestID, organizationID, adminID uuid.UUID) error {
	p, err := s.store.GetByID(ctx, paymentRequestID, organizationID)
	if err != nil {
		return err
	}
	if p.Status != models.PaymentStatusPending {
		return ErrNotPending
	}
	if err := s.store.Cancel(ctx, paymentRequestID, organizationID); err != nil {
		return err
	}
	s.auditTerminal(ctx, p, models.AuditActionCancelled, models.PaymentStatusPending, models.PaymentStatusCancelled, adminID, nil, nil)
	return nil
}

func pendingReceipt(p *models.PaymentRequest) *Receipt {
	return &Receipt{
		PaymentRequestID:      p.ID,
		AmountUSD:             p.AmountUSD,
		CryptoRate:            p.CryptoRate,
		CryptoAmount:          p.CryptoAmount,
		DestinationAddress:    p.DestinationAddress,
		RequiresManualSigning: true,
	}
}
