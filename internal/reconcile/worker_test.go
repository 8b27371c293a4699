package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clockpay/backend/internal/models"
)

type mockStore struct {
	stuck     []*models.PaymentRequest
	completed map[uuid.UUID]string
	failed    map[uuid.UUID]string
}

func newMockStore(stuck ...*models.PaymentRequest) *mockStore {
	return &mockStore{
		stuck:     stuck,
		completed: make(map[uuid.UUID]string),
		failed:    make(map[uuid.UUID]string),
	}
}

func (m *mockStore) ListStuckProcessing(context.Context, time.Duration) ([]*models.PaymentRequest, error) {
	return m.stuck, nil
}

func (m *mockStore) MarkCompleted(_ context.Context, id uuid.UUID, txHash, _ string) error {
	m.completed[id] = txHash
	return nil
}

func (m *mockStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.failed[id] = reason
	return nil
}

type mockWallets struct {
	wallets []*models.Wallet
}

func (m *mockWallets) ListByOrganization(context.Context, uuid.UUID) ([]*models.Wallet, error) {
	return m.wallets, nil
}

type mockLedger struct {
	byMemo map[string]string
	// onAccount restricts matches to one payer account when set.
	onAccount string
	err       error
}

func (m *mockLedger) FindTransactionByMemo(_ context.Context, account, memo string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	if m.onAccount != "" && account != m.onAccount {
		return "", false, nil
	}
	hash, ok := m.byMemo[memo]
	return hash, ok, nil
}

type mockAudits struct {
	events []*models.PaymentAuditEvent
}

func (m *mockAudits) Create(_ context.Context, e *models.PaymentAuditEvent) error {
	m.events = append(m.events, e)
	return nil
}

func stuckRequest(age time.Duration) *models.PaymentRequest {
	hash := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	at := time.Now().Add(-age)
	return &models.PaymentRequest{
		ID:                 uuid.New(),
		OrganizationID:     uuid.New(),
		WorkerID:           uuid.New(),
		AmountUSD:          decimal.RequireFromString("50"),
		CryptoType:         models.CryptoTypeNative,
		CryptoRate:         decimal.RequireFromString("0.5"),
		CryptoAmount:       decimal.RequireFromString("100"),
		Status:             models.PaymentStatusProcessing,
		DestinationAddress: "rWorkerAddr11111111111111111111",
		DataHash:           &hash,
		ProcessedAt:        &at,
	}
}

func newWorker(store *mockStore, ledger *mockLedger, audits *mockAudits) *SweepWorker {
	wallets := &mockWallets{wallets: []*models.Wallet{{Address: "rPayer1111111111111111111111111"}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSweepWorker(store, wallets, ledger, audits, logger)
}

func TestSweepCompletesWhenTransferIsOnLedger(t *testing.T) {
	p := stuckRequest(time.Hour)
	store := newMockStore(p)
	ledger := &mockLedger{byMemo: map[string]string{*p.DataHash: "AA11BB22"}}
	audits := &mockAudits{}

	if err := newWorker(store, ledger, audits).Work(context.Background(), nil); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if store.completed[p.ID] != "AA11BB22" {
		t.Errorf("completed hash = %q", store.completed[p.ID])
	}
	if len(store.failed) != 0 {
		t.Error("request should not be failed")
	}
	if len(audits.events) != 1 || audits.events[0].Action != models.AuditActionCompleted {
		t.Errorf("audit events = %+v", audits.events)
	}
}

func TestSweepSearchesAllOrgWallets(t *testing.T) {
	// The transfer went out from a wallet that has since been rotated out of
	// the default slot; the sweep must still find it.
	p := stuckRequest(time.Hour)
	store := newMockStore(p)
	ledger := &mockLedger{
		byMemo:    map[string]string{*p.DataHash: "CC33DD44"},
		onAccount: "rOldPayer1111111111111111111111",
	}
	audits := &mockAudits{}
	wallets := &mockWallets{wallets: []*models.Wallet{
		{Address: "rNewPayer1111111111111111111111"},
		{Address: "rOldPayer1111111111111111111111"},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := NewSweepWorker(store, wallets, ledger, audits, logger).Work(context.Background(), nil); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if store.completed[p.ID] != "CC33DD44" {
		t.Errorf("completed hash = %q", store.completed[p.ID])
	}
	if len(store.failed) != 0 {
		t.Error("request should not be failed")
	}
}

func TestSweepWaitsInsideGraceWindow(t *testing.T) {
	p := stuckRequest(time.Hour)
	store := newMockStore(p)
	ledger := &mockLedger{byMemo: map[string]string{}}
	audits := &mockAudits{}

	if err := newWorker(store, ledger, audits).Work(context.Background(), nil); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(store.completed) != 0 || len(store.failed) != 0 {
		t.Error("fresh orphan must stay PROCESSING until the window elapses")
	}
}

func TestSweepFailsAfterGraceWindow(t *testing.T) {
	p := stuckRequest(25 * time.Hour)
	store := newMockStore(p)
	ledger := &mockLedger{byMemo: map[string]string{}}
	audits := &mockAudits{}

	if err := newWorker(store, ledger, audits).Work(context.Background(), nil); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if _, ok := store.failed[p.ID]; !ok {
		t.Error("expired orphan not marked failed")
	}
	if len(audits.events) != 1 || audits.events[0].Action != models.AuditActionFailed {
		t.Errorf("audit events = %+v", audits.events)
	}
}

func TestSweepSkipsRequestWithoutHash(t *testing.T) {
	p := stuckRequest(time.Hour)
	p.DataHash = nil
	store := newMockStore(p)
	audits := &mockAudits{}

	if err := newWorker(store, &mockLedger{}, audits).Work(context.Background(), nil); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if _, ok := store.failed[p.ID]; !ok {
		t.Error("hashless orphan cannot be reconciled and must fail")
	}
}

func TestSweepLedgerErrorLeavesRequestAlone(t *testing.T) {
	p := stuckRequest(25 * time.Hour)
	store := newMockStore(p)
	ledger := &mockLedger{err: errors.New("rippled unreachable")}

	if err := newWorker(store, ledger, &mockAudits{}).Work(context.Background(), nil); err != nil {
		t.Fatalf("Work should swallow per-request errors: %v", err)
	}
	if len(store.completed) != 0 || len(store.failed) != 0 {
		t.Error("unreachable ledger must not change request state")
	}
}
