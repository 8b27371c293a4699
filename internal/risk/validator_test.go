package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clockpay/backend/internal/gateway"
	"github.com/clockpay/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks. These let us test the real validator logic without a
// database or a ledger node.
// ---------------------------------------------------------------------------

type mockLedger struct {
	balances       *gateway.Balances
	destinationErr error
	trustlineErr   error
	balanceCalls   int
	trustlineCalls int
}

func (m *mockLedger) AccountBalance(context.Context, string) (*gateway.Balances, error) {
	m.balanceCalls++
	return m.balances, nil
}

func (m *mockLedger) ValidateDestination(context.Context, string) error {
	return m.destinationErr
}

func (m *mockLedger) ValidateTrustline(context.Context, string, string, string, decimal.Decimal) error {
	m.trustlineCalls++
	return m.trustlineErr
}

func (m *mockLedger) SendPayment(context.Context, gateway.Payment) (string, error) {
	return "", errors.New("validator must never send")
}

func (m *mockLedger) FindTransactionByMemo(context.Context, string, string) (string, bool, error) {
	return "", false, nil
}

type mockStats struct {
	count int
	sum   decimal.Decimal
}

func (m *mockStats) CountProcessedToday(context.Context, uuid.UUID) (int, error) { return m.count, nil }
func (m *mockStats) SumProcessedTodayUSD(context.Context, uuid.UUID) (decimal.Decimal, error) {
	return m.sum, nil
}

type mockEvents struct {
	lastSetDefault *time.Time
}

func (m *mockEvents) LastSetDefault(context.Context, uuid.UUID) (*time.Time, error) {
	return m.lastSetDefault, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nativeInput(amountUSD, cryptoAmount string) Input {
	return Input{
		OrganizationID: uuid.New(),
		Wallet:         &models.Wallet{ID: uuid.New(), Address: "rPayer"},
		Destination:    &models.DestinationAddress{ID: uuid.New(), Address: "rDest"},
		Policy:         &models.CryptoSetting{},
		CryptoType:     models.CryptoTypeNative,
		AmountUSD:      dec(amountUSD),
		CryptoAmount:   dec(cryptoAmount),
	}
}

func solventLedger() *mockLedger {
	return &mockLedger{balances: &gateway.Balances{Native: dec("1000")}}
}

func validator(l *mockLedger, s *mockStats, e *mockEvents, now time.Time) *Validator {
	v := NewValidator(l, s, e)
	v.now = func() time.Time { return now }
	return v
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestValidatePassesWhenSolvent(t *testing.T) {
	v := validator(solventLedger(), &mockStats{}, &mockEvents{}, time.Now())
	if err := v.Validate(context.Background(), nativeInput("120.00", "200")); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestInvalidDestinationFailsFirst(t *testing.T) {
	l := solventLedger()
	l.destinationErr = gateway.ErrInvalidDestination
	v := validator(l, &mockStats{count: 999}, &mockEvents{}, time.Now())
	err := v.Validate(context.Background(), nativeInput("10", "20"))
	if !errors.Is(err, gateway.ErrInvalidDestination) {
		t.Fatalf("want ErrInvalidDestination, got %v", err)
	}
	if l.balanceCalls != 0 {
		t.Error("balance queried after destination check failed")
	}
}

func TestTrustlineCheckedForIssuedOnly(t *testing.T) {
	l := &mockLedger{balances: &gateway.Balances{
		Native: dec("5"),
		Issued: map[string]decimal.Decimal{"USD/rIssuer": dec("500")},
	}}
	in := nativeInput("100", "100")
	in.CryptoType = models.CryptoTypeIssued
	in.Token = &models.TokenConfig{IssuerAddress: "rIssuer", CurrencyCode: "USD"}

	v := validator(l, &mockStats{}, &mockEvents{}, time.Now())
	if err := v.Validate(context.Background(), in); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if l.trustlineCalls != 1 {
		t.Errorf("trustline calls: got %d, want 1", l.trustlineCalls)
	}

	l.trustlineCalls = 0
	native := nativeInput("100", "100")
	native.CryptoType = models.CryptoTypeNative
	v2 := validator(solventLedger(), &mockStats{}, &mockEvents{}, time.Now())
	if err := v2.Validate(context.Background(), native); err != nil {
		t.Fatalf("Validate native: %v", err)
	}
	if l.trustlineCalls != 0 {
		t.Error("trustline checked for a native transfer")
	}
}

func TestTrustlineMissingRejectsBeforeSolvency(t *testing.T) {
	l := solventLedger()
	l.trustlineErr = gateway.ErrTrustlineMissing
	in := nativeInput("100", "100")
	in.CryptoType = models.CryptoTypeIssued
	in.Token = &models.TokenConfig{IssuerAddress: "rIssuer", CurrencyCode: "USD"}

	v := validator(l, &mockStats{}, &mockEvents{}, time.Now())
	err := v.Validate(context.Background(), in)
	if !errors.Is(err, gateway.ErrTrustlineMissing) {
		t.Fatalf("want ErrTrustlineMissing, got %v", err)
	}
	if l.balanceCalls != 0 {
		t.Error("balance queried after trustline check failed")
	}
}

func TestDailyCountLimit(t *testing.T) {
	in := nativeInput("10", "20")
	in.Policy = &models.CryptoSetting{DailyPaymentLimit: 3}

	v := validator(solventLedger(), &mockStats{count: 3}, &mockEvents{}, time.Now())
	err := v.Validate(context.Background(), in)
	var cle *CountLimitError
	if !errors.As(err, &cle) {
		t.Fatalf("want CountLimitError, got %v", err)
	}
	if cle.Limit != 3 || cle.Count != 3 {
		t.Errorf("limit error detail: %+v", cle)
	}

	// One slot still free.
	v = validator(solventLedger(), &mockStats{count: 2}, &mockEvents{}, time.Now())
	if err := v.Validate(context.Background(), in); err != nil {
		t.Errorf("under limit: %v", err)
	}
}

func TestDailyCountZeroMeansUnlimited(t *testing.T) {
	in := nativeInput("10", "20")
	in.Policy = &models.CryptoSetting{DailyPaymentLimit: 0}
	v := validator(solventLedger(), &mockStats{count: 10000}, &mockEvents{}, time.Now())
	if err := v.Validate(context.Background(), in); err != nil {
		t.Errorf("zero limit must be unlimited: %v", err)
	}
}

func TestDailyAmountLimit(t *testing.T) {
	limit := dec("100")
	in := nativeInput("120.00", "200")
	in.Policy = &models.CryptoSetting{DailyAmountLimitUSD: &limit}

	// Zero prior spend, $120 candidate against a $100 cap.
	v := validator(solventLedger(), &mockStats{sum: decimal.Zero}, &mockEvents{}, time.Now())
	err := v.Validate(context.Background(), in)
	var ale *AmountLimitError
	if !errors.As(err, &ale) {
		t.Fatalf("want AmountLimitError, got %v", err)
	}
	if !ale.Requested.Equal(dec("120.00")) || !ale.Limit.Equal(limit) {
		t.Errorf("limit error detail: %+v", ale)
	}
}

func TestDailyAmountExactlyAtLimitPasses(t *testing.T) {
	limit := dec("100")
	in := nativeInput("40", "80")
	in.Policy = &models.CryptoSetting{DailyAmountLimitUSD: &limit}
	v := validator(solventLedger(), &mockStats{sum: dec("60")}, &mockEvents{}, time.Now())
	if err := v.Validate(context.Background(), in); err != nil {
		t.Errorf("60 + 40 == 100 must pass: %v", err)
	}
}

func TestNewAddressLockWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	changed := now.Add(-2 * time.Hour)
	in := nativeInput("10", "20")
	in.Policy = &models.CryptoSetting{NewAddressLockHours: 24}

	v := validator(solventLedger(), &mockStats{}, &mockEvents{lastSetDefault: &changed}, now)
	err := v.Validate(context.Background(), in)
	var lock *AddressLockError
	if !errors.As(err, &lock) {
		t.Fatalf("want AddressLockError, got %v", err)
	}
	if lock.Remaining != 22*time.Hour {
		t.Errorf("remaining: got %s, want 22h", lock.Remaining)
	}
}

func TestAddressLockExpired(t *testing.T) {
	now := time.Now()
	changed := now.Add(-30 * time.Hour)
	in := nativeInput("10", "20")
	in.Policy = &models.CryptoSetting{NewAddressLockHours: 24}
	v := validator(solventLedger(), &mockStats{}, &mockEvents{lastSetDefault: &changed}, now)
	if err := v.Validate(context.Background(), in); err != nil {
		t.Errorf("expired lock must pass: %v", err)
	}
}

func TestNativeSolvencyHonorsReserve(t *testing.T) {
	// 105 on ledger minus the 10 reserve leaves 95 spendable.
	l := &mockLedger{balances: &gateway.Balances{Native: dec("105")}}
	in := nativeInput("60", "100")
	v := validator(l, &mockStats{}, &mockEvents{}, time.Now())
	err := v.Validate(context.Background(), in)
	var ibe *InsufficientBalanceError
	if !errors.As(err, &ibe) {
		t.Fatalf("want InsufficientBalanceError, got %v", err)
	}
	if ibe.Currency != "XRP" || !ibe.Required.Equal(dec("100")) || !ibe.Available.Equal(dec("95")) {
		t.Errorf("balance error detail: %+v", ibe)
	}
}

func TestIssuedSolvencyNeedsNativeFeeReserve(t *testing.T) {
	l := &mockLedger{balances: &gateway.Balances{
		Native: dec("0.5"),
		Issued: map[string]decimal.Decimal{"USD/rIssuer": dec("500")},
	}}
	in := nativeInput("100", "100")
	in.CryptoType = models.CryptoTypeIssued
	in.Token = &models.TokenConfig{IssuerAddress: "rIssuer", CurrencyCode: "USD"}

	v := validator(l, &mockStats{}, &mockEvents{}, time.Now())
	err := v.Validate(context.Background(), in)
	var ibe *InsufficientBalanceError
	if !errors.As(err, &ibe) {
		t.Fatalf("want InsufficientBalanceError, got %v", err)
	}
	if ibe.Currency != "XRP" {
		t.Errorf("fee reserve failure must name the native currency, got %q", ibe.Currency)
	}
}

func TestIssuedSolvencyInsufficientToken(t *testing.T) {
	l := &mockLedger{balances: &gateway.Balances{
		Native: dec("50"),
		Issued: map[string]decimal.Decimal{"USD/rIssuer": dec("30")},
	}}
	in := nativeInput("100", "100")
	in.CryptoType = models.CryptoTypeIssued
	in.Token = &models.TokenConfig{IssuerAddress: "rIssuer", CurrencyCode: "USD"}

	v := validator(l, &mockStats{}, &mockEvents{}, time.Now())
	err := v.Validate(context.Background(), in)
	var ibe *InsufficientBalanceError
	if !errors.As(err, &ibe) {
		t.Fatalf("want InsufficientBalanceError, got %v", err)
	}
	if ibe.Currency != "USD" || !ibe.Available.Equal(dec("30")) {
		t.Errorf("balance error detail: %+v", ibe)
	}
}
