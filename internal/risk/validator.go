package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clockpay/backend/internal/gateway"
	"github.com/clockpay/backend/internal/models"
)

// Ledger reserves, in native units. The base reserve is held back for account
// existence; the fee reserve must remain on top of issued-currency transfers.
var (
	nativeReserve = decimal.NewFromInt(10)
	feeReserve    = decimal.NewFromInt(1)
)

// PaymentStats counts the organization's settlement activity for the current
// day. Both cover requests in COMPLETED or PROCESSING with processed_at today.
type PaymentStats interface {
	CountProcessedToday(ctx context.Context, organizationID uuid.UUID) (int, error)
	SumProcessedTodayUSD(ctx context.Context, organizationID uuid.UUID) (decimal.Decimal, error)
}

// AddressEvents reads the destination address change history.
type AddressEvents interface {
	LastSetDefault(ctx context.Context, addressID uuid.UUID) (*time.Time, error)
}

// Input is one settlement attempt to be gated. Token is nil for native
// transfers.
type Input struct {
	OrganizationID uuid.UUID
	Wallet         *models.Wallet
	Destination    *models.DestinationAddress
	Policy         *models.CryptoSetting
	CryptoType     string
	Token          *models.TokenConfig
	AmountUSD      decimal.Decimal
	CryptoAmount   decimal.Decimal
}

// Validator runs the pre-flight checks, in order, before any ledger call with
// side effects. The first failure aborts the whole attempt.
type Validator struct {
	ledger gateway.Ledger
	stats  PaymentStats
	events AddressEvents
	now    func() time.Time
}

func NewValidator(ledger gateway.Ledger, stats PaymentStats, events AddressEvents) *Validator {
	return &Validator{ledger: ledger, stats: stats, events: events, now: time.Now}
}

// Validate gates a settlement attempt. Check order: destination validity (and
// trustline for issued transfers), daily count limit, daily amount limit,
// new-address lock window, payer solvency.
func (v *Validator) Validate(ctx context.Context, in Input) error {
	if err := v.checkDestination(ctx, in); err != nil {
		return err
	}
	if err := v.checkDailyCount(ctx, in); err != nil {
		return err
	}
	if err := v.checkDailyAmount(ctx, in); err != nil {
		return err
	}
	if err := v.checkAddressLock(ctx, in); err != nil {
		return err
	}
	return v.checkSolvency(ctx, in)
}

func (v *Validator) checkDestination(ctx context.Context, in Input) error {
	if err := v.ledger.ValidateDestination(ctx, in.Destination.Address); err != nil {
		return err
	}
	if in.CryptoType == models.CryptoTypeIssued {
		return v.ledger.ValidateTrustline(ctx, in.Destination.Address, in.Token.IssuerAddress, in.Token.CurrencyCode, in.CryptoAmount)
	}
	return nil
}

func (v *Validator) checkDailyCount(ctx context.Context, in Input) error {
	if in.Policy == nil || in.Policy.DailyPaymentLimit <= 0 {
		return nil
	}
	count, err := v.stats.CountProcessedToday(ctx, in.OrganizationID)
	if err != nil {
		return err
	}
	if count >= in.Policy.DailyPaymentLimit {
		return &CountLimitError{Limit: in.Policy.DailyPaymentLimit, Count: count}
	}
	return nil
}

func (v *Validator) checkDailyAmount(ctx context.Context, in Input) error {
	if in.Policy == nil || in.Policy.DailyAmountLimitUSD == nil {
		return nil
	}
	spent, err := v.stats.SumProcessedTodayUSD(ctx, in.OrganizationID)
	if err != nil {
		return err
	}
	if spent.Add(in.AmountUSD).GreaterThan(*in.Policy.DailyAmountLimitUSD) {
		return &AmountLimitError{Limit: *in.Policy.DailyAmountLimitUSD, Spent: spent, Requested: in.AmountUSD}
	}
	return nil
}

func (v *Validator) checkAddressLock(ctx context.Context, in Input) error {
	if in.Policy == nil || in.Policy.NewAddressLockHours <= 0 {
		return nil
	}
	changedAt, err := v.events.LastSetDefault(ctx, in.Destination.ID)
	if err != nil {
		return err
	}
	if changedAt == nil {
		return nil
	}
	lock := time.Duration(in.Policy.NewAddressLockHours) * time.Hour
	elapsed := v.now().Sub(*changedAt)
	if elapsed < lock {
		return &AddressLockError{Remaining: lock - elapsed}
	}
	return nil
}

func (v *Validator) checkSolvency(ctx context.Context, in Input) error {
	balances, err := v.ledger.AccountBalance(ctx, in.Wallet.Address)
	if err != nil {
		return err
	}
	if in.CryptoType == models.CryptoTypeIssued {
		held := balances.IssuedBalance(in.Token.CurrencyCode, in.Token.IssuerAddress)
		if held.LessThan(in.CryptoAmount) {
			return &InsufficientBalanceError{Currency: in.Token.CurrencyCode, Required: in.CryptoAmount, Available: held}
		}
		// The network fee is paid in the native currency regardless.
		if balances.Native.LessThan(feeReserve) {
			return &InsufficientBalanceError{Currency: "XRP", Required: feeReserve, Available: balances.Native}
		}
		return nil
	}
	available := balances.Native.Sub(nativeReserve)
	if available.LessThan(in.CryptoAmount) {
		return &InsufficientBalanceError{Currency: "XRP", Required: in.CryptoAmount, Available: available}
	}
	return nil
}
