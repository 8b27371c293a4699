package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidDestination is returned when an address fails syntactic or
// on-ledger validation.
var ErrInvalidDestination = errors.New("invalid destination address")

// ErrTrustlineMissing is returned when a destination cannot hold the issued
// token (no trust line, or the line's limit is below the transfer amount).
var ErrTrustlineMissing = errors.New("destination has no sufficient trustline")

// PaymentError reports a transfer rejected or failed by the ledger. Code is
// the ledger engine result (e.g. "tecUNFUNDED_PAYMENT") when known.
type PaymentError struct {
	Code    string
	Message string
}

func (e *PaymentError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment failed: %s (%s)", e.Message, e.Code)
	}
	return "payment failed: " + e.Message
}

// Balances holds an account's spendable funds: the native currency plus each
// issued currency keyed by "CODE/issuer".
type Balances struct {
	Native decimal.Decimal
	Issued map[string]decimal.Decimal
}

// IssuedBalance returns the balance for a currency/issuer pair, zero if the
// account holds no such line.
func (b *Balances) IssuedBalance(currencyCode, issuer string) decimal.Decimal {
	if b.Issued == nil {
		return decimal.Zero
	}
	return b.Issued[currencyCode+"/"+issuer]
}

// Payment describes one signed transfer. CurrencyCode and IssuerAddress are
// empty for native transfers. Memos ride along on the ledger transaction and
// carry the canonical data hash for later reconciliation.
type Payment struct {
	FromSecret    string
	FromAddress   string
	ToAddress     string
	Amount        decimal.Decimal
	CurrencyCode  string
	IssuerAddress string
	Memos         []string
}

// Ledger is the contract the settlement engine depends on. SendPayment is
// at-least-once from the caller's perspective: the orchestrator must never
// invoke it twice for the same payment request.
type Ledger interface {
	AccountBalance(ctx context.Context, address string) (*Balances, error)
	ValidateDestination(ctx context.Context, address string) error
	ValidateTrustline(ctx context.Context, destination, issuer, currencyCode string, required decimal.Decimal) error
	SendPayment(ctx context.Context, p Payment) (txHash string, err error)
	// FindTransactionByMemo searches the account's recent transactions for one
	// carrying the given memo. Used by the reconciliation sweep only.
	FindTransactionByMemo(ctx context.Context, account, memo string) (txHash string, found bool, err error)
}
