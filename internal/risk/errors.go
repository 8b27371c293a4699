package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CountLimitError reports the organization's daily payment count cap.
type CountLimitError struct {
	Limit int
	Count int
}

func (e *CountLimitError) Error() string {
	return fmt.Sprintf("daily payment limit reached: %d of %d used today", e.Count, e.Limit)
}

// AmountLimitError reports the organization's daily USD amount cap.
type AmountLimitError struct {
	Limit     decimal.Decimal
	Spent     decimal.Decimal
	Requested decimal.Decimal
}

func (e *AmountLimitError) Error() string {
	return fmt.Sprintf("daily amount limit exceeded: %s spent + %s requested > %s limit",
		e.Spent.StringFixed(2), e.Requested.StringFixed(2), e.Limit.StringFixed(2))
}

// AddressLockError reports that the destination's default-address change is
// still inside the cool-down window.
type AddressLockError struct {
	Remaining time.Duration
}

func (e *AddressLockError) Error() string {
	return fmt.Sprintf("destination address changed recently, locked for another %s", e.Remaining.Round(time.Minute))
}

// InsufficientBalanceError reports that the payer wallet cannot cover the
// transfer. Currency is "XRP" or the issued currency code.
type InsufficientBalanceError struct {
	Currency  string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: required %s, available %s",
		e.Currency, e.Required.String(), e.Available.String())
}
