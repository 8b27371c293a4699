package settlement

import (
	"errors"
	"fmt"
)

// Configuration errors: administrator action required, never retried
// automatically.
var (
	ErrNoWallet             = errors.New("organization has no default active wallet")
	ErrNoDestinationAddress = errors.New("worker has no default active destination address")
	ErrNoTokenConfig        = errors.New("organization has no issued-token configuration")
)

// ErrNotPending is returned when a manual completion, execution or cancel
// targets a request that already left PENDING.
var ErrNotPending = errors.New("payment request is not pending")

// ErrNotFound is returned when a payment request does not exist in the
// caller's organization.
var ErrNotFound = errors.New("payment request not found")

// EligibilityError reports that the selected work sessions cannot be settled:
// missing, foreign, not approved, or already tied to another request. Safe to
// retry with corrected input; nothing was mutated.
type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string {
	return "work sessions not eligible: " + e.Reason
}

func eligibility(format string, args ...any) error {
	return &EligibilityError{Reason: fmt.Sprintf(format, args...)}
}
