package tracking

import (
	"errors"
	"fmt"
)

// Rejection reasons returned by Validate.
var (
	ErrNotPermittedForRole = errors.New("status not permitted for role")
	ErrNotForwardMove      = errors.New("status is not after the current status")
)

var (
	// ErrInvalidTransition wraps a rejection when a status change is
	// attempted anyway. Errors carrying it also match the specific reason.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrEmptyHistory means an item exists without any event. Registration
	// always records one, so this indicates a broken store.
	ErrEmptyHistory = errors.New("item has no history")

	ErrItemNotFound = errors.New("item not found")
	ErrItemExists   = errors.New("item already exists")
	ErrInvalidItem  = errors.New("invalid item")
)

// SettlementError is returned when the ledger refused or failed a submission.
// Nothing is recorded in that case.
type SettlementError struct {
	Function string
	ItemID   string
	Err      error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settling %s for %s: %v", e.Function, e.ItemID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

func invalidTransition(reason error) error {
	return fmt.Errorf("%w: %w", ErrInvalidTransition, reason)
}
