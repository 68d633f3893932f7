/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error returned by the ledger carries exactly one kind so the
  HTTP layer can map it to a status without string matching.

ERROR KINDS:
  ErrNotFound      Unknown id
  ErrUnauthorized  Resource belongs to another customer
  ErrConflict      Business rule violation (funds, state, self-transfer)
  ErrInvalid       Malformed input (amount, page)
  ErrInternal      Anything else, including failed multi-step writes

USAGE:
  Rule errors wrap their kind, so both checks hold:

    errors.Is(err, ledger.ErrInsufficientFunds) // true
    errors.Is(err, ledger.ErrConflict)          // true

SEE ALSO:
  - balance.go: Returns ErrInactiveAccount, InsufficientFundsError
  - api/errors.go: Maps kinds to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// KINDS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid argument")
	ErrInternal     = errors.New("internal error")
)

// =============================================================================
// RULE ERRORS - Wrap a kind
// =============================================================================

var (
	// ErrInactiveAccount is returned when crediting, debiting or reading the
	// balance of an inactive account.
	ErrInactiveAccount = fmt.Errorf("%w: inactive account", ErrConflict)

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrConflict)

	// ErrSelfTransfer is returned when income and outcome are the same account.
	ErrSelfTransfer = fmt.Errorf("%w: income and outcome accounts must differ", ErrConflict)

	// ErrNonZeroBalance is returned when closing or deactivating an account
	// that still holds money.
	ErrNonZeroBalance = fmt.Errorf("%w: account balance is not zero", ErrConflict)

	// ErrDuplicate is returned by stores on unique constraint violations.
	ErrDuplicate = fmt.Errorf("%w: already exists", ErrConflict)

	// ErrNotOwner is returned when a customer touches another customer's records.
	ErrNotOwner = fmt.Errorf("%w: resource does not belong to customer", ErrUnauthorized)

	// ErrInvalidAmount is returned for zero or negative money movements.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrInvalid)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	AccountID AccountID
	Available Amount
	Requested Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %s: available %s, requested %s",
		e.AccountID, e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// KindOf returns the kind sentinel an error carries, ErrInternal when it carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrUnauthorized, ErrConflict, ErrInvalid} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }

// IsClientError returns true if the error is caused by the request rather than the system.
func IsClientError(err error) bool {
	return KindOf(err) != ErrInternal
}

// internal wraps an unexpected failure so it keeps its cause but reports ErrInternal.
func internal(msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, msg, err)
}
