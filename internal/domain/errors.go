package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Error types for consistent error handling across the ledger and the
// credential store. Callers match them with errors.As.

// ErrInvalidAmount indicates a non-positive deposit/withdrawal or a
// negative initial deposit.
type ErrInvalidAmount struct {
	Amount decimal.Decimal
}

func (e *ErrInvalidAmount) Error() string {
	return fmt.Sprintf("invalid amount: %s", e.Amount.StringFixed(2))
}

// ErrInsufficientFunds indicates a withdrawal larger than the balance.
type ErrInsufficientFunds struct {
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds: available=%s required=%s",
		e.Available.StringFixed(2), e.Required.StringFixed(2))
}

// ErrAccountNotFound indicates no account carries the given number.
type ErrAccountNotFound struct {
	Number int
}

func (e *ErrAccountNotFound) Error() string {
	return fmt.Sprintf("account not found: %d", e.Number)
}

// ErrUserNotFound indicates no credential is registered under the username.
type ErrUserNotFound struct {
	Username string
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user not found: %s", e.Username)
}

// ErrDuplicateUsername indicates the username is already registered.
type ErrDuplicateUsername struct {
	Username string
}

func (e *ErrDuplicateUsername) Error() string {
	return fmt.Sprintf("username already exists: %s", e.Username)
}

// ErrAccountLocked indicates the credential is locked. JustLocked is set
// when the failed attempt being reported is the one that locked it.
type ErrAccountLocked struct {
	Username   string
	JustLocked bool
}

func (e *ErrAccountLocked) Error() string {
	if e.JustLocked {
		return fmt.Sprintf("user %s locked after %d failed attempts", e.Username, MaxFailedAttempts)
	}
	return fmt.Sprintf("user %s is locked", e.Username)
}

// ErrInvalidPassword indicates a failed password check that did not lock
// the credential.
type ErrInvalidPassword struct {
	Attempts  int
	Remaining int
}

func (e *ErrInvalidPassword) Error() string {
	return fmt.Sprintf("invalid password: %d failed attempt(s), %d remaining", e.Attempts, e.Remaining)
}

// ErrNotLocked indicates an unlock request for a credential that is not locked.
type ErrNotLocked struct {
	Username string
}

func (e *ErrNotLocked) Error() string {
	return fmt.Sprintf("user %s is not locked", e.Username)
}

// ErrStorageUnavailable indicates a snapshot could not be written or read.
type ErrStorageUnavailable struct {
	Store string
	Err   error
}

func (e *ErrStorageUnavailable) Error() string {
	return fmt.Sprintf("storage unavailable [%s]: %v", e.Store, e.Err)
}

func (e *ErrStorageUnavailable) Unwrap() error {
	return e.Err
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a missing, invalid, expired or revoked session.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrForbidden indicates the session's role lacks permission for the operation.
type ErrForbidden struct {
	Action string
	Role   Role
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s is not permitted for role %s", e.Action, e.Role)
}
