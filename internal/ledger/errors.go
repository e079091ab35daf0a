package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnauthorized means the actor's role grants no access to the requested
	// operation at all, before any scope is resolved.
	ErrUnauthorized = errors.New("ledger: not authorized for this operation")

	// ErrInvalidMovement covers drafts with an unknown type or category.
	ErrInvalidMovement = errors.New("ledger: invalid movement type or category")
)

// AmountError reports a non-positive amount or exchange rate, naming the
// offending field so callers can point at it.
type AmountError struct {
	Field string
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("ledger: %s must be positive", e.Field)
}

// PeriodError reports an out-of-range report month or year.
type PeriodError struct {
	Reason string
}

func (e *PeriodError) Error() string {
	return "ledger: " + e.Reason
}

// ScopeError means the actor is allowed in principle but no valid scope could
// be resolved for the write (no assigned tower, tower mismatch, missing tower).
type ScopeError struct {
	Reason string
}

func (e *ScopeError) Error() string {
	return "ledger: " + e.Reason
}

// InsufficientFundsError rejects an expense that would drive the scope's
// balance negative. It carries the balance observed inside the transaction so
// the operator sees exactly how short the request fell.
type InsufficientFundsError struct {
	Balance decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient funds, current balance is %s", e.Balance.StringFixed(2))
}
