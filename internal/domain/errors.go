package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a play cannot be located, including when a
// poller holds a stale reference after a concurrent move.
var ErrNotFound = errors.New("play not found")

// CorruptRecordError signals that a stored play record could not be parsed
// or failed validation. It indicates data damage and is never swallowed for
// a record the caller addressed directly.
type CorruptRecordError struct {
	Path string
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt play record %s: %v", e.Path, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// IllegalTransitionError is returned when a requested status change is not
// in the transition table. The play is left unchanged.
type IllegalTransitionError struct {
	PlayID string
	From   PlayStatus
	To     PlayStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s for play %s", e.From, e.To, e.PlayID)
}

// RiskReason identifies which risk limit a rejected submission breached.
type RiskReason string

const (
	RiskInsufficientBuyingPower  RiskReason = "insufficient_buying_power"
	RiskExceedsCapitalAllocation RiskReason = "exceeds_capital_allocation"
	RiskExceedsNotionalLeverage  RiskReason = "exceeds_notional_leverage"
)

// RiskViolationError is an expected, recoverable rejection: the play stays
// in NEW and the caller may retry once conditions change.
type RiskViolationError struct {
	Reason   RiskReason
	Required float64
	Limit    float64
}

func (e *RiskViolationError) Error() string {
	return fmt.Sprintf("risk check failed (%s): required %.2f exceeds limit %.2f",
		e.Reason, e.Required, e.Limit)
}

// RiskValidationError wraps an unexpected collaborator failure during a risk
// check. The gate fails closed: the transition is rejected.
type RiskValidationError struct {
	Err error
}

func (e *RiskValidationError) Error() string {
	return fmt.Sprintf("risk validation failed: %v", e.Err)
}

func (e *RiskValidationError) Unwrap() error { return e.Err }
