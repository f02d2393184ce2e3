/*
errors.go - Error taxonomy of the approval workflow

PURPOSE:
  All failures the core returns to callers. Every structured error unwraps to
  exactly one sentinel so callers branch with errors.Is and transports map
  the sentinel to a status code with KindOf.

TAXONOMY:
  ErrInvalidRange            start after end
  ErrInsufficientBalance     hard-enforcement quota violation
  ErrNotFound                unknown request (or employee)
  ErrRequestAlreadyFinalized transition attempted on a terminal request
                             (or on a step that already holds a decision)
  ErrUnauthorized            actor lacks authority for the step
  ErrNoWorkingDayFound       calendar walk exceeded its bound
  ErrValidation              malformed input outside the above
*/
package timeoff

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidRange            = errors.New("invalid range")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrNotFound                = errors.New("not found")
	ErrRequestAlreadyFinalized = errors.New("request already finalized")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrNoWorkingDayFound       = errors.New("no working day found")
	ErrValidation              = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the context needed to act on the failure
// =============================================================================

// RangeError reports a date span whose start is after its end.
type RangeError struct {
	RequestID string
	Start     Date
	End       Date
}

func (e *RangeError) Error() string {
	msg := fmt.Sprintf("invalid range: startDate %s is after endDate %s", e.Start, e.End)
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// InsufficientBalanceError reports a reservation that would push available
// days below the configured floor.
type InsufficientBalanceError struct {
	EmployeeID string
	LeaveType  LeaveType
	Year       int
	Available  decimal.Decimal
	Requested  decimal.Decimal
	Floor      decimal.Decimal
}

// Shortfall is how many days the request exceeds the allowance by.
func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available.Sub(e.Floor))
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s/%d: available %s, requested %s, shortfall %s",
		e.EmployeeID, e.LeaveType, e.Year, e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NotFoundError names the missing resource and the field that referenced it.
type NotFoundError struct {
	Resource string // "request", "employee", "holiday"
	ID       string
	Field    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// FinalizedError is returned for any transition on an approved or declined request.
type FinalizedError struct {
	RequestID string
	Status    Status
}

func (e *FinalizedError) Error() string {
	return fmt.Sprintf("request %s already finalized with status %s", e.RequestID, e.Status)
}

func (e *FinalizedError) Unwrap() error { return ErrRequestAlreadyFinalized }

// StepDecidedError is returned when a step already carries a recorded
// decision and a different one is applied to it.
type StepDecidedError struct {
	RequestID string
	Step      Step
	Decision  Decision
}

func (e *StepDecidedError) Error() string {
	return fmt.Sprintf("request %s: step %s already decided (%s)", e.RequestID, e.Step, e.Decision)
}

func (e *StepDecidedError) Unwrap() error { return ErrRequestAlreadyFinalized }

// UnauthorizedError is returned when an actor has no authority over a step
// or over the subject of a request.
type UnauthorizedError struct {
	ActorID   string
	Role      Role
	Step      Step
	RequestID string
	Reason    string
}

func (e *UnauthorizedError) Error() string {
	msg := "unauthorized"
	if e.ActorID != "" {
		msg += ": " + e.ActorID
	}
	if e.Role != "" {
		msg += fmt.Sprintf(" (role %s)", e.Role)
	}
	if e.Step != "" {
		msg += " on step " + string(e.Step)
	}
	if e.RequestID != "" {
		msg += " of request " + e.RequestID
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// NoWorkingDayError is returned when a working-day walk exceeds its bound.
type NoWorkingDayError struct {
	From      Date
	Direction string // "next" or "previous"
	Steps     int
}

func (e *NoWorkingDayError) Error() string {
	return fmt.Sprintf("no %s working day within %d days of %s", e.Direction, e.Steps, e.From)
}

func (e *NoWorkingDayError) Unwrap() error { return ErrNoWorkingDayFound }

// ValidationError reports a malformed field.
type ValidationError struct {
	RequestID string
	Field     string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Kind names the taxonomy kind of err, or "Internal" when err is outside it.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRange):
		return "InvalidRange"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrRequestAlreadyFinalized):
		return "RequestAlreadyFinalized"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrNoWorkingDayFound):
		return "NoWorkingDayFound"
	case errors.Is(err, ErrValidation):
		return "Validation"
	default:
		return "Internal"
	}
}

// IsClientError returns true if the error is due to the caller's input or
// authority rather than a failure of the system.
func IsClientError(err error) bool {
	k := KindOf(err)
	return k != "" && k != "Internal"
}
