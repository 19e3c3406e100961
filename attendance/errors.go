/*
errors.go - Error types for the attendance engine

ERROR CATEGORIES:
  1. Punch rejections - OutOfOrderPunch, DuplicatePunch, IncompleteLunch.
     Carried by *PunchError with the action, current status and a reason.
  2. Store failures - ErrStoreUnavailable, carried by *StoreError.
  3. Lookup/config - ErrRecordNotFound, ErrInvalidPolicy.

All of them are recoverable by the caller. The record is never modified
when an error is returned.

USAGE:
  rec, err := clock.LunchIn(ctx, "emp-1")
  var pe *attendance.PunchError
  if errors.As(err, &pe) {
      // pe.Reason is safe to show to the employee
  }
  if errors.Is(err, attendance.ErrStoreUnavailable) {
      // backend down, caller decides whether to retry
  }
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOutOfOrderPunch is returned when a punch is attempted before its
	// prerequisite punch (e.g. lunch-in without lunch-out).
	ErrOutOfOrderPunch = errors.New("out-of-order punch")

	// ErrDuplicatePunch is returned when a punch is repeated in the same cycle.
	ErrDuplicatePunch = errors.New("duplicate punch")

	// ErrIncompleteLunch is returned on clock-out while a lunch break is open.
	ErrIncompleteLunch = errors.New("incomplete lunch break")

	// ErrStoreUnavailable is returned when the record store fails to read or write.
	ErrStoreUnavailable = errors.New("record store unavailable")

	ErrRecordNotFound = errors.New("attendance record not found")
	ErrInvalidPolicy  = errors.New("invalid work hours policy")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// PunchError explains why a punch was rejected.
type PunchError struct {
	Action Action
	Status Status
	Reason string
	Kind   error // one of ErrOutOfOrderPunch, ErrDuplicatePunch, ErrIncompleteLunch
}

func (e *PunchError) Error() string {
	return fmt.Sprintf("%s rejected while %s: %s", e.Action, e.Status, e.Reason)
}

func (e *PunchError) Unwrap() error { return e.Kind }

func reject(kind error, action Action, status Status, reason string) *PunchError {
	return &PunchError{Action: action, Status: status, Reason: reason, Kind: kind}
}

// StoreError wraps a backend failure. It matches both ErrStoreUnavailable
// and the underlying error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRejection returns true if err is a punch rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrOutOfOrderPunch) ||
		errors.Is(err, ErrDuplicatePunch) ||
		errors.Is(err, ErrIncompleteLunch)
}

// Code returns a stable machine-readable code for err, or "" if unknown.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrOutOfOrderPunch):
		return "out_of_order_punch"
	case errors.Is(err, ErrDuplicatePunch):
		return "duplicate_punch"
	case errors.Is(err, ErrIncompleteLunch):
		return "incomplete_lunch"
	case errors.Is(err, ErrRecordNotFound):
		return "record_not_found"
	case errors.Is(err, ErrInvalidPolicy):
		return "invalid_policy"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	}
	return ""
}
