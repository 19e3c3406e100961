/*
Package attendance provides the punch-clock engine for the ponto system.

PURPOSE:
  Tracks one attendance record per employee per calendar day, validates
  punches (clock-in, lunch-out, lunch-in, clock-out) against the record's
  status, computes worked hours and keeps each employee's accumulated
  hour balance.

KEY CONCEPTS IN THIS FILE (types.go):
  - RecordKey: Composite (employee, date) key, never a concatenated string
  - Record: The day's punches plus derived totals
  - Status / Action: States and inputs of the punch state machine

BALANCE MODEL:
  Live totals are recomputed on every punch, but the accumulated balance
  only moves when a day is closed (clock-out). The live overtime figure
  is clamped at zero; the committed balance is signed.

SEE ALSO:
  - machine.go: Transition table
  - calculator.go: Worked hours and balance arithmetic
  - clock.go: Caller-facing operations (ClockIn, LunchOut, ...)
  - store.go: Persistence contract
*/
package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string

// RecordKey identifies the single record of one employee on one date.
type RecordKey struct {
	EmployeeID EmployeeID
	Date       Day
}

func (k RecordKey) String() string { return string(k.EmployeeID) + "@" + k.Date.String() }

// =============================================================================
// STATUS AND ACTIONS
// =============================================================================

type Status string

const (
	StatusNotStarted  Status = "not-started"
	StatusClockedIn   Status = "clocked-in"
	StatusLunchBreak  Status = "lunch-break"
	StatusLunchReturn Status = "lunch-return"
	StatusClockedOut  Status = "clocked-out"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusClockedIn, StatusLunchBreak, StatusLunchReturn, StatusClockedOut:
		return true
	}
	return false
}

// MidShift reports whether a shift is open (clocked in but not out).
func (s Status) MidShift() bool {
	return s == StatusClockedIn || s == StatusLunchBreak || s == StatusLunchReturn
}

type Action string

const (
	ActionClockIn  Action = "clock-in"
	ActionLunchOut Action = "lunch-out"
	ActionLunchIn  Action = "lunch-in"
	ActionClockOut Action = "clock-out"
)

func (a Action) Valid() bool {
	switch a {
	case ActionClockIn, ActionLunchOut, ActionLunchIn, ActionClockOut:
		return true
	}
	return false
}

// =============================================================================
// RECORD
// =============================================================================

// Record is the attendance of one employee on one date.
// Invariant: ClockIn <= LunchOut <= LunchIn <= ClockOut for the punches present.
type Record struct {
	EmployeeID EmployeeID
	Date       Day

	ClockIn  *time.Time
	LunchOut *time.Time
	LunchIn  *time.Time
	ClockOut *time.Time

	TotalHours    decimal.Decimal // worked hours, never negative
	OvertimeHours decimal.Decimal // display value, never negative

	// AccumulatedBalance is the balance the totals were computed against.
	// After clock-out it holds the newly committed balance.
	AccumulatedBalance decimal.Decimal

	// DailyBalance is the delta the last clock-out folded into the
	// employee balance. Zero while the day is open.
	DailyBalance decimal.Decimal

	Status    Status
	UpdatedAt time.Time
}

// NewRecord returns an empty record for key carrying the employee's balance.
func NewRecord(key RecordKey, balance decimal.Decimal) Record {
	return Record{
		EmployeeID:         key.EmployeeID,
		Date:               key.Date,
		TotalHours:         decimal.Zero,
		OvertimeHours:      decimal.Zero,
		AccumulatedBalance: balance,
		DailyBalance:       decimal.Zero,
		Status:             StatusNotStarted,
	}
}

func (r Record) Key() RecordKey { return RecordKey{EmployeeID: r.EmployeeID, Date: r.Date} }

// Finalized reports whether the day has been closed with a clock-out.
func (r Record) Finalized() bool { return r.Status == StatusClockedOut && r.ClockOut != nil }

// StatusFromPunches derives the status a record with these punches is in.
func StatusFromPunches(r Record) Status {
	switch {
	case r.ClockIn == nil:
		return StatusNotStarted
	case r.ClockOut != nil:
		return StatusClockedOut
	case r.LunchIn != nil:
		return StatusLunchReturn
	case r.LunchOut != nil:
		return StatusLunchBreak
	default:
		return StatusClockedIn
	}
}

// =============================================================================
// BALANCE JOURNAL
// =============================================================================

type BalanceReason string

const (
	ReasonDayClosed        BalanceReason = "day-closed"
	ReasonRecordEdited     BalanceReason = "record-edited"
	ReasonManualAdjustment BalanceReason = "manual-adjustment"
)

// BalanceEntry records one movement of an employee's accumulated balance.
type BalanceEntry struct {
	ID         string
	EmployeeID EmployeeID
	Date       Day
	Delta      decimal.Decimal
	Balance    decimal.Decimal // balance after the movement
	Reason     BalanceReason
	Note       string
	Actor      string
	CreatedAt  time.Time
}

func timePtr(t time.Time) *time.Time { return &t }
