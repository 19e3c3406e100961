/*
store.go - Persistence contract for attendance records and balances

PURPOSE:
  Defines the interface between the punch engine and whatever keeps the
  data: an in-memory map, SQLite or PostgreSQL. The engine never depends
  on a specific storage technology.

KEY INTERFACES:
  Store:        The four record/balance operations plus the policy blob
  TxStore:      Optional. Commits a record and its balance atomically
  RecordLister: Range queries for back office screens and reports
  RecordAdmin:  Administrative delete and policy updates
  Journal:      Optional. History of balance movements

CONSISTENCY:
  Last write wins per key. Without TxStore the record write and the
  balance write of a clock-out are two separate calls; a failure between
  them is reported as ErrStoreUnavailable and not rolled back.

IMPLEMENTATIONS:
  - attendance/store/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go: Default backend
  - store/postgres/postgres.go: PostgreSQL backend
*/
package attendance

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Record, balance and policy persistence
// =============================================================================

type Store interface {
	// LoadRecord returns the record for key, or nil if none exists.
	LoadRecord(ctx context.Context, key RecordKey) (*Record, error)

	// SaveRecord inserts or replaces the record under its key.
	SaveRecord(ctx context.Context, rec Record) error

	// LoadBalance returns the employee's accumulated balance, zero if absent.
	LoadBalance(ctx context.Context, employeeID EmployeeID) (decimal.Decimal, error)

	SaveBalance(ctx context.Context, employeeID EmployeeID, balance decimal.Decimal) error

	// LoadPolicy returns the stored work hours policy, DefaultPolicy if absent.
	LoadPolicy(ctx context.Context) (WorkHoursPolicy, error)
}

// TxStore runs fn in a transaction: commit on nil, rollback on error.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// QUERIES AND ADMINISTRATION
// =============================================================================

// RecordQuery filters ListRecords. Zero fields do not filter.
type RecordQuery struct {
	EmployeeID EmployeeID
	From       Day
	To         Day
	OpenOnly   bool // only records with an open shift
	Limit      int
}

func (q RecordQuery) Matches(r Record) bool {
	if q.EmployeeID != "" && r.EmployeeID != q.EmployeeID {
		return false
	}
	if !q.From.IsZero() && r.Date.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && r.Date.After(q.To) {
		return false
	}
	if q.OpenOnly && !r.Status.MidShift() {
		return false
	}
	return true
}

type RecordLister interface {
	// ListRecords returns matching records, newest date first.
	ListRecords(ctx context.Context, q RecordQuery) ([]Record, error)
}

type RecordAdmin interface {
	RecordLister
	DeleteRecord(ctx context.Context, key RecordKey) error
	SavePolicy(ctx context.Context, policy WorkHoursPolicy) error
}

// Journal keeps the history of balance movements.
type Journal interface {
	AppendBalanceEntry(ctx context.Context, entry BalanceEntry) error
	ListBalanceEntries(ctx context.Context, employeeID EmployeeID) ([]BalanceEntry, error)
}
