// Package store provides in-process attendance.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tempreco/ponto/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	records  map[attendance.RecordKey]attendance.Record
	balances map[attendance.EmployeeID]decimal.Decimal
	entries  map[attendance.EmployeeID][]attendance.BalanceEntry
	policy   *attendance.WorkHoursPolicy
}

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[attendance.RecordKey]attendance.Record),
		balances: make(map[attendance.EmployeeID]decimal.Decimal),
		entries:  make(map[attendance.EmployeeID][]attendance.BalanceEntry),
	}
}

func (m *Memory) LoadRecord(_ context.Context, key attendance.RecordKey) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadRecordLocked(key), nil
}

func (m *Memory) loadRecordLocked(key attendance.RecordKey) *attendance.Record {
	rec, ok := m.records[key]
	if !ok {
		return nil
	}
	return &rec
}

func (m *Memory) SaveRecord(_ context.Context, rec attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key()] = rec
	return nil
}

func (m *Memory) LoadBalance(_ context.Context, id attendance.EmployeeID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[id], nil
}

func (m *Memory) SaveBalance(_ context.Context, id attendance.EmployeeID, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id] = balance
	return nil
}

func (m *Memory) LoadPolicy(_ context.Context) (attendance.WorkHoursPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policyLocked(), nil
}

func (m *Memory) policyLocked() attendance.WorkHoursPolicy {
	if m.policy == nil {
		return attendance.DefaultPolicy()
	}
	return *m.policy
}

func (m *Memory) SavePolicy(_ context.Context, p attendance.WorkHoursPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = &p
	return nil
}

func (m *Memory) ListRecords(_ context.Context, q attendance.RecordQuery) ([]attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(q), nil
}

func (m *Memory) listLocked(q attendance.RecordQuery) []attendance.Record {
	var result []attendance.Record
	for _, rec := range m.records {
		if q.Matches(rec) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].EmployeeID < result[j].EmployeeID
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result
}

func (m *Memory) DeleteRecord(_ context.Context, key attendance.RecordKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(key)
}

func (m *Memory) deleteLocked(key attendance.RecordKey) error {
	if _, ok := m.records[key]; !ok {
		return fmt.Errorf("%w: %s", attendance.ErrRecordNotFound, key)
	}
	delete(m.records, key)
	return nil
}

func (m *Memory) AppendBalanceEntry(_ context.Context, e attendance.BalanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.EmployeeID] = append(m.entries[e.EmployeeID], e)
	return nil
}

// ListBalanceEntries returns entries oldest first.
func (m *Memory) ListBalanceEntries(_ context.Context, id attendance.EmployeeID) ([]attendance.BalanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]attendance.BalanceEntry, len(m.entries[id]))
	copy(result, m.entries[id])
	return result, nil
}

// Reset clears all data.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[attendance.RecordKey]attendance.Record)
	m.balances = make(map[attendance.EmployeeID]decimal.Decimal)
	m.entries = make(map[attendance.EmployeeID][]attendance.BalanceEntry)
	m.policy = nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(attendance.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	records := make(map[attendance.RecordKey]attendance.Record, len(tm.records))
	for k, v := range tm.records {
		records[k] = v
	}
	balances := make(map[attendance.EmployeeID]decimal.Decimal, len(tm.balances))
	for k, v := range tm.balances {
		balances[k] = v
	}
	entries := make(map[attendance.EmployeeID][]attendance.BalanceEntry, len(tm.entries))
	for k, v := range tm.entries {
		entries[k] = append([]attendance.BalanceEntry{}, v...)
	}
	return memorySnapshot{records: records, balances: balances, entries: entries, policy: tm.policy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.records = s.records
	tm.balances = s.balances
	tm.entries = s.entries
	tm.policy = s.policy
}

type memorySnapshot struct {
	records  map[attendance.RecordKey]attendance.Record
	balances map[attendance.EmployeeID]decimal.Decimal
	entries  map[attendance.EmployeeID][]attendance.BalanceEntry
	policy   *attendance.WorkHoursPolicy
}

// txMemoryView operates on the parent's maps while WithTx holds its lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) LoadRecord(_ context.Context, key attendance.RecordKey) (*attendance.Record, error) {
	return tv.parent.loadRecordLocked(key), nil
}

func (tv *txMemoryView) SaveRecord(_ context.Context, rec attendance.Record) error {
	tv.parent.records[rec.Key()] = rec
	return nil
}

func (tv *txMemoryView) LoadBalance(_ context.Context, id attendance.EmployeeID) (decimal.Decimal, error) {
	return tv.parent.balances[id], nil
}

func (tv *txMemoryView) SaveBalance(_ context.Context, id attendance.EmployeeID, balance decimal.Decimal) error {
	tv.parent.balances[id] = balance
	return nil
}

func (tv *txMemoryView) LoadPolicy(_ context.Context) (attendance.WorkHoursPolicy, error) {
	return tv.parent.policyLocked(), nil
}

func (tv *txMemoryView) AppendBalanceEntry(_ context.Context, e attendance.BalanceEntry) error {
	tv.parent.entries[e.EmployeeID] = append(tv.parent.entries[e.EmployeeID], e)
	return nil
}

func (tv *txMemoryView) ListBalanceEntries(_ context.Context, id attendance.EmployeeID) ([]attendance.BalanceEntry, error) {
	return append([]attendance.BalanceEntry{}, tv.parent.entries[id]...), nil
}

// =============================================================================
// FAILING STORE - Wraps a store and fails on demand
// =============================================================================

// Flaky delegates to a Store but returns Err from every call while Down is set.
// Used to exercise store-unavailable paths.
type Flaky struct {
	attendance.Store
	mu   sync.Mutex
	down bool
	Err  error
	// FailSaves only fails writes, reads keep working.
	FailSaves bool
}

func NewFlaky(s attendance.Store, err error) *Flaky {
	return &Flaky{Store: s, Err: err}
}

func (f *Flaky) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *Flaky) failing(write bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down && (write || !f.FailSaves)
}

func (f *Flaky) LoadRecord(ctx context.Context, key attendance.RecordKey) (*attendance.Record, error) {
	if f.failing(false) {
		return nil, f.Err
	}
	return f.Store.LoadRecord(ctx, key)
}

func (f *Flaky) SaveRecord(ctx context.Context, rec attendance.Record) error {
	if f.failing(true) {
		return f.Err
	}
	return f.Store.SaveRecord(ctx, rec)
}

func (f *Flaky) LoadBalance(ctx context.Context, id attendance.EmployeeID) (decimal.Decimal, error) {
	if f.failing(false) {
		return decimal.Zero, f.Err
	}
	return f.Store.LoadBalance(ctx, id)
}

func (f *Flaky) SaveBalance(ctx context.Context, id attendance.EmployeeID, b decimal.Decimal) error {
	if f.failing(true) {
		return f.Err
	}
	return f.Store.SaveBalance(ctx, id, b)
}

func (f *Flaky) LoadPolicy(ctx context.Context) (attendance.WorkHoursPolicy, error) {
	if f.failing(false) {
		return attendance.WorkHoursPolicy{}, f.Err
	}
	return f.Store.LoadPolicy(ctx)
}
