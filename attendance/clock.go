package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CLOCK - Caller-facing punch operations
// =============================================================================

// Clock runs punches as read-modify-write cycles against a Store.
// Cycles for the same employee are serialized; different employees never
// wait on each other.
type Clock struct {
	store Store
	now   func() time.Time
	loc   *time.Location
	locks keyedMutex
}

type Option func(*Clock)

// WithNow replaces the wall clock, mainly for tests and replays.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithLocation sets the time zone that decides which calendar day a punch belongs to.
func WithLocation(loc *time.Location) Option {
	return func(c *Clock) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func NewClock(store Store, opts ...Option) *Clock {
	c := &Clock{
		store: store,
		now:   time.Now,
		loc:   time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Clock) Location() *time.Location { return c.loc }

// Today returns the current civil date in the clock's time zone.
func (c *Clock) Today() Day { return DayOf(c.now(), c.loc) }

func (c *Clock) ClockIn(ctx context.Context, id EmployeeID) (Record, error) {
	return c.Punch(ctx, id, ActionClockIn)
}

func (c *Clock) LunchOut(ctx context.Context, id EmployeeID) (Record, error) {
	return c.Punch(ctx, id, ActionLunchOut)
}

func (c *Clock) LunchIn(ctx context.Context, id EmployeeID) (Record, error) {
	return c.Punch(ctx, id, ActionLunchIn)
}

func (c *Clock) ClockOut(ctx context.Context, id EmployeeID) (Record, error) {
	return c.Punch(ctx, id, ActionClockOut)
}

// Punch records action for the employee now. Only a transition into
// clocked-out moves the accumulated balance.
func (c *Clock) Punch(ctx context.Context, id EmployeeID, action Action) (Record, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	now := c.now().Truncate(time.Second)
	key := RecordKey{EmployeeID: id, Date: DayOf(now, c.loc)}

	policy, prior, current, err := c.load(ctx, key)
	if err != nil {
		return Record{}, err
	}

	next, err := Transition(current, action, now)
	if err != nil {
		return Record{}, err
	}
	next.UpdatedAt = now

	totals := Calculate(next, policy, prior, now)
	if next.Status != StatusClockedOut {
		next = applyTotals(next, totals, prior)
		if err := c.write(ctx, next, nil, nil); err != nil {
			return Record{}, err
		}
		return next, nil
	}

	balance := CommitBalance(prior, totals)
	next = applyCommit(next, totals, balance)
	entry := BalanceEntry{
		ID:         uuid.NewString(),
		EmployeeID: id,
		Date:       key.Date,
		Delta:      totals.DailyBalance,
		Balance:    balance,
		Reason:     ReasonDayClosed,
		Actor:      string(id),
		CreatedAt:  now,
	}
	if err := c.write(ctx, next, &balance, &entry); err != nil {
		return Record{}, err
	}
	return next, nil
}

// GetToday returns today's record with live totals. It never rejects: an
// employee without a record gets a synthesized not-started one. Nothing is
// persisted.
func (c *Clock) GetToday(ctx context.Context, id EmployeeID) (Record, error) {
	now := c.now().Truncate(time.Second)
	return c.recordFor(ctx, RecordKey{EmployeeID: id, Date: DayOf(now, c.loc)}, now)
}

// GetRecord returns the record for key with live totals if it is still open.
func (c *Clock) GetRecord(ctx context.Context, key RecordKey) (Record, error) {
	return c.recordFor(ctx, key, c.now().Truncate(time.Second))
}

func (c *Clock) recordFor(ctx context.Context, key RecordKey, now time.Time) (Record, error) {
	policy, prior, rec, err := c.load(ctx, key)
	if err != nil {
		return Record{}, err
	}
	if rec.Finalized() {
		return rec, nil
	}
	return applyTotals(rec, Calculate(rec, policy, prior, now), prior), nil
}

// Balance returns the employee's committed balance.
func (c *Clock) Balance(ctx context.Context, id EmployeeID) (decimal.Decimal, error) {
	b, err := c.store.LoadBalance(ctx, id)
	return b, storeErr("load balance", err)
}

func (c *Clock) load(ctx context.Context, key RecordKey) (WorkHoursPolicy, decimal.Decimal, Record, error) {
	policy, err := c.store.LoadPolicy(ctx)
	if err != nil {
		return WorkHoursPolicy{}, decimal.Zero, Record{}, storeErr("load policy", err)
	}
	prior, err := c.store.LoadBalance(ctx, key.EmployeeID)
	if err != nil {
		return WorkHoursPolicy{}, decimal.Zero, Record{}, storeErr("load balance", err)
	}
	existing, err := c.store.LoadRecord(ctx, key)
	if err != nil {
		return WorkHoursPolicy{}, decimal.Zero, Record{}, storeErr("load record", err)
	}
	if existing == nil {
		return policy, prior, NewRecord(key, prior), nil
	}
	return policy, prior, *existing, nil
}

// write persists rec and, when given, the new balance and its journal
// entry. Atomic when the store supports transactions.
func (c *Clock) write(ctx context.Context, rec Record, balance *decimal.Decimal, entry *BalanceEntry) error {
	fn := func(s Store) error {
		if err := s.SaveRecord(ctx, rec); err != nil {
			return storeErr("save record", err)
		}
		if balance == nil {
			return nil
		}
		if err := s.SaveBalance(ctx, rec.EmployeeID, *balance); err != nil {
			return storeErr("save balance", err)
		}
		if j, ok := s.(Journal); ok && entry != nil {
			if err := j.AppendBalanceEntry(ctx, *entry); err != nil {
				return storeErr("append balance entry", err)
			}
		}
		return nil
	}
	if tx, ok := c.store.(TxStore); ok {
		return storeErr("commit", tx.WithTx(ctx, fn))
	}
	return fn(c.store)
}

// =============================================================================
// ADMINISTRATIVE OPERATIONS
// =============================================================================

// Punches is a full replacement of a record's four punch times.
type Punches struct {
	ClockIn  *time.Time
	LunchOut *time.Time
	LunchIn  *time.Time
	ClockOut *time.Time
}

// EditRecord replaces the punches of an existing record. When the day was
// or becomes finalized, the employee balance moves by the difference
// between the new and the old daily balance.
func (c *Clock) EditRecord(ctx context.Context, key RecordKey, p Punches, actor string) (Record, error) {
	unlock := c.locks.lock(key.EmployeeID)
	defer unlock()

	now := c.now().Truncate(time.Second)
	policy, err := c.store.LoadPolicy(ctx)
	if err != nil {
		return Record{}, storeErr("load policy", err)
	}
	prior, err := c.store.LoadBalance(ctx, key.EmployeeID)
	if err != nil {
		return Record{}, storeErr("load balance", err)
	}
	existing, err := c.store.LoadRecord(ctx, key)
	if err != nil {
		return Record{}, storeErr("load record", err)
	}
	if existing == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	current := *existing

	next := current
	next.ClockIn, next.LunchOut, next.LunchIn, next.ClockOut = truncated(p.ClockIn), truncated(p.LunchOut), truncated(p.LunchIn), truncated(p.ClockOut)
	next.Status = StatusFromPunches(next)
	if err := ValidatePunches(next); err != nil {
		return Record{}, err
	}
	next.UpdatedAt = now

	// Reverse what was committed, not what today's policy would give.
	oldDaily := decimal.Zero
	if current.Finalized() {
		oldDaily = current.DailyBalance
	}
	totals := Calculate(next, policy, prior, now)
	newDaily := decimal.Zero
	if next.Finalized() {
		newDaily = totals.DailyBalance
	}
	delta := newDaily.Sub(oldDaily)

	if !current.Finalized() && !next.Finalized() {
		next = applyTotals(next, totals, prior)
		if err := c.write(ctx, next, nil, nil); err != nil {
			return Record{}, err
		}
		return next, nil
	}

	balance := prior.Add(delta)
	switch {
	case !next.Finalized():
		next = applyTotals(next, Calculate(next, policy, balance, now), balance)
	case current.Finalized():
		next = applyCommit(next, totals, current.AccumulatedBalance.Add(delta))
	default:
		next = applyCommit(next, totals, balance)
	}
	entry := BalanceEntry{
		ID:         uuid.NewString(),
		EmployeeID: key.EmployeeID,
		Date:       key.Date,
		Delta:      delta,
		Balance:    balance,
		Reason:     ReasonRecordEdited,
		Actor:      actor,
		CreatedAt:  now,
	}
	if err := c.write(ctx, next, &balance, &entry); err != nil {
		return Record{}, err
	}
	return next, nil
}

// AdjustBalance applies a manual correction to the accumulated balance.
func (c *Clock) AdjustBalance(ctx context.Context, id EmployeeID, delta decimal.Decimal, note, actor string) (decimal.Decimal, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	now := c.now().Truncate(time.Second)
	prior, err := c.store.LoadBalance(ctx, id)
	if err != nil {
		return decimal.Zero, storeErr("load balance", err)
	}
	balance := prior.Add(delta)

	fn := func(s Store) error {
		if err := s.SaveBalance(ctx, id, balance); err != nil {
			return storeErr("save balance", err)
		}
		if j, ok := s.(Journal); ok {
			entry := BalanceEntry{
				ID:         uuid.NewString(),
				EmployeeID: id,
				Date:       DayOf(now, c.loc),
				Delta:      delta,
				Balance:    balance,
				Reason:     ReasonManualAdjustment,
				Note:       note,
				Actor:      actor,
				CreatedAt:  now,
			}
			if err := j.AppendBalanceEntry(ctx, entry); err != nil {
				return storeErr("append balance entry", err)
			}
		}
		return nil
	}
	if tx, ok := c.store.(TxStore); ok {
		err = tx.WithTx(ctx, fn)
	} else {
		err = fn(c.store)
	}
	if err != nil {
		return decimal.Zero, storeErr("commit", err)
	}
	return balance, nil
}

// BalanceHistory lists the employee's balance movements, if the store keeps them.
func (c *Clock) BalanceHistory(ctx context.Context, id EmployeeID) ([]BalanceEntry, error) {
	j, ok := c.store.(Journal)
	if !ok {
		return nil, nil
	}
	entries, err := j.ListBalanceEntries(ctx, id)
	return entries, storeErr("list balance entries", err)
}

// ErrUnsupported is returned when the store lacks an optional capability.
var ErrUnsupported = errors.New("operation not supported by store")

// ListRecords queries stored records. Open shifts carry live totals.
func (c *Clock) ListRecords(ctx context.Context, q RecordQuery) ([]Record, error) {
	l, ok := c.store.(RecordLister)
	if !ok {
		return nil, ErrUnsupported
	}
	recs, err := l.ListRecords(ctx, q)
	if err != nil {
		return nil, storeErr("list records", err)
	}
	policy, err := c.store.LoadPolicy(ctx)
	if err != nil {
		return nil, storeErr("load policy", err)
	}
	now := c.now().Truncate(time.Second)
	for i, r := range recs {
		if r.Status.MidShift() {
			recs[i] = applyTotals(r, Calculate(r, policy, r.AccumulatedBalance, now), r.AccumulatedBalance)
		}
	}
	return recs, nil
}

// DeleteRecord removes a record. The accumulated balance is left alone;
// use AdjustBalance to undo a committed day.
func (c *Clock) DeleteRecord(ctx context.Context, key RecordKey) error {
	a, ok := c.store.(RecordAdmin)
	if !ok {
		return ErrUnsupported
	}
	unlock := c.locks.lock(key.EmployeeID)
	defer unlock()

	err := a.DeleteRecord(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		return err
	}
	return storeErr("delete record", err)
}

// Policy returns the active work hours policy.
func (c *Clock) Policy(ctx context.Context) (WorkHoursPolicy, error) {
	p, err := c.store.LoadPolicy(ctx)
	return p, storeErr("load policy", err)
}

// SetPolicy validates and stores a new work hours policy.
func (c *Clock) SetPolicy(ctx context.Context, p WorkHoursPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	a, ok := c.store.(RecordAdmin)
	if !ok {
		return ErrUnsupported
	}
	return storeErr("save policy", a.SavePolicy(ctx, p))
}

func truncated(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(t.Truncate(time.Second))
}

// =============================================================================
// PER-EMPLOYEE LOCKS
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[EmployeeID]*sync.Mutex
}

func (k *keyedMutex) lock(id EmployeeID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[EmployeeID]*sync.Mutex)
	}
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// IsNotFound returns true if err means the record does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrRecordNotFound) }
