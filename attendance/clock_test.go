package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/attendance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var brt = time.FixedZone("BRT", -3*60*60)

// Monday, March 10 2025
var monday = attendance.NewDay(2025, time.March, 10)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(d attendance.Day, h, m int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = d.At(h, m, brt)
}

func newTestClock(t *testing.T) (*attendance.Clock, *store.TxMemory, *fakeClock) {
	t.Helper()
	s := store.NewTxMemory()
	fc := &fakeClock{now: monday.At(8, 0, brt)}
	return attendance.NewClock(s, attendance.WithNow(fc.Now), attendance.WithLocation(brt)), s, fc
}

func hours(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertHours(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, hours(want).Equal(got), "want %s hours, got %s", want, got.String())
}

// workDay punches a full day: in, lunch out, lunch in, out.
func workDay(t *testing.T, c *attendance.Clock, fc *fakeClock, id attendance.EmployeeID, d attendance.Day, in, lunchOut, lunchIn, out [2]int) attendance.Record {
	t.Helper()
	ctx := context.Background()

	fc.Set(d, in[0], in[1])
	_, err := c.ClockIn(ctx, id)
	require.NoError(t, err)
	fc.Set(d, lunchOut[0], lunchOut[1])
	_, err = c.LunchOut(ctx, id)
	require.NoError(t, err)
	fc.Set(d, lunchIn[0], lunchIn[1])
	_, err = c.LunchIn(ctx, id)
	require.NoError(t, err)
	fc.Set(d, out[0], out[1])
	rec, err := c.ClockOut(ctx, id)
	require.NoError(t, err)
	return rec
}

// =============================================================================
// PUNCH FLOW
// =============================================================================

func TestClock_FullDay_CommitsBalanceOnClockOut(t *testing.T) {
	// GIVEN: An employee with no history
	c, s, fc := newTestClock(t)
	ctx := context.Background()

	// WHEN: working 08:00-12:00 and 13:00-18:00
	rec := workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{18, 0})

	// THEN: 9 hours, +1 committed
	assert.Equal(t, attendance.StatusClockedOut, rec.Status)
	assertHours(t, "9", rec.TotalHours)
	assertHours(t, "1", rec.AccumulatedBalance)
	assertHours(t, "1", rec.OvertimeHours)

	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "1", bal)

	stored, err := s.LoadRecord(ctx, attendance.RecordKey{EmployeeID: "emp-1", Date: monday})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, rec, *stored)
}

func TestClock_BalanceOnlyMovesOnClockOut(t *testing.T) {
	c, s, fc := newTestClock(t)
	ctx := context.Background()
	require.NoError(t, s.SaveBalance(ctx, "emp-1", hours("2")))

	fc.Set(monday, 8, 0)
	_, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)
	fc.Set(monday, 12, 0)
	rec, err := c.LunchOut(ctx, "emp-1")
	require.NoError(t, err)

	// 4h worked, live daily -4, prior +2 projects to 0
	assertHours(t, "4", rec.TotalHours)
	assertHours(t, "2", rec.AccumulatedBalance)
	assertHours(t, "0", rec.OvertimeHours)

	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "2", bal)
}

func TestClock_ShortDays_NegativeBalance(t *testing.T) {
	c, s, fc := newTestClock(t)
	ctx := context.Background()

	// 6h day
	rec := workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{11, 0}, [2]int{12, 0}, [2]int{15, 0})
	assertHours(t, "6", rec.TotalHours)
	assertHours(t, "-2", rec.AccumulatedBalance)
	assertHours(t, "0", rec.OvertimeHours)

	// 10h day recovers it
	rec = workDay(t, c, fc, "emp-1", monday.AddDays(1), [2]int{7, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{18, 0})
	assertHours(t, "10", rec.TotalHours)
	assertHours(t, "0", rec.AccumulatedBalance)

	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "0", bal)
}

func TestClock_LunchInWithoutLunchOut_RejectedAndUnchanged(t *testing.T) {
	c, s, fc := newTestClock(t)
	ctx := context.Background()

	fc.Set(monday, 8, 0)
	before, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)

	fc.Set(monday, 13, 0)
	_, err = c.LunchIn(ctx, "emp-1")
	assert.ErrorIs(t, err, attendance.ErrOutOfOrderPunch)

	stored, err := s.LoadRecord(ctx, before.Key())
	require.NoError(t, err)
	assert.Equal(t, before, *stored)
}

func TestClock_ClockOutDuringLunch_IncompleteLunch(t *testing.T) {
	c, _, fc := newTestClock(t)
	ctx := context.Background()

	fc.Set(monday, 8, 0)
	_, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)
	fc.Set(monday, 12, 0)
	_, err = c.LunchOut(ctx, "emp-1")
	require.NoError(t, err)

	fc.Set(monday, 17, 0)
	_, err = c.ClockOut(ctx, "emp-1")
	assert.ErrorIs(t, err, attendance.ErrIncompleteLunch)

	var pe *attendance.PunchError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, attendance.StatusLunchBreak, pe.Status)
}

func TestClock_DuplicateClockIn(t *testing.T) {
	c, _, fc := newTestClock(t)
	ctx := context.Background()

	fc.Set(monday, 8, 0)
	_, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)

	fc.Set(monday, 8, 5)
	_, err = c.ClockIn(ctx, "emp-1")
	assert.ErrorIs(t, err, attendance.ErrDuplicatePunch)
}

func TestClock_ReopenAfterClockOut(t *testing.T) {
	// GIVEN: a closed day that committed +1
	c, s, fc := newTestClock(t)
	ctx := context.Background()
	workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{18, 0})

	// WHEN: clocking in again at 19:00
	fc.Set(monday, 19, 0)
	rec, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)

	// THEN: punches are cleared and the committed balance stays
	assert.Equal(t, attendance.StatusClockedIn, rec.Status)
	assert.Nil(t, rec.LunchOut)
	assert.Nil(t, rec.LunchIn)
	assert.Nil(t, rec.ClockOut)
	assertHours(t, "1", rec.AccumulatedBalance)

	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "1", bal)
}

func TestClock_ReopenedDayChargesDailyHoursAgain(t *testing.T) {
	// GIVEN: a 4h session closed at 12:00, re-opened at 13:00 and closed at 17:00
	c, s, fc := newTestClock(t)
	ctx := context.Background()
	for _, step := range []struct {
		h      int
		action attendance.Action
	}{
		{8, attendance.ActionClockIn}, {12, attendance.ActionClockOut},
		{13, attendance.ActionClockIn}, {17, attendance.ActionClockOut},
	} {
		fc.Set(monday, step.h, 0)
		_, err := c.Punch(ctx, "emp-1", step.action)
		require.NoError(t, err)
	}

	// THEN: each close commits against the full daily target,
	// and the record shows only the last session
	rec, err := s.LoadRecord(ctx, attendance.RecordKey{EmployeeID: "emp-1", Date: monday})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assertHours(t, "4", rec.TotalHours)
	assertHours(t, "-4", rec.DailyBalance)
	assertHours(t, "-8", rec.AccumulatedBalance)

	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "-8", bal)

	history, err := c.BalanceHistory(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assertHours(t, "-4", history[0].Delta)
	assertHours(t, "-4", history[1].Delta)
}

func TestClock_NewDayStartsFresh(t *testing.T) {
	c, _, fc := newTestClock(t)
	ctx := context.Background()

	fc.Set(monday, 8, 0)
	_, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)

	// Forgot to clock out; next morning is a new record.
	fc.Set(monday.AddDays(1), 8, 0)
	rec, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, rec.Date.Equal(monday.AddDays(1)))

	prev, err := c.GetRecord(ctx, attendance.RecordKey{EmployeeID: "emp-1", Date: monday})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusClockedIn, prev.Status)
}

func TestClock_DayFollowsConfiguredZone(t *testing.T) {
	c, _, fc := newTestClock(t)
	ctx := context.Background()

	// 23:30 in São Paulo is already Tuesday in UTC
	fc.Set(monday, 23, 30)
	rec, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", rec.Date.String())
}

func TestClock_PunchesTruncatedToSecond(t *testing.T) {
	c, _, fc := newTestClock(t)
	fc.now = monday.At(8, 0, brt).Add(1500 * time.Millisecond)

	rec, err := c.ClockIn(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ClockIn.Nanosecond())
}

// =============================================================================
// GET TODAY
// =============================================================================

func TestClock_GetToday_NoRecord(t *testing.T) {
	c, s, fc := newTestClock(t)
	ctx := context.Background()
	require.NoError(t, s.SaveBalance(ctx, "emp-1", hours("2.5")))

	fc.Set(monday, 10, 0)
	rec, err := c.GetToday(ctx, "emp-1")
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusNotStarted, rec.Status)
	assert.Nil(t, rec.ClockIn)
	assertHours(t, "0", rec.TotalHours)
	assertHours(t, "0", rec.OvertimeHours)
	assertHours(t, "2.5", rec.AccumulatedBalance)

	// nothing persisted
	stored, err := s.LoadRecord(ctx, rec.Key())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestClock_GetToday_LiveTotals(t *testing.T) {
	c, _, fc := newTestClock(t)
	ctx := context.Background()

	fc.Set(monday, 8, 0)
	_, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)

	fc.Set(monday, 11, 15)
	rec, err := c.GetToday(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "3.25", rec.TotalHours)
}

// =============================================================================
// STORE FAILURES
// =============================================================================

func TestClock_StoreUnavailable(t *testing.T) {
	backend := store.NewMemory()
	down := errors.New("connection refused")
	flaky := store.NewFlaky(backend, down)
	fc := &fakeClock{now: monday.At(8, 0, brt)}
	c := attendance.NewClock(flaky, attendance.WithNow(fc.Now), attendance.WithLocation(brt))
	ctx := context.Background()

	flaky.SetDown(true)
	_, err := c.ClockIn(ctx, "emp-1")
	assert.ErrorIs(t, err, attendance.ErrStoreUnavailable)
	assert.ErrorIs(t, err, down)
	assert.False(t, attendance.IsRejection(err))

	_, err = c.GetToday(ctx, "emp-1")
	assert.ErrorIs(t, err, attendance.ErrStoreUnavailable)

	flaky.SetDown(false)
	rec, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusClockedIn, rec.Status)
}

func TestClock_SaveFailure_NothingWritten(t *testing.T) {
	backend := store.NewMemory()
	flaky := store.NewFlaky(backend, errors.New("read-only filesystem"))
	flaky.FailSaves = true
	fc := &fakeClock{now: monday.At(8, 0, brt)}
	c := attendance.NewClock(flaky, attendance.WithNow(fc.Now), attendance.WithLocation(brt))
	ctx := context.Background()

	flaky.SetDown(true)
	_, err := c.ClockIn(ctx, "emp-1")
	assert.ErrorIs(t, err, attendance.ErrStoreUnavailable)

	stored, err := backend.LoadRecord(ctx, attendance.RecordKey{EmployeeID: "emp-1", Date: monday})
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestClock_ConcurrentClockIn_OnlyOneWins(t *testing.T) {
	c, _, _ := newTestClock(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, dup int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ClockIn(ctx, "emp-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, attendance.ErrDuplicatePunch):
				dup++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 19, dup)
}

// =============================================================================
// ADMINISTRATIVE OPERATIONS
// =============================================================================

func TestClock_EditRecord_FinalizedAdjustsBalance(t *testing.T) {
	// GIVEN: a closed 9h day (+1)
	c, s, fc := newTestClock(t)
	ctx := context.Background()
	rec := workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{18, 0})

	// WHEN: the admin corrects clock-out to 17:00
	out := monday.At(17, 0, brt)
	edited, err := c.EditRecord(ctx, rec.Key(), attendance.Punches{
		ClockIn: rec.ClockIn, LunchOut: rec.LunchOut, LunchIn: rec.LunchIn, ClockOut: &out,
	}, "admin@tempreco")
	require.NoError(t, err)

	// THEN: the day is 8h and the balance moves by -1
	assertHours(t, "8", edited.TotalHours)
	assertHours(t, "0", edited.AccumulatedBalance)
	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "0", bal)

	history, err := c.BalanceHistory(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, attendance.ReasonDayClosed, history[0].Reason)
	assert.Equal(t, attendance.ReasonRecordEdited, history[1].Reason)
	assertHours(t, "-1", history[1].Delta)
	assert.Equal(t, "admin@tempreco", history[1].Actor)
}

func TestClock_EditRecord_ReversesCommittedDeltaAfterPolicyChange(t *testing.T) {
	// GIVEN: a 9h day closed under the 8h policy (+1), then the policy moves to 9h
	c, s, fc := newTestClock(t)
	ctx := context.Background()
	rec := workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{18, 0})
	assertHours(t, "1", rec.DailyBalance)

	policy := attendance.DefaultPolicy()
	policy.DailyHours = hours("9")
	require.NoError(t, c.SetPolicy(ctx, policy))

	// WHEN: the admin removes the clock-out
	reopened, err := c.EditRecord(ctx, rec.Key(), attendance.Punches{
		ClockIn: rec.ClockIn, LunchOut: rec.LunchOut, LunchIn: rec.LunchIn,
	}, "admin")
	require.NoError(t, err)

	// THEN: exactly the +1 committed at clock-out is taken back
	assert.False(t, reopened.Finalized())
	assertHours(t, "0", reopened.DailyBalance)
	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "0", bal)

	// WHEN: the admin closes it again at 18:00 under the 9h policy
	out := monday.At(18, 0, brt)
	closed, err := c.EditRecord(ctx, rec.Key(), attendance.Punches{
		ClockIn: rec.ClockIn, LunchOut: rec.LunchOut, LunchIn: rec.LunchIn, ClockOut: &out,
	}, "admin")
	require.NoError(t, err)

	// THEN: the day commits 0 against the new target
	assertHours(t, "0", closed.DailyBalance)
	bal, err = s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "0", bal)
}

func TestClock_EditRecord_ClosingOpenDayCommits(t *testing.T) {
	c, s, fc := newTestClock(t)
	ctx := context.Background()

	fc.Set(monday, 8, 0)
	rec, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)

	out := monday.At(14, 0, brt)
	fc.Set(monday.AddDays(1), 9, 0)
	edited, err := c.EditRecord(ctx, rec.Key(), attendance.Punches{ClockIn: rec.ClockIn, ClockOut: &out}, "admin")
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusClockedOut, edited.Status)
	assertHours(t, "6", edited.TotalHours)
	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "-2", bal)
}

func TestClock_EditRecord_Invalid(t *testing.T) {
	c, s, fc := newTestClock(t)
	ctx := context.Background()
	rec := workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{18, 0})

	early := monday.At(7, 0, brt)
	_, err := c.EditRecord(ctx, rec.Key(), attendance.Punches{ClockIn: rec.ClockIn, ClockOut: &early}, "admin")
	assert.ErrorIs(t, err, attendance.ErrOutOfOrderPunch)

	_, err = c.EditRecord(ctx, attendance.RecordKey{EmployeeID: "emp-1", Date: monday.AddDays(3)}, attendance.Punches{}, "admin")
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)

	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "1", bal)
}

func TestClock_DeleteRecord_KeepsBalance(t *testing.T) {
	c, s, fc := newTestClock(t)
	ctx := context.Background()
	rec := workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{18, 0})

	require.NoError(t, c.DeleteRecord(ctx, rec.Key()))

	stored, err := s.LoadRecord(ctx, rec.Key())
	require.NoError(t, err)
	assert.Nil(t, stored)
	bal, err := s.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "1", bal)

	assert.ErrorIs(t, c.DeleteRecord(ctx, rec.Key()), attendance.ErrRecordNotFound)
}

func TestClock_AdjustBalance(t *testing.T) {
	c, _, _ := newTestClock(t)
	ctx := context.Background()

	bal, err := c.AdjustBalance(ctx, "emp-1", hours("-1.5"), "banco de horas compensado", "admin")
	require.NoError(t, err)
	assertHours(t, "-1.5", bal)

	got, err := c.Balance(ctx, "emp-1")
	require.NoError(t, err)
	assertHours(t, "-1.5", got)

	history, err := c.BalanceHistory(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, attendance.ReasonManualAdjustment, history[0].Reason)
	assert.Equal(t, "banco de horas compensado", history[0].Note)
}

func TestClock_ListRecords(t *testing.T) {
	c, _, fc := newTestClock(t)
	ctx := context.Background()
	workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{17, 0})
	workDay(t, c, fc, "emp-2", monday, [2]int{9, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{18, 0})
	fc.Set(monday.AddDays(1), 8, 0)
	_, err := c.ClockIn(ctx, "emp-1")
	require.NoError(t, err)

	all, err := c.ListRecords(ctx, attendance.RecordQuery{EmployeeID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Date.Equal(monday.AddDays(1)), "newest first")

	open, err := c.ListRecords(ctx, attendance.RecordQuery{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, attendance.EmployeeID("emp-1"), open[0].EmployeeID)
}

func TestClock_SetPolicy(t *testing.T) {
	c, _, fc := newTestClock(t)
	ctx := context.Background()

	p := attendance.DefaultPolicy()
	p.DailyHours = hours("6")
	require.NoError(t, c.SetPolicy(ctx, p))

	rec := workDay(t, c, fc, "emp-1", monday, [2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{17, 0})
	assertHours(t, "2", rec.AccumulatedBalance)

	p.DailyHours = decimal.Zero
	assert.ErrorIs(t, c.SetPolicy(ctx, p), attendance.ErrInvalidPolicy)
}
