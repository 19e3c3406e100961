package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/directory"
	"github.com/tempreco/ponto/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	brt    = time.FixedZone("BRT", -3*60*60)
	monday = attendance.NewDay(2025, time.March, 10)
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func at(d attendance.Day, h, m int) *time.Time {
	t := d.At(h, m, brt)
	return &t
}

func closedRecord(id attendance.EmployeeID, d attendance.Day) attendance.Record {
	return attendance.Record{
		EmployeeID:         id,
		Date:               d,
		ClockIn:            at(d, 8, 0),
		LunchOut:           at(d, 12, 0),
		LunchIn:            at(d, 13, 0),
		ClockOut:           at(d, 18, 0),
		TotalHours:         decimal.NewFromInt(9),
		OvertimeHours:      decimal.NewFromInt(1),
		AccumulatedBalance: decimal.NewFromInt(1),
		DailyBalance:       decimal.NewFromInt(1),
		Status:             attendance.StatusClockedOut,
		UpdatedAt:          d.At(18, 0, time.UTC),
	}
}

// =============================================================================
// RECORD STORE
// =============================================================================

func TestStore_RecordRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := closedRecord("emp-1", monday)

	require.NoError(t, store.SaveRecord(ctx, rec))

	got, err := store.LoadRecord(ctx, rec.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.EmployeeID, got.EmployeeID)
	assert.True(t, got.Date.Equal(monday))
	assert.True(t, rec.ClockIn.Equal(*got.ClockIn))
	assert.True(t, rec.LunchOut.Equal(*got.LunchOut))
	assert.True(t, rec.LunchIn.Equal(*got.LunchIn))
	assert.True(t, rec.ClockOut.Equal(*got.ClockOut))
	assert.True(t, rec.TotalHours.Equal(got.TotalHours))
	assert.True(t, rec.AccumulatedBalance.Equal(got.AccumulatedBalance))
	assert.True(t, rec.DailyBalance.Equal(got.DailyBalance))
	assert.Equal(t, attendance.StatusClockedOut, got.Status)
}

func TestStore_RecordUpsertAndMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	missing, err := store.LoadRecord(ctx, attendance.RecordKey{EmployeeID: "emp-1", Date: monday})
	require.NoError(t, err)
	assert.Nil(t, missing)

	open := attendance.Record{EmployeeID: "emp-1", Date: monday, ClockIn: at(monday, 8, 0), Status: attendance.StatusClockedIn,
		TotalHours: decimal.Zero, OvertimeHours: decimal.Zero, AccumulatedBalance: decimal.Zero}
	require.NoError(t, store.SaveRecord(ctx, open))

	// Re-open clears the later punches, the upsert must write NULLs.
	require.NoError(t, store.SaveRecord(ctx, closedRecord("emp-1", monday)))
	require.NoError(t, store.SaveRecord(ctx, open))

	got, err := store.LoadRecord(ctx, open.Key())
	require.NoError(t, err)
	assert.Nil(t, got.ClockOut)
	assert.Nil(t, got.LunchOut)
	assert.Equal(t, attendance.StatusClockedIn, got.Status)
}

func TestStore_BalanceDefaultsToZero(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bal, err := store.LoadBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	require.NoError(t, store.SaveBalance(ctx, "emp-1", decimal.RequireFromString("-2.25")))
	bal, err = store.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "-2.25", bal.String())
}

func TestStore_PolicyDefaultsAndSave(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p, err := store.LoadPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, attendance.DefaultPolicy(), p)

	p.LunchMinutes = 30
	p.WorkingDays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
	require.NoError(t, store.SavePolicy(ctx, p))

	got, err := store.LoadPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, got.LunchMinutes)
	assert.Len(t, got.WorkingDays, 6)

	bad := p
	bad.DailyHours = decimal.Zero
	assert.ErrorIs(t, store.SavePolicy(ctx, bad), attendance.ErrInvalidPolicy)
}

func TestStore_ListRecords_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveRecord(ctx, closedRecord("emp-1", monday.AddDays(i))))
	}
	require.NoError(t, store.SaveRecord(ctx, closedRecord("emp-2", monday)))
	open := attendance.Record{EmployeeID: "emp-2", Date: monday.AddDays(1), ClockIn: at(monday.AddDays(1), 8, 0),
		Status: attendance.StatusLunchBreak, LunchOut: at(monday.AddDays(1), 12, 0),
		TotalHours: decimal.Zero, OvertimeHours: decimal.Zero, AccumulatedBalance: decimal.Zero}
	require.NoError(t, store.SaveRecord(ctx, open))

	all, err := store.ListRecords(ctx, attendance.RecordQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 7)
	assert.True(t, all[0].Date.Equal(monday.AddDays(4)), "newest first")

	emp1, err := store.ListRecords(ctx, attendance.RecordQuery{EmployeeID: "emp-1", From: monday.AddDays(1), To: monday.AddDays(3)})
	require.NoError(t, err)
	assert.Len(t, emp1, 3)

	openOnly, err := store.ListRecords(ctx, attendance.RecordQuery{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, openOnly, 1)
	assert.Equal(t, attendance.EmployeeID("emp-2"), openOnly[0].EmployeeID)

	limited, err := store.ListRecords(ctx, attendance.RecordQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_DeleteRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := closedRecord("emp-1", monday)
	require.NoError(t, store.SaveRecord(ctx, rec))

	require.NoError(t, store.DeleteRecord(ctx, rec.Key()))
	assert.ErrorIs(t, store.DeleteRecord(ctx, rec.Key()), attendance.ErrRecordNotFound)
}

func TestStore_WithTx_RollbackOnError(t *testing.T) {
	// GIVEN: a transaction that saves a record, then fails
	store := newTestStore(t)
	ctx := context.Background()
	rec := closedRecord("emp-1", monday)
	boom := errors.New("boom")

	// WHEN
	err := store.WithTx(ctx, func(tx attendance.Store) error {
		require.NoError(t, tx.SaveRecord(ctx, rec))
		require.NoError(t, tx.SaveBalance(ctx, "emp-1", decimal.NewFromInt(1)))
		return boom
	})

	// THEN: nothing is visible
	assert.ErrorIs(t, err, boom)
	got, err := store.LoadRecord(ctx, rec.Key())
	require.NoError(t, err)
	assert.Nil(t, got)
	bal, err := store.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestStore_Journal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := monday.At(18, 0, time.UTC)

	for i, reason := range []attendance.BalanceReason{attendance.ReasonDayClosed, attendance.ReasonManualAdjustment} {
		require.NoError(t, store.AppendBalanceEntry(ctx, attendance.BalanceEntry{
			ID:         []string{"e1", "e2"}[i],
			EmployeeID: "emp-1",
			Date:       monday,
			Delta:      decimal.NewFromInt(int64(i + 1)),
			Balance:    decimal.NewFromInt(int64(i + 1)),
			Reason:     reason,
			Actor:      "admin",
			CreatedAt:  created.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := store.ListBalanceEntries(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, attendance.ReasonManualAdjustment, entries[1].Reason)
	assert.Equal(t, "admin", entries[1].Actor)
}

// =============================================================================
// CLOCK ON SQLITE
// =============================================================================

func TestStore_ClockFullDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := monday.At(8, 0, brt)
	clock := attendance.NewClock(store, attendance.WithNow(func() time.Time { return now }), attendance.WithLocation(brt))

	steps := []struct {
		h, m int
		fn   func(context.Context, attendance.EmployeeID) (attendance.Record, error)
	}{
		{8, 0, clock.ClockIn},
		{12, 0, clock.LunchOut},
		{13, 0, clock.LunchIn},
		{18, 0, clock.ClockOut},
	}
	for _, s := range steps {
		now = monday.At(s.h, s.m, brt)
		_, err := s.fn(ctx, "emp-1")
		require.NoError(t, err)
	}

	bal, err := store.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "1", bal.String())

	entries, err := clock.BalanceHistory(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, attendance.ReasonDayClosed, entries[0].Reason)

	today, err := clock.GetToday(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusClockedOut, today.Status)
	assert.Equal(t, "9", today.TotalHours.String())
}

// =============================================================================
// DIRECTORY
// =============================================================================

func TestStore_DirectoryCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := directory.NewService(store)

	company, err := svc.CreateCompany(ctx, directory.Company{Name: directory.DefaultCompanyName, CNPJ: "12.345.678/0001-90"})
	require.NoError(t, err)

	emp, err := svc.CreateEmployee(ctx, directory.Employee{
		Name: "Maria Souza", Email: "maria@tempreco.com.br", Role: "Caixa", Department: "Loja",
		Age: 31, Gender: directory.GenderFemale, CompanyID: company.ID,
	})
	require.NoError(t, err)

	got, err := svc.Employee(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Souza", got.Name)
	assert.Equal(t, 31, got.Age)
	assert.Equal(t, directory.GenderFemale, got.Gender)
	assert.Equal(t, company.ID, got.CompanyID)

	user, err := svc.RegisterUser(ctx, directory.NewUser{
		Name: "Maria Souza", Email: "Maria@TemPreco.com.br", Password: "segredo1",
		Type: directory.UserEmployee, EmployeeID: emp.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "maria@tempreco.com.br", user.Email)

	_, err = svc.RegisterUser(ctx, directory.NewUser{
		Name: "Outra", Email: "maria@tempreco.com.br", Password: "segredo2", Type: directory.UserAdmin,
	})
	assert.ErrorIs(t, err, directory.ErrEmailTaken)

	authed, err := svc.Authenticate(ctx, "maria@tempreco.com.br", "segredo1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	// Deleting the employee removes the linked login.
	require.NoError(t, svc.DeleteEmployee(ctx, emp.ID))
	_, err = svc.User(ctx, user.ID)
	assert.ErrorIs(t, err, directory.ErrUserNotFound)
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRecord(ctx, closedRecord("emp-1", monday)))
	require.NoError(t, store.SaveBalance(ctx, "emp-1", decimal.NewFromInt(3)))

	require.NoError(t, store.Reset(ctx))

	all, err := store.ListRecords(ctx, attendance.RecordQuery{})
	require.NoError(t, err)
	assert.Empty(t, all)
	bal, err := store.LoadBalance(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}
