package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempreco/ponto/attendance"
)

func openRecord(id attendance.EmployeeID, d attendance.Day, status attendance.Status) attendance.Record {
	rec := attendance.NewRecord(attendance.RecordKey{EmployeeID: id, Date: d}, decimal.Zero)
	in := d.At(8, 0, brt)
	rec.ClockIn = &in
	if status == attendance.StatusLunchBreak {
		out := d.At(12, 0, brt)
		rec.LunchOut = &out
	}
	rec.Status = status
	return rec
}

func TestDetect(t *testing.T) {
	// GIVEN: yesterday's open shift, a long lunch and a short lunch today
	today := monday.AddDays(1)
	now := today.At(13, 30, brt)
	records := []attendance.Record{
		openRecord("e2", today, attendance.StatusLunchBreak),
		openRecord("e1", monday, attendance.StatusClockedIn),
		openRecord("e3", today, attendance.StatusClockedIn),
	}
	short := openRecord("e4", today, attendance.StatusLunchBreak)
	lunch := today.At(13, 0, brt)
	short.LunchOut = &lunch
	records = append(records, short)

	// WHEN
	alerts := Detect(records, attendance.DefaultPolicy(), today, now)

	// THEN
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertOpenShift, alerts[0].Kind)
	assert.Equal(t, "e1", alerts[0].EmployeeID)
	assert.Equal(t, AlertLongLunch, alerts[1].Kind)
	assert.Equal(t, "e2", alerts[1].EmployeeID)
}

func TestMonitor_RunNowViaAPI(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken()
	token, empID := env.employeeToken(admin, "Ana", "ana@tempreco.com.br")

	// GIVEN: Monday's shift left open
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/me/clock-in", token, nil).Code)
	env.at(monday.AddDays(1), 9, 0)

	// WHEN
	rec := env.do(http.MethodPost, "/api/alerts/run", admin, nil)

	// THEN: reported, and the record is untouched
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	alerts := decode[[]Alert](t, rec)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertOpenShift, alerts[0].Kind)
	assert.Equal(t, empID, alerts[0].EmployeeID)

	listed := decode[[]Alert](t, env.do(http.MethodGet, "/api/alerts", admin, nil))
	assert.Len(t, listed, 1)

	stored, err := env.h.Clock.GetRecord(context.Background(), attendance.RecordKey{EmployeeID: attendance.EmployeeID(empID), Date: monday})
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusClockedIn, stored.Status)
}

func TestMonitor_StartStop(t *testing.T) {
	env := newTestEnv(t)
	m := env.h.Monitor
	m.CheckInterval = time.Hour

	m.Start()
	require.Eventually(t, func() bool { return !m.LastRun().IsZero() }, time.Second, 10*time.Millisecond)
	m.Stop()
	m.Stop()

	m.Enabled = false
	m.Start()
	m.Stop()
}
