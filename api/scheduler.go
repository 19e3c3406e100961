/*
scheduler.go - Open shift monitor

PURPOSE:
  Periodically looks for attendance records that need a human: shifts
  left open on a past day and lunch breaks running longer than the
  policy's lunch allowance. It only reports; records are never closed or
  edited, an unfinished day stays pending until an admin edits it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Keeps the alerts of the latest run in memory
  - RunNow is exposed to admins via POST /api/alerts/run

USAGE:
  monitor := NewOpenShiftMonitor(clock, time.Now, logger)
  monitor.Start()
  // ... later
  monitor.Stop()
*/
package api

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tempreco/ponto/attendance"
)

type AlertKind string

const (
	AlertOpenShift AlertKind = "open-shift"
	AlertLongLunch AlertKind = "long-lunch"
)

type Alert struct {
	Kind       AlertKind `json:"kind"`
	EmployeeID string    `json:"employee_id"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	Since      time.Time `json:"since"`
	Message    string    `json:"message"`
}

// OpenShiftMonitor reports unfinished days.
type OpenShiftMonitor struct {
	Clock         *attendance.Clock
	CheckInterval time.Duration
	Enabled       bool

	now func() time.Time
	log *slog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	alertsMu sync.RWMutex
	alerts   []Alert
	lastRun  time.Time
}

func NewOpenShiftMonitor(clock *attendance.Clock, now func() time.Time, logger *slog.Logger) *OpenShiftMonitor {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenShiftMonitor{
		Clock:         clock,
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
		now:           now,
		log:           logger.With("component", "monitor"),
	}
}

// Start begins the periodic checks.
func (m *OpenShiftMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.log.Info("monitor disabled, not starting")
		return
	}
	if m.ticker != nil {
		return
	}
	m.ticker = time.NewTicker(m.CheckInterval)
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run()

	m.log.Info("monitor started", "interval", m.CheckInterval.String())
}

// Stop stops the monitor and waits for a running check to finish.
func (m *OpenShiftMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.ticker = nil
		m.log.Info("monitor stopped")
	}
}

func (m *OpenShiftMonitor) run() {
	defer m.wg.Done()

	m.check(context.Background())

	for {
		select {
		case <-m.ticker.C:
			m.check(context.Background())
		case <-m.stop:
			return
		}
	}
}

func (m *OpenShiftMonitor) check(ctx context.Context) {
	if _, err := m.RunNow(ctx); err != nil {
		m.log.Error("monitor check failed", "error", err)
	}
}

// RunNow checks immediately and replaces the stored alerts.
func (m *OpenShiftMonitor) RunNow(ctx context.Context) ([]Alert, error) {
	open, err := m.Clock.ListRecords(ctx, attendance.RecordQuery{OpenOnly: true})
	if err != nil {
		return nil, err
	}
	policy, err := m.Clock.Policy(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	today := attendance.DayOf(now, m.Clock.Location())
	alerts := Detect(open, policy, today, now)

	m.alertsMu.Lock()
	m.alerts = alerts
	m.lastRun = now
	m.alertsMu.Unlock()

	for _, a := range alerts {
		m.log.Warn("attendance alert", "kind", a.Kind, "employee_id", a.EmployeeID, "date", a.Date)
	}
	return alerts, nil
}

// Alerts returns the alerts of the latest run.
func (m *OpenShiftMonitor) Alerts() []Alert {
	m.alertsMu.RLock()
	defer m.alertsMu.RUnlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}

func (m *OpenShiftMonitor) LastRun() time.Time {
	m.alertsMu.RLock()
	defer m.alertsMu.RUnlock()
	return m.lastRun
}

// Detect finds open shifts from days before today and lunch breaks that
// exceed the policy's allowance. Output is sorted by date, then employee.
func Detect(records []attendance.Record, policy attendance.WorkHoursPolicy, today attendance.Day, now time.Time) []Alert {
	var alerts []Alert
	for _, rec := range records {
		if !rec.Status.MidShift() || rec.ClockIn == nil {
			continue
		}
		switch {
		case rec.Date.Before(today):
			alerts = append(alerts, Alert{
				Kind:       AlertOpenShift,
				EmployeeID: string(rec.EmployeeID),
				Date:       rec.Date.String(),
				Status:     string(rec.Status),
				Since:      *rec.ClockIn,
				Message:    "shift was never clocked out",
			})
		case rec.Status == attendance.StatusLunchBreak && rec.LunchOut != nil:
			if now.Sub(*rec.LunchOut) > policy.LunchAllowance() {
				alerts = append(alerts, Alert{
					Kind:       AlertLongLunch,
					EmployeeID: string(rec.EmployeeID),
					Date:       rec.Date.String(),
					Status:     string(rec.Status),
					Since:      *rec.LunchOut,
					Message:    "lunch break longer than " + policy.LunchAllowance().String(),
				})
			}
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Date != alerts[j].Date {
			return alerts[i].Date < alerts[j].Date
		}
		return alerts[i].EmployeeID < alerts[j].EmployeeID
	})
	return alerts
}
