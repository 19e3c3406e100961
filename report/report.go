/*
Package report turns attendance records into tabular exports.

Rows are built once by BuildRows and rendered by WriteExcel or WritePDF,
so both formats always carry the same columns in the same order.
*/
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tempreco/ponto/attendance"
)

var Columns = []string{"Funcionário", "Data", "Entrada", "Saída almoço", "Volta almoço", "Saída", "Horas", "Saldo", "Status"}

// Row is one record ready for display. Missing punches are empty strings.
type Row struct {
	Employee   string
	Date       string
	ClockIn    string
	LunchOut   string
	LunchIn    string
	ClockOut   string
	TotalHours decimal.Decimal
	Balance    decimal.Decimal
	Status     string
}

func (r Row) cells() []string {
	return []string{r.Employee, r.Date, r.ClockIn, r.LunchOut, r.LunchIn, r.ClockOut,
		r.TotalHours.StringFixed(2), r.Balance.StringFixed(2), r.Status}
}

// BuildRows sorts by date, then employee name. Employees missing from names
// are shown by ID. Punch times are rendered in loc.
func BuildRows(records []attendance.Record, names map[string]string, loc *time.Location) []Row {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		name, ok := names[string(rec.EmployeeID)]
		if !ok || name == "" {
			name = string(rec.EmployeeID)
		}
		rows = append(rows, Row{
			Employee:   name,
			Date:       rec.Date.String(),
			ClockIn:    hhmm(rec.ClockIn, loc),
			LunchOut:   hhmm(rec.LunchOut, loc),
			LunchIn:    hhmm(rec.LunchIn, loc),
			ClockOut:   hhmm(rec.ClockOut, loc),
			TotalHours: rec.TotalHours,
			Balance:    rec.AccumulatedBalance,
			Status:     string(rec.Status),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Employee < rows[j].Employee
	})
	return rows
}

func hhmm(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("15:04")
}

// =============================================================================
// WEEKLY SUMMARY
// =============================================================================

type WeekSummary struct {
	EmployeeID    attendance.EmployeeID `json:"employeeId"`
	WeekStart     string                `json:"weekStart"`
	DaysWorked    int                   `json:"daysWorked"`
	WorkedHours   decimal.Decimal       `json:"workedHours"`
	ExpectedHours decimal.Decimal       `json:"expectedHours"`
	Difference    decimal.Decimal       `json:"difference"`
}

// Summarize adds up the hours worked on the policy's working days of the
// Monday-started week containing week. Records of other employees or
// other weeks are ignored.
func Summarize(id attendance.EmployeeID, records []attendance.Record, policy attendance.WorkHoursPolicy, week attendance.Day) WeekSummary {
	start := week.StartOfWeek()
	end := start.AddDays(6)
	s := WeekSummary{
		EmployeeID:    id,
		WeekStart:     start.String(),
		WorkedHours:   decimal.Zero,
		ExpectedHours: policy.WeeklyHours,
	}
	for _, rec := range records {
		if rec.EmployeeID != id || rec.Date.Before(start) || rec.Date.After(end) {
			continue
		}
		if !policy.IsWorkingDay(rec.Date) || rec.ClockIn == nil {
			continue
		}
		s.DaysWorked++
		s.WorkedHours = s.WorkedHours.Add(rec.TotalHours)
	}
	s.Difference = s.WorkedHours.Sub(s.ExpectedHours)
	return s
}
