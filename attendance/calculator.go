package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

var secondsPerHour = decimal.NewFromInt(3600)

// Totals is the outcome of measuring one record against the policy.
type Totals struct {
	TotalHours     decimal.Decimal // worked hours, clamped at zero
	LunchDeduction time.Duration
	DailyBalance   decimal.Decimal // TotalHours - policy.DailyHours

	// ProjectedOvertime is max(0, prior + DailyBalance). Display only.
	ProjectedOvertime decimal.Decimal
}

// Calculate measures r against policy. Missing clock-out (and an open lunch
// break) are measured up to now. prior is the employee's committed balance.
// A day without clock-in measures as all zeros: nothing has started yet.
func Calculate(r Record, policy WorkHoursPolicy, prior decimal.Decimal, now time.Time) Totals {
	if r.ClockIn == nil {
		return Totals{
			TotalHours:        decimal.Zero,
			DailyBalance:      decimal.Zero,
			ProjectedOvertime: decimal.Zero,
		}
	}

	end := now
	if r.ClockOut != nil {
		end = *r.ClockOut
	}
	elapsed := end.Sub(*r.ClockIn)

	var lunch time.Duration
	switch {
	case r.LunchOut != nil && r.LunchIn != nil:
		lunch = r.LunchIn.Sub(*r.LunchOut)
	case r.LunchOut != nil && r.Status == StatusLunchBreak:
		lunch = now.Sub(*r.LunchOut)
	}

	worked := hoursOf(elapsed - lunch)
	if worked.IsNegative() {
		worked = decimal.Zero
	}
	daily := worked.Sub(policy.DailyHours)

	return Totals{
		TotalHours:        worked,
		LunchDeduction:    lunch,
		DailyBalance:      daily,
		ProjectedOvertime: decimal.Max(decimal.Zero, prior.Add(daily)),
	}
}

// CommitBalance folds a closed day into the running balance. Signed, never clamped.
func CommitBalance(prior decimal.Decimal, t Totals) decimal.Decimal {
	return prior.Add(t.DailyBalance)
}

// applyTotals writes live totals onto r.
func applyTotals(r Record, t Totals, prior decimal.Decimal) Record {
	r.TotalHours = t.TotalHours
	r.OvertimeHours = t.ProjectedOvertime
	r.AccumulatedBalance = prior
	r.DailyBalance = decimal.Zero
	return r
}

// applyCommit writes committed totals onto a closed record.
func applyCommit(r Record, t Totals, balance decimal.Decimal) Record {
	r.TotalHours = t.TotalHours
	r.AccumulatedBalance = balance
	r.DailyBalance = t.DailyBalance
	r.OvertimeHours = decimal.Max(decimal.Zero, balance)
	return r
}

func hoursOf(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d / time.Second)).Div(secondsPerHour)
}
