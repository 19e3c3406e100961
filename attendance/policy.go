package attendance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WorkHoursPolicy is the company-wide work schedule the calculator measures
// days against. It is read-only to the engine.
type WorkHoursPolicy struct {
	DailyHours   decimal.Decimal
	LunchMinutes int
	WeeklyHours  decimal.Decimal
	WorkingDays  []time.Weekday
}

// DefaultPolicy is 8h a day, 60 minute lunch, 40h a week, Monday to Friday.
func DefaultPolicy() WorkHoursPolicy {
	return WorkHoursPolicy{
		DailyHours:   decimal.NewFromInt(8),
		LunchMinutes: 60,
		WeeklyHours:  decimal.NewFromInt(40),
		WorkingDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

var maxDailyHours = decimal.NewFromInt(24)

func (p WorkHoursPolicy) Validate() error {
	if !p.DailyHours.IsPositive() || p.DailyHours.GreaterThan(maxDailyHours) {
		return fmt.Errorf("%w: daily hours must be in (0, 24], got %s", ErrInvalidPolicy, p.DailyHours)
	}
	if p.LunchMinutes < 0 {
		return fmt.Errorf("%w: lunch duration cannot be negative", ErrInvalidPolicy)
	}
	if p.WeeklyHours.IsNegative() {
		return fmt.Errorf("%w: weekly hours cannot be negative", ErrInvalidPolicy)
	}
	if len(p.WorkingDays) == 0 {
		return fmt.Errorf("%w: at least one working day is required", ErrInvalidPolicy)
	}
	for _, wd := range p.WorkingDays {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidPolicy, wd)
		}
	}
	return nil
}

func (p WorkHoursPolicy) IsWorkingDay(d Day) bool {
	wd := d.Weekday()
	for _, w := range p.WorkingDays {
		if w == wd {
			return true
		}
	}
	return false
}

// LunchAllowance is the expected lunch length.
func (p WorkHoursPolicy) LunchAllowance() time.Duration {
	return time.Duration(p.LunchMinutes) * time.Minute
}
