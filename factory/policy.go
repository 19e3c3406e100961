/*
Package factory provides JSON to Go work hours policy conversion.

PURPOSE:
  The work hours policy is stored as a JSON blob (settings table, admin
  screen). The factory turns that blob into an attendance.WorkHoursPolicy
  and back, so the engine never parses JSON itself.

JSON SCHEMA:
  {
    "dailyHours": 8,
    "lunchDuration": 60,
    "weeklyHours": 40,
    "workingDays": [1, 2, 3, 4, 5]
  }

  workingDays uses 0 = Sunday ... 6 = Saturday.

DEFAULTS:
  Keys missing from the blob keep the default value (8h, 60 min, 40h,
  Monday to Friday). An empty or blank blob is the default policy.

USAGE:
  policy, err := factory.ParseWorkHours(blob)
  blob, err := factory.WorkHoursJSON(policy)

SEE ALSO:
  - attendance/policy.go: WorkHoursPolicy and its validation
  - store/sqlite/sqlite.go: Stores the blob under the "work_hours" key
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tempreco/ponto/attendance"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// WorkHoursJSONDoc is the JSON representation of the work hours policy.
// Pointer fields distinguish "absent" from zero.
type WorkHoursJSONDoc struct {
	DailyHours    *json.Number `json:"dailyHours,omitempty"`
	LunchDuration *int         `json:"lunchDuration,omitempty"`
	WeeklyHours   *json.Number `json:"weeklyHours,omitempty"`
	WorkingDays   *[]int       `json:"workingDays,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseWorkHours merges blob over the default policy and validates the result.
func ParseWorkHours(blob string) (attendance.WorkHoursPolicy, error) {
	policy := attendance.DefaultPolicy()
	if strings.TrimSpace(blob) == "" {
		return policy, nil
	}

	var doc WorkHoursJSONDoc
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return attendance.WorkHoursPolicy{}, fmt.Errorf("%w: invalid JSON: %v", attendance.ErrInvalidPolicy, err)
	}
	return Merge(policy, doc)
}

// Merge applies the fields present in doc onto base.
func Merge(base attendance.WorkHoursPolicy, doc WorkHoursJSONDoc) (attendance.WorkHoursPolicy, error) {
	if doc.DailyHours != nil {
		d, err := decimal.NewFromString(doc.DailyHours.String())
		if err != nil {
			return attendance.WorkHoursPolicy{}, fmt.Errorf("%w: dailyHours: %v", attendance.ErrInvalidPolicy, err)
		}
		base.DailyHours = d
	}
	if doc.LunchDuration != nil {
		base.LunchMinutes = *doc.LunchDuration
	}
	if doc.WeeklyHours != nil {
		d, err := decimal.NewFromString(doc.WeeklyHours.String())
		if err != nil {
			return attendance.WorkHoursPolicy{}, fmt.Errorf("%w: weeklyHours: %v", attendance.ErrInvalidPolicy, err)
		}
		base.WeeklyHours = d
	}
	if doc.WorkingDays != nil {
		days, err := weekdays(*doc.WorkingDays)
		if err != nil {
			return attendance.WorkHoursPolicy{}, err
		}
		base.WorkingDays = days
	}
	if err := base.Validate(); err != nil {
		return attendance.WorkHoursPolicy{}, err
	}
	return base, nil
}

func weekdays(raw []int) ([]time.Weekday, error) {
	seen := make(map[int]bool, len(raw))
	days := make([]time.Weekday, 0, len(raw))
	for _, d := range raw {
		if d < 0 || d > 6 {
			return nil, fmt.Errorf("%w: working day %d out of range 0-6", attendance.ErrInvalidPolicy, d)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, time.Weekday(d))
	}
	return days, nil
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// ToDoc converts a policy to its JSON document with every field set.
func ToDoc(p attendance.WorkHoursPolicy) WorkHoursJSONDoc {
	daily, weekly := json.Number(p.DailyHours.String()), json.Number(p.WeeklyHours.String())
	lunch := p.LunchMinutes
	days := make([]int, len(p.WorkingDays))
	for i, d := range p.WorkingDays {
		days[i] = int(d)
	}
	return WorkHoursJSONDoc{
		DailyHours:    &daily,
		LunchDuration: &lunch,
		WeeklyHours:   &weekly,
		WorkingDays:   &days,
	}
}

// WorkHoursJSON serializes p in the blob format ParseWorkHours reads.
func WorkHoursJSON(p attendance.WorkHoursPolicy) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(ToDoc(p))
	if err != nil {
		return "", fmt.Errorf("marshal work hours: %w", err)
	}
	return string(b), nil
}
