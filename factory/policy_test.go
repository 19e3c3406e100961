package factory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/factory"
)

func TestParseWorkHours_EmptyBlobIsDefault(t *testing.T) {
	for _, blob := range []string{"", "  ", "{}"} {
		p, err := factory.ParseWorkHours(blob)
		require.NoError(t, err)
		assert.Equal(t, attendance.DefaultPolicy(), p, "blob %q", blob)
	}
}

func TestParseWorkHours_MergesOverDefaults(t *testing.T) {
	// GIVEN: a blob that only changes the daily hours and working days
	blob := `{"dailyHours": 6.5, "workingDays": [1, 2, 3, 4, 5, 6]}`

	// WHEN: parsed
	p, err := factory.ParseWorkHours(blob)

	// THEN: the rest keeps the defaults
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("6.5").Equal(p.DailyHours))
	assert.Equal(t, 60, p.LunchMinutes)
	assert.True(t, decimal.NewFromInt(40).Equal(p.WeeklyHours))
	assert.Len(t, p.WorkingDays, 6)
	assert.Contains(t, p.WorkingDays, time.Saturday)
}

func TestParseWorkHours_Invalid(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{"malformed", `{"dailyHours": `},
		{"zero daily hours", `{"dailyHours": 0}`},
		{"over 24 hours", `{"dailyHours": 25}`},
		{"negative lunch", `{"lunchDuration": -10}`},
		{"no working days", `{"workingDays": []}`},
		{"weekday out of range", `{"workingDays": [1, 7]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseWorkHours(tt.blob)
			assert.ErrorIs(t, err, attendance.ErrInvalidPolicy)
		})
	}
}

func TestParseWorkHours_DuplicateDaysCollapsed(t *testing.T) {
	p, err := factory.ParseWorkHours(`{"workingDays": [1, 1, 2]}`)
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday}, p.WorkingDays)
}

func TestWorkHoursJSON_RoundTrip(t *testing.T) {
	p := attendance.DefaultPolicy()
	p.LunchMinutes = 30
	p.DailyHours = decimal.RequireFromString("7.5")

	blob, err := factory.WorkHoursJSON(p)
	require.NoError(t, err)
	assert.Contains(t, blob, `"lunchDuration":30`)
	assert.Contains(t, blob, `"workingDays":[1,2,3,4,5]`)

	back, err := factory.ParseWorkHours(blob)
	require.NoError(t, err)
	assert.True(t, p.DailyHours.Equal(back.DailyHours))
	assert.Equal(t, p.LunchMinutes, back.LunchMinutes)
	assert.Equal(t, p.WorkingDays, back.WorkingDays)
}

func TestWorkHoursJSON_RejectsInvalid(t *testing.T) {
	p := attendance.DefaultPolicy()
	p.WorkingDays = nil
	_, err := factory.WorkHoursJSON(p)
	assert.ErrorIs(t, err, attendance.ErrInvalidPolicy)
}
