/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

Hours and balances travel as decimal strings ("1.25") so clients never
see float rounding. Punch times are RFC3339 in the configured time zone.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: WorkHoursJSONDoc, the settings body
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/directory"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt string         `json:"expires_at"`
	User      directory.User `json:"user"`
}

// CreateUserRequest is the admin form for a new login.
type CreateUserRequest struct {
	Name       string             `json:"name"`
	Email      string             `json:"email"`
	Password   string             `json:"password"`
	Type       directory.UserType `json:"type"`
	EmployeeID string             `json:"employee_id"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// RecordDTO represents one day of attendance.
type RecordDTO struct {
	EmployeeID         string  `json:"employee_id"`
	Date               string  `json:"date"`
	ClockIn            *string `json:"clock_in"`
	LunchOut           *string `json:"lunch_out"`
	LunchIn            *string `json:"lunch_in"`
	ClockOut           *string `json:"clock_out"`
	TotalHours         string  `json:"total_hours"`
	OvertimeHours      string  `json:"overtime_hours"`
	AccumulatedBalance string  `json:"accumulated_balance"`
	DailyBalance       string  `json:"daily_balance"`
	Status             string  `json:"status"`
	Finalized          bool    `json:"finalized"`
	UpdatedAt          string  `json:"updated_at,omitempty"`
}

type BalanceDTO struct {
	EmployeeID string            `json:"employee_id"`
	Balance    string            `json:"balance"`
	History    []BalanceEntryDTO `json:"history"`
}

type BalanceEntryDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Delta     string `json:"delta"`
	Balance   string `json:"balance"`
	Reason    string `json:"reason"`
	Note      string `json:"note,omitempty"`
	Actor     string `json:"actor,omitempty"`
	CreatedAt string `json:"created_at"`
}

// EditRecordRequest replaces the four punches of a day. Each value is
// "HH:MM" on the record's date, a full RFC3339 timestamp, or null.
type EditRecordRequest struct {
	ClockIn  *string `json:"clock_in"`
	LunchOut *string `json:"lunch_out"`
	LunchIn  *string `json:"lunch_in"`
	ClockOut *string `json:"clock_out"`
}

type AdjustmentRequest struct {
	Delta decimal.Decimal `json:"delta"`
	Note  string          `json:"note"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRecordDTO(r attendance.Record, loc *time.Location) RecordDTO {
	fmtTime := func(t *time.Time) *string {
		if t == nil {
			return nil
		}
		s := t.In(loc).Format(time.RFC3339)
		return &s
	}
	dto := RecordDTO{
		EmployeeID:         string(r.EmployeeID),
		Date:               r.Date.String(),
		ClockIn:            fmtTime(r.ClockIn),
		LunchOut:           fmtTime(r.LunchOut),
		LunchIn:            fmtTime(r.LunchIn),
		ClockOut:           fmtTime(r.ClockOut),
		TotalHours:         r.TotalHours.String(),
		OvertimeHours:      r.OvertimeHours.String(),
		AccumulatedBalance: r.AccumulatedBalance.String(),
		DailyBalance:       r.DailyBalance.String(),
		Status:             string(r.Status),
		Finalized:          r.Finalized(),
	}
	if !r.UpdatedAt.IsZero() {
		dto.UpdatedAt = r.UpdatedAt.In(loc).Format(time.RFC3339)
	}
	return dto
}

func toRecordDTOs(recs []attendance.Record, loc *time.Location) []RecordDTO {
	dtos := make([]RecordDTO, len(recs))
	for i, r := range recs {
		dtos[i] = toRecordDTO(r, loc)
	}
	return dtos
}

func toBalanceDTO(id attendance.EmployeeID, balance decimal.Decimal, entries []attendance.BalanceEntry, loc *time.Location) BalanceDTO {
	dto := BalanceDTO{EmployeeID: string(id), Balance: balance.String(), History: []BalanceEntryDTO{}}
	for _, e := range entries {
		dto.History = append(dto.History, BalanceEntryDTO{
			ID:        e.ID,
			Date:      e.Date.String(),
			Delta:     e.Delta.String(),
			Balance:   e.Balance.String(),
			Reason:    string(e.Reason),
			Note:      e.Note,
			Actor:     e.Actor,
			CreatedAt: e.CreatedAt.In(loc).Format(time.RFC3339),
		})
	}
	return dto
}
