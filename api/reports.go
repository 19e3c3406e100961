package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/factory"
	"github.com/tempreco/ponto/report"
)

// =============================================================================
// RECORD ADMINISTRATION
// =============================================================================

// ListRecords returns records filtered by ?employee=&from=&to=&open=&limit=.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecordQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	recs, err := h.Clock.ListRecords(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(recs, h.loc))
}

// EditRecord replaces the punches of /records/{employeeID}/{date}.
func (h *Handler) EditRecord(w http.ResponseWriter, r *http.Request) {
	key, err := recordKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid record key", err)
		return
	}
	var req EditRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var p attendance.Punches
	for _, f := range []struct {
		raw *string
		dst **time.Time
	}{
		{req.ClockIn, &p.ClockIn}, {req.LunchOut, &p.LunchOut}, {req.LunchIn, &p.LunchIn}, {req.ClockOut, &p.ClockOut},
	} {
		t, err := parsePunch(key.Date, f.raw, h.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid punch time", err)
			return
		}
		*f.dst = t
	}

	rec, err := h.Clock.EditRecord(r.Context(), key, p, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.InfoContext(r.Context(), "record edited", "record", key.String(), "actor", actor(r))
	writeJSON(w, http.StatusOK, toRecordDTO(rec, h.loc))
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	key, err := recordKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid record key", err)
		return
	}
	if err := h.Clock.DeleteRecord(r.Context(), key); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.InfoContext(r.Context(), "record deleted", "record", key.String(), "actor", actor(r))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SETTINGS
// =============================================================================

func (h *Handler) GetWorkHours(w http.ResponseWriter, r *http.Request) {
	p, err := h.Clock.Policy(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ToDoc(p))
}

// PutWorkHours merges the body over the defaults, so omitted keys reset
// to their default values.
func (h *Handler) PutWorkHours(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	p, err := factory.ParseWorkHours(string(body))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Clock.SetPolicy(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.InfoContext(r.Context(), "work hours updated", "actor", actor(r), "daily_hours", p.DailyHours.String())
	writeJSON(w, http.StatusOK, factory.ToDoc(p))
}

// =============================================================================
// REPORTS
// =============================================================================

// EmployeeSummary compares a week's worked hours with the weekly target.
// ?week= takes any date of the week, default today.
func (h *Handler) EmployeeSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.employee(w, r)
	if !ok {
		return
	}
	week := h.Clock.Today()
	if s := r.URL.Query().Get("week"); s != "" {
		d, err := attendance.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid week", err)
			return
		}
		week = d
	}
	start := week.StartOfWeek()
	recs, err := h.Clock.ListRecords(r.Context(), attendance.RecordQuery{EmployeeID: id, From: start, To: start.AddDays(6)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	policy, err := h.Clock.Policy(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report.Summarize(id, recs, policy, week))
}

// AttendanceExcel serves /reports/attendance.xlsx.
func (h *Handler) AttendanceExcel(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx")
}

// AttendancePDF serves /reports/attendance.pdf.
func (h *Handler) AttendancePDF(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "pdf")
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, format string) {
	q, err := parseRecordQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	recs, err := h.Clock.ListRecords(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	names, err := h.Directory.EmployeeNames(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows := report.BuildRows(recs, names, h.loc)
	title := reportTitle(q)

	filename := "ponto-" + h.now().In(h.loc).Format("20060102") + "." + format
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	switch format {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		err = report.WriteExcel(w, title, rows)
	default:
		w.Header().Set("Content-Type", "application/pdf")
		err = report.WritePDF(w, title, rows)
	}
	if err != nil {
		h.Log.ErrorContext(r.Context(), "export failed", "format", format, "error", err)
	}
}

func reportTitle(q attendance.RecordQuery) string {
	title := "Relatório de ponto"
	switch {
	case !q.From.IsZero() && !q.To.IsZero():
		title += fmt.Sprintf(" de %s a %s", q.From.Time.Format("02/01/2006"), q.To.Time.Format("02/01/2006"))
	case !q.From.IsZero():
		title += " desde " + q.From.Time.Format("02/01/2006")
	case !q.To.IsZero():
		title += " até " + q.To.Time.Format("02/01/2006")
	}
	return title
}

// =============================================================================
// ALERTS
// =============================================================================

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Monitor.Alerts()))
}

func (h *Handler) RunAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Monitor.RunNow(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(alerts))
}

// =============================================================================
// PARSING
// =============================================================================

func parseRecordQuery(r *http.Request) (attendance.RecordQuery, error) {
	v := r.URL.Query()
	q := attendance.RecordQuery{EmployeeID: attendance.EmployeeID(v.Get("employee"))}
	var err error
	if s := v.Get("from"); s != "" {
		if q.From, err = attendance.ParseDay(s); err != nil {
			return q, err
		}
	}
	if s := v.Get("to"); s != "" {
		if q.To, err = attendance.ParseDay(s); err != nil {
			return q, err
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, fmt.Errorf("to (%s) is before from (%s)", q.To, q.From)
	}
	if s := v.Get("open"); s != "" {
		if q.OpenOnly, err = strconv.ParseBool(s); err != nil {
			return q, fmt.Errorf("invalid open: %w", err)
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
	}
	return q, nil
}

func recordKey(r *http.Request) (attendance.RecordKey, error) {
	day, err := attendance.ParseDay(chi.URLParam(r, "date"))
	if err != nil {
		return attendance.RecordKey{}, err
	}
	id := chi.URLParam(r, "employeeID")
	if id == "" {
		return attendance.RecordKey{}, fmt.Errorf("missing employee id")
	}
	return attendance.RecordKey{EmployeeID: attendance.EmployeeID(id), Date: day}, nil
}

// parsePunch reads "HH:MM" on day in loc, or an RFC3339 timestamp.
// Nil and empty mean no punch.
func parsePunch(day attendance.Day, raw *string, loc *time.Location) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	if hm, err := time.Parse("15:04", *raw); err == nil {
		t := day.At(hm.Hour(), hm.Minute(), loc)
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q (use HH:MM or RFC3339)", *raw)
	}
	return &t, nil
}
