/*
handlers.go - HTTP API handlers for the punch clock

PURPOSE:
  Exposes the attendance engine and the directory via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/auth/login                 Email + password, returns a token
    POST   /api/auth/register-admin        Only while no admin exists

  Employee self service (any valid token linked to an employee):
    GET    /api/me                         Token claims
    GET    /api/me/today                   Today's record (synthesized if none)
    POST   /api/me/{action}                clock-in, lunch-out, lunch-in, clock-out
    GET    /api/me/records                 Own history
    GET    /api/me/balance                 Accumulated balance and movements

  Back office (admin token): see server.go and reports.go

ERROR HANDLING:
  Errors are returned as JSON {"error", "code", "details"}:
  - 400: Validation errors, invalid input, invalid policy
  - 401: Missing/invalid token, bad credentials
  - 403: Admin only, or user not linked to an employee
  - 404: Resource not found
  - 409: Punch rejected (code names the rule), duplicate email, admin exists
  - 503: Record store unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - reports.go: Records, settings and export handlers
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/auth"
	"github.com/tempreco/ponto/directory"
	"github.com/tempreco/ponto/notify"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is what the API needs from a storage backend. Both store/sqlite
// and store/postgres satisfy it.
type Backend interface {
	attendance.Store
	directory.Store
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Backend
	Clock     *attendance.Clock
	Directory *directory.Service
	Tokens    *auth.TokenService
	Notifier  *notify.Notifier
	Monitor   *OpenShiftMonitor
	Log       *slog.Logger

	loc *time.Location
	now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

type HandlerOption func(*Handler)

func WithLocation(loc *time.Location) HandlerOption {
	return func(h *Handler) {
		if loc != nil {
			h.loc = loc
		}
	}
}

// WithNow replaces the wall clock of the handler, its Clock and its monitor.
func WithNow(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.Log = logger }
}

func WithNotifier(n *notify.Notifier) HandlerOption {
	return func(h *Handler) { h.Notifier = n }
}

// NewHandler creates a new handler over store.
func NewHandler(store Backend, tokens *auth.TokenService, opts ...HandlerOption) *Handler {
	h := &Handler{
		Store:  store,
		Tokens: tokens,
		Log:    slog.Default(),
		loc:    time.UTC,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Clock = attendance.NewClock(store, attendance.WithNow(h.now), attendance.WithLocation(h.loc))
	h.Directory = directory.NewService(store)
	h.Monitor = NewOpenShiftMonitor(h.Clock, h.now, h.Log)
	return h
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login exchanges credentials for an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	user, err := h.Directory.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeToken(w, http.StatusOK, user)
}

// RegisterAdmin creates the first administrator of a fresh installation.
func (h *Handler) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req RegisterAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	user, err := h.Directory.RegisterFirstAdmin(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Log.InfoContext(r.Context(), "first admin registered", "user_id", user.ID)
	h.writeToken(w, http.StatusCreated, user)
}

func (h *Handler) writeToken(w http.ResponseWriter, status int, user directory.User) {
	token, exp, err := h.Tokens.Issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}
	writeJSON(w, status, LoginResponse{Token: token, ExpiresAt: exp.Format(time.RFC3339), User: user})
}

// Me returns the caller's token claims.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	c, err := auth.FromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     c.UserID,
		"email":       c.Email,
		"employee_id": c.EmployeeID,
		"is_admin":    c.IsAdmin,
	})
}

// =============================================================================
// SELF SERVICE - The employee punching for themself
// =============================================================================

// self returns the employee linked to the caller's token.
func (h *Handler) self(w http.ResponseWriter, r *http.Request) (attendance.EmployeeID, bool) {
	c, err := auth.FromContext(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
		return "", false
	}
	if c.EmployeeID == "" {
		writeErrorCode(w, http.StatusForbidden, "no_employee", auth.ErrNoEmployeeLink.Error(), nil)
		return "", false
	}
	return attendance.EmployeeID(c.EmployeeID), true
}

// Punch returns the handler for one punch action.
func (h *Handler) Punch(action attendance.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.self(w, r)
		if !ok {
			return
		}
		rec, err := h.Clock.Punch(r.Context(), id, action)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.Log.InfoContext(r.Context(), "punch recorded",
			"employee_id", id, "action", action, "status", rec.Status, "date", rec.Date.String())
		h.notifyPunch(r.Context(), action, rec)
		writeJSON(w, http.StatusOK, toRecordDTO(rec, h.loc))
	}
}

func (h *Handler) notifyPunch(ctx context.Context, action attendance.Action, rec attendance.Record) {
	if h.Notifier == nil || !h.Notifier.Enabled() {
		return
	}
	emp, err := h.Directory.Employee(ctx, string(rec.EmployeeID))
	if err != nil {
		h.Log.WarnContext(ctx, "punch e-mail skipped", "employee_id", rec.EmployeeID, "error", err)
		return
	}
	h.Notifier.Async(ctx, notify.Punch{EmployeeName: emp.Name, Email: emp.Email, Action: action, Record: rec})
}

func (h *Handler) MyToday(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.self(w, r); ok {
		h.today(w, r, id)
	}
}

func (h *Handler) MyRecords(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.self(w, r); ok {
		h.records(w, r, id)
	}
}

func (h *Handler) MyBalance(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.self(w, r); ok {
		h.balance(w, r, id)
	}
}

func (h *Handler) today(w http.ResponseWriter, r *http.Request, id attendance.EmployeeID) {
	rec, err := h.Clock.GetToday(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(rec, h.loc))
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request, id attendance.EmployeeID) {
	q, err := parseRecordQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	q.EmployeeID = id
	recs, err := h.Clock.ListRecords(r.Context(), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(recs, h.loc))
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request, id attendance.EmployeeID) {
	bal, err := h.Clock.Balance(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	history, err := h.Clock.BalanceHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(id, bal, history, h.loc))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	list, err := h.Directory.Employees(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req directory.Employee
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	emp, err := h.Directory.CreateEmployee(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Directory.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req directory.Employee
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	emp, err := h.Directory.UpdateEmployee(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

// DeleteEmployee removes the employee and their logins. Attendance
// records are kept for the reports.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.Directory.DeleteEmployee(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// employee resolves {id} to an existing employee.
func (h *Handler) employee(w http.ResponseWriter, r *http.Request) (attendance.EmployeeID, bool) {
	emp, err := h.Directory.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return attendance.EmployeeID(emp.ID), true
}

func (h *Handler) EmployeeToday(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.employee(w, r); ok {
		h.today(w, r, id)
	}
}

func (h *Handler) EmployeeRecords(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.employee(w, r); ok {
		h.records(w, r, id)
	}
}

func (h *Handler) EmployeeBalance(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.employee(w, r); ok {
		h.balance(w, r, id)
	}
}

// CreateAdjustment applies a manual balance correction.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.employee(w, r)
	if !ok {
		return
	}
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Delta.IsZero() {
		writeError(w, http.StatusBadRequest, "delta must be non-zero", nil)
		return
	}
	bal, err := h.Clock.AdjustBalance(r.Context(), id, req.Delta, req.Note, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"employee_id": string(id), "balance": bal.String()})
}

// =============================================================================
// COMPANY HANDLERS
// =============================================================================

func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	list, err := h.Directory.Companies(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req directory.Company
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.CreatedBy = actor(r)
	c, err := h.Directory.CreateCompany(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.Directory.Company(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	var req directory.Company
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ID = chi.URLParam(r, "id")
	c, err := h.Directory.UpdateCompany(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	if err := h.Directory.DeleteCompany(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Directory.Users(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(list))
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	u, err := h.Directory.RegisterUser(r.Context(), directory.NewUser{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Type:       req.Type,
		EmployeeID: req.EmployeeID,
		CreatedBy:  actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if c, err := auth.FromContext(r.Context()); err == nil && c.UserID == id {
		writeErrorCode(w, http.StatusConflict, "self_delete", "cannot delete the signed-in user", nil)
		return
	}
	if err := h.Directory.DeleteUser(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// actor names the signed-in user in journal entries.
func actor(r *http.Request) string {
	c, err := auth.FromContext(r.Context())
	if err != nil {
		return ""
	}
	if c.Email != "" {
		return c.Email
	}
	return c.UserID
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}

// fail maps domain errors to HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var pe *attendance.PunchError
	var ve *directory.ValidationError
	switch {
	case errors.As(err, &pe):
		writeErrorCode(w, http.StatusConflict, attendance.Code(err), pe.Reason, map[string]string{
			"action": string(pe.Action),
			"status": string(pe.Status),
		})
	case errors.As(err, &ve):
		writeErrorCode(w, http.StatusBadRequest, "validation_failed", "validation failed", ve.Fields)
	case errors.Is(err, attendance.ErrInvalidPolicy):
		writeErrorCode(w, http.StatusBadRequest, attendance.Code(err), err.Error(), nil)
	case attendance.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, attendance.Code(err), err.Error(), nil)
	case directory.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, directory.ErrInvalidCredentials):
		writeErrorCode(w, http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
	case errors.Is(err, directory.ErrEmailTaken):
		writeErrorCode(w, http.StatusConflict, "email_taken", err.Error(), nil)
	case errors.Is(err, directory.ErrAdminExists):
		writeErrorCode(w, http.StatusConflict, "admin_exists", err.Error(), nil)
	case errors.Is(err, attendance.ErrStoreUnavailable):
		h.Log.ErrorContext(r.Context(), "store unavailable", "path", r.URL.Path, "error", err)
		writeErrorCode(w, http.StatusServiceUnavailable, attendance.Code(err), "record store unavailable, try again", nil)
	case errors.Is(err, attendance.ErrUnsupported):
		writeErrorCode(w, http.StatusNotImplemented, "unsupported", err.Error(), nil)
	default:
		h.Log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// authError adapts writeErrorCode to the auth middleware callback.
func authError(w http.ResponseWriter, status int, err error) {
	code := "unauthorized"
	if status == http.StatusForbidden {
		code = "forbidden"
	}
	writeErrorCode(w, status, code, err.Error(), nil)
}
