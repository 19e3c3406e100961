/*
scenarios.go - Demo scenario loaders for testing and demonstrations

AVAILABLE SCENARIOS:

	tem-preco: The default company, an admin, two employees with logins
	           and last week's punches replayed through the real Clock
	empty:     Reset only; the next visitor registers the first admin

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create company, employees and users via the directory service
 3. Replay punches with a Clock whose time is scripted, so balances and
    journal entries are exactly what live punching would have produced

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "tem-preco"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/directory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "tem-preco",
		Name:        "Tem Preço",
		Description: "Default company, admin, two employees and last week's punches",
	},
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "Clean database, first admin registers through the API",
	},
}

// Demo credentials created by the tem-preco scenario.
const (
	DemoAdminEmail    = "admin@tempreco.com.br"
	DemoAdminPassword = "admin123"
	DemoUserPassword  = "ponto123"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// LoadScenarioByID resets the database and loads scenario id.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	if !knownScenario(id) {
		return fmt.Errorf("unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	h.currentScenario = ""

	var err error
	switch id {
	case "tem-preco":
		err = h.loadTemPrecoScenario(ctx)
	case "empty":
	}
	if err != nil {
		return err
	}

	h.currentScenario = id
	h.Log.InfoContext(ctx, "scenario loaded", "scenario", id)
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoShift struct {
	clockIn, lunchOut, lunchIn, clockOut [2]int // hour, minute
}

func (h *Handler) loadTemPrecoScenario(ctx context.Context) error {
	company, err := h.Directory.CreateCompany(ctx, directory.Company{
		Name:    directory.DefaultCompanyName,
		CNPJ:    "12.345.678/0001-90",
		Address: "Rua das Flores, 100 - Centro",
		Phone:   "(11) 3333-4444",
	})
	if err != nil {
		return fmt.Errorf("create company: %w", err)
	}

	admin, err := h.Directory.RegisterFirstAdmin(ctx, "Administrador", DemoAdminEmail, DemoAdminPassword)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	people := []struct {
		employee directory.Employee
		login    string
		shift    demoShift
	}{
		{
			employee: directory.Employee{Name: "João Silva", Email: "joao@tempreco.com.br", Role: "Repositor",
				Department: "Loja", Age: 28, Gender: directory.GenderMale},
			login: "joao@tempreco.com.br",
			shift: demoShift{[2]int{8, 0}, [2]int{12, 0}, [2]int{13, 0}, [2]int{17, 30}},
		},
		{
			employee: directory.Employee{Name: "Maria Souza", Email: "maria@tempreco.com.br", Role: "Operadora de caixa",
				Department: "Frente de caixa", Age: 34, Gender: directory.GenderFemale},
			login: "maria@tempreco.com.br",
			shift: demoShift{[2]int{9, 0}, [2]int{12, 30}, [2]int{13, 30}, [2]int{17, 0}},
		},
	}

	// Monday to Friday of last week, in the configured zone.
	monday := attendance.DayOf(h.now(), h.loc).StartOfWeek().AddDays(-7)

	var scripted time.Time
	replay := attendance.NewClock(h.Store,
		attendance.WithNow(func() time.Time { return scripted }),
		attendance.WithLocation(h.loc))

	for _, p := range people {
		p.employee.CompanyID = company.ID
		emp, err := h.Directory.CreateEmployee(ctx, p.employee)
		if err != nil {
			return fmt.Errorf("create employee %s: %w", p.employee.Name, err)
		}
		if _, err := h.Directory.RegisterUser(ctx, directory.NewUser{
			Name:       emp.Name,
			Email:      p.login,
			Password:   DemoUserPassword,
			Type:       directory.UserEmployee,
			EmployeeID: emp.ID,
			CreatedBy:  admin.ID,
		}); err != nil {
			return fmt.Errorf("create user %s: %w", p.login, err)
		}

		id := attendance.EmployeeID(emp.ID)
		for i := 0; i < 5; i++ {
			day := monday.AddDays(i)
			// Leave a little later each day so balances differ day to day.
			steps := []struct {
				hm     [2]int
				action attendance.Action
				extra  int
			}{
				{p.shift.clockIn, attendance.ActionClockIn, 0},
				{p.shift.lunchOut, attendance.ActionLunchOut, 0},
				{p.shift.lunchIn, attendance.ActionLunchIn, 0},
				{p.shift.clockOut, attendance.ActionClockOut, i * 10},
			}
			for _, s := range steps {
				scripted = day.At(s.hm[0], s.hm[1], h.loc).Add(time.Duration(s.extra) * time.Minute)
				if _, err := replay.Punch(ctx, id, s.action); err != nil {
					return fmt.Errorf("replay %s %s on %s: %w", emp.Name, s.action, day, err)
				}
			}
		}
	}
	return nil
}
