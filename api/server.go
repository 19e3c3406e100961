/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. CORS:        Cross-origin requests for the web front end
  2. RequestID:   Unique ID per request for tracing
  3. httplog:     Structured request logging (slog, ECS schema)
  4. Recoverer:   Panic recovery (500 instead of crash)
  5. Heartbeat:   GET /health for load balancers

ROUTE GROUPS:
  /api/auth/*           Public: login and first admin
  /api/me/*             Any signed-in user linked to an employee
  everything else       Admin token required

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/middleware.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/auth"
)

type RouterOptions struct {
	Logger      *slog.Logger
	LogLevel    slog.Level
	CORSOrigins []string
}

// NewLogger builds the JSON logger shared by the router and background
// components.
func NewLogger(w io.Writer, level slog.Level, app, version, env string) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(env != "production")
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", app),
		slog.String("version", version),
		slog.String("env", env),
	)
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = h.Log
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  opts.LogLevel,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.CleanPath)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/register-admin", h.RegisterAdmin)
		})

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(h.Tokens.Verifier())
			r.Use(auth.AuthRequired(authError))

			r.Route("/me", func(r chi.Router) {
				r.Get("/", h.Me)
				r.Get("/today", h.MyToday)
				r.Get("/records", h.MyRecords)
				r.Get("/balance", h.MyBalance)
				r.Post("/clock-in", h.Punch(attendance.ActionClockIn))
				r.Post("/lunch-out", h.Punch(attendance.ActionLunchOut))
				r.Post("/lunch-in", h.Punch(attendance.ActionLunchIn))
				r.Post("/clock-out", h.Punch(attendance.ActionClockOut))
			})

			// Admin only
			r.Group(func(r chi.Router) {
				r.Use(auth.AdminOnly(authError))

				r.Route("/employees", func(r chi.Router) {
					r.Get("/", h.ListEmployees)
					r.Post("/", h.CreateEmployee)
					r.Get("/{id}", h.GetEmployee)
					r.Put("/{id}", h.UpdateEmployee)
					r.Delete("/{id}", h.DeleteEmployee)
					r.Get("/{id}/today", h.EmployeeToday)
					r.Get("/{id}/records", h.EmployeeRecords)
					r.Get("/{id}/balance", h.EmployeeBalance)
					r.Get("/{id}/summary", h.EmployeeSummary)
					r.Post("/{id}/adjustments", h.CreateAdjustment)
				})

				r.Route("/companies", func(r chi.Router) {
					r.Get("/", h.ListCompanies)
					r.Post("/", h.CreateCompany)
					r.Get("/{id}", h.GetCompany)
					r.Put("/{id}", h.UpdateCompany)
					r.Delete("/{id}", h.DeleteCompany)
				})

				r.Route("/users", func(r chi.Router) {
					r.Get("/", h.ListUsers)
					r.Post("/", h.CreateUser)
					r.Delete("/{id}", h.DeleteUser)
				})

				r.Route("/records", func(r chi.Router) {
					r.Get("/", h.ListRecords)
					r.Put("/{employeeID}/{date}", h.EditRecord)
					r.Delete("/{employeeID}/{date}", h.DeleteRecord)
				})

				r.Get("/settings/work-hours", h.GetWorkHours)
				r.Put("/settings/work-hours", h.PutWorkHours)

				r.Get("/reports/attendance.xlsx", h.AttendanceExcel)
				r.Get("/reports/attendance.pdf", h.AttendancePDF)

				r.Get("/alerts", h.ListAlerts)
				r.Post("/alerts/run", h.RunAlerts)

				r.Route("/scenarios", func(r chi.Router) {
					r.Get("/", h.ListScenarios)
					r.Get("/current", h.GetCurrentScenario)
					r.Post("/load", h.LoadScenario)
				})
			})
		})
	})

	return r
}
