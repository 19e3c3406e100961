/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ponto HTTP server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, optional .env file)
  2. Open the configured store (SQLite or PostgreSQL)
  3. Seed the first admin from ADMIN_* if none exists
  4. Create API handler, notifier and open shift monitor
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -scenario  Load a demo scenario at startup (resets the database)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the monitor and flush pending e-mails
  4. Close database connection

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/tempreco/ponto/api"
	"github.com/tempreco/ponto/auth"
	"github.com/tempreco/ponto/config"
	"github.com/tempreco/ponto/directory"
	"github.com/tempreco/ponto/notify"
	"github.com/tempreco/ponto/store"
)

const version = "v1.0.0"

func main() {
	scenario := flag.String("scenario", "", "load a demo scenario at startup (tem-preco, empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := api.NewLogger(os.Stdout, cfg.SlogLevel(), "ponto", version, cfg.App.Env)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *scenario); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, scenario string) error {
	ctx := context.Background()

	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer backend.Close()
	logger.Info("store ready", "driver", cfg.Database.Driver)

	notifier, err := notify.New(cfg.SMTP, directory.DefaultCompanyName, cfg.App.Timezone, logger)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	handler := api.NewHandler(backend, tokens,
		api.WithLocation(cfg.App.Timezone),
		api.WithLogger(logger),
		api.WithNotifier(notifier),
	)

	if scenario != "" {
		if err := handler.LoadScenarioByID(ctx, scenario); err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}
	if err := seedAdmin(ctx, handler.Directory, cfg.Admin, logger); err != nil {
		return err
	}

	handler.Monitor.Enabled = cfg.Monitor.Enabled
	handler.Monitor.CheckInterval = cfg.Monitor.Interval
	handler.Monitor.Start()
	defer handler.Monitor.Stop()

	router := api.NewRouter(handler, api.RouterOptions{
		Logger:      logger,
		LogLevel:    cfg.SlogLevel(),
		CORSOrigins: cfg.App.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "timezone", cfg.App.Timezone.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := notifier.Wait(shutdownCtx); err != nil {
		logger.Warn("shutdown before e-mails were sent", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// seedAdmin creates the configured admin on an installation without one.
func seedAdmin(ctx context.Context, dir *directory.Service, admin config.AdminConfig, logger *slog.Logger) error {
	if !admin.Enabled() {
		return nil
	}
	u, err := dir.RegisterFirstAdmin(ctx, admin.Name, admin.Email, admin.Password)
	switch {
	case errors.Is(err, directory.ErrAdminExists):
		return nil
	case err != nil:
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.Info("admin seeded", "user_id", u.ID, "email", u.Email)
	return nil
}
