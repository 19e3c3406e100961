// Package store selects the storage backend named by the configuration.
package store

import (
	"context"
	"fmt"

	"github.com/tempreco/ponto/attendance"
	"github.com/tempreco/ponto/config"
	"github.com/tempreco/ponto/directory"
	"github.com/tempreco/ponto/store/postgres"
	"github.com/tempreco/ponto/store/sqlite"
)

// Backend is the full capability set shared by the SQLite and PostgreSQL
// stores.
type Backend interface {
	attendance.TxStore
	attendance.RecordAdmin
	attendance.Journal
	directory.Store

	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*sqlite.Store)(nil)
	_ Backend = (*postgres.Store)(nil)
)

// Open connects to the configured database and runs migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Backend, error) {
	switch cfg.Driver {
	case "sqlite", "":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}
