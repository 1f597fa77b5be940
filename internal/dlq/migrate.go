// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package dlq

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/readvox/synthbridge/internal/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DSN builds the postgres:// URL golang-migrate expects, distinct from the
// space-separated DSN connectors.NewPostgresDB passes to gorm.
func DSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode,
	)
}

// Migrate applies every pending schema migration against dsn. Safe to call
// on every process start: golang-migrate tracks the applied version in a
// schema_migrations table and Up is a no-op once current.
func Migrate(dsn string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("dlq: load migration source failed: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("dlq: init migrator failed: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("dlq: apply migrations failed: %w", err)
	}
	return nil
}
