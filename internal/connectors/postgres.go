// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package connectors

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/config"
)

// NewPostgresDB opens the durable store backing the DLQ mirror (spec §6.4,
// "DLQ is inspected manually"). Only the DLQ repository talks to Postgres —
// the hot path (queue/cache/in-flight/pubsub) never touches it.
func NewPostgresDB(cfg config.PostgresConfig, logger commons.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.DBName, cfg.User, cfg.Password, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connectors: postgres open failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("connectors: postgres handle failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)

	logger.Infof("connectors: connected to postgres at %s:%d db=%s", cfg.Host, cfg.Port, cfg.DBName)
	return db, nil
}
