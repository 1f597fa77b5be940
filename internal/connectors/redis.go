// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package connectors constructs the shared infrastructure clients (Redis,
// Postgres) from config and hands back a plain *redis.Client / *gorm.DB —
// every internal package depends on the client type directly rather than
// another layer of interface indirection, matching the teacher's
// `connectors.RedisConnector` / `connectors.PostgresConnector` being thin
// constructors around the underlying driver.
package connectors

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/config"
)

// NewRedisClient dials the shared queue/cache/pubsub store and verifies
// connectivity with a bounded PING before handing the client back.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger commons.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connectors: redis ping failed: %w", err)
	}

	logger.Infof("connectors: connected to redis at %s:%d db=%d", cfg.Host, cfg.Port, cfg.DB)
	return client, nil
}
