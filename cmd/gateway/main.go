// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Command gateway is the coordinator process (spec §4.10): it serves the
// WebSocket dispatcher and admin HTTP surface, and runs the result
// consumer, visibility scanner, and (when configured) overflow scanner as
// background goroutines until terminated.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/readvox/synthbridge/internal/adminapi"
	"github.com/readvox/synthbridge/internal/alert"
	"github.com/readvox/synthbridge/internal/cache"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/config"
	"github.com/readvox/synthbridge/internal/connectors"
	"github.com/readvox/synthbridge/internal/consumer"
	"github.com/readvox/synthbridge/internal/coordinator"
	"github.com/readvox/synthbridge/internal/dlq"
	"github.com/readvox/synthbridge/internal/inflight"
	"github.com/readvox/synthbridge/internal/metrics"
	"github.com/readvox/synthbridge/internal/pubsub"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/resultstream"
	"github.com/readvox/synthbridge/internal/scanner"
	"github.com/readvox/synthbridge/internal/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway: %v", err)
	}
}

func run() error {
	v, err := config.InitConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	logger, err := commons.NewApplicationLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := connectors.NewRedisClient(ctx, cfg.RedisConfig, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	postgresDB, err := connectors.NewPostgresDB(cfg.PostgresConfig, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	dsn := dlq.DSN(cfg.PostgresConfig)
	if err := dlq.Migrate(dsn); err != nil {
		return fmt.Errorf("migrate dlq schema: %w", err)
	}

	cachedDB, err := dlq.NewReadCachedDB(postgresDB, redisClient, 30*time.Second, logger)
	if err != nil {
		return fmt.Errorf("wrap dlq read cache: %w", err)
	}

	q := queue.New(redisClient, logger, cfg.Queue.QueueKeyPrefix, cfg.Queue.MaxRetries)
	c := cache.New(redisClient, logger, cfg.Queue.CacheMaxSizeBytes)
	inflightReg := inflight.New(redisClient, logger)
	bus := pubsub.New(redisClient, logger)
	metricsReg := metrics.New()
	stream := resultstream.New(redisClient, logger, cfg.Queue.ResultsStreamKey, "gateway")
	if err := stream.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure result stream group: %w", err)
	}

	dlqRepo := dlq.NewRepository(cachedDB, logger)

	cons := consumer.New(stream, q, c, inflightReg, bus, metricsReg, logger, "gateway")

	visibility := scanner.NewVisibilityScanner(
		q, stream, inflightReg, bus, logger, coordinator.ModelIDs,
		time.Duration(cfg.Queue.VisibilityScanIntervalSec)*time.Second,
		time.Duration(cfg.Queue.VisibilityTimeoutSeconds)*time.Second,
	)

	var overflow *scanner.OverflowScanner
	if cfg.OverflowEnabled() {
		overflow, err = scanner.NewOverflowScanner(
			q, stream, metricsReg, logger, coordinator.ModelIDs,
			cfg.Queue.ServerlessAPIToken, cfg.Queue.ServerlessModelVersion,
			time.Duration(cfg.Queue.OverflowScanIntervalSecs)*time.Second,
			time.Duration(cfg.Queue.OverflowThresholdSeconds)*time.Second,
			time.Duration(cfg.Queue.ServerlessRequestTimeoutS)*time.Second,
		)
		if err != nil {
			return fmt.Errorf("init overflow scanner: %w", err)
		}
	}

	dispatcher := ws.New(q, c, inflightReg, bus, logger, cfg.JWTSigningSecret)
	admin := adminapi.New(c, q, dlqRepo, metricsReg, logger)

	if cfg.SendgridAPIKey != "" {
		notifier := alert.New(cfg.SendgridAPIKey, cfg.AlertFromEmail, cfg.AlertToEmail, logger)
		go watchDLQDepth(ctx, q, notifier, logger, cfg.Queue.DLQAlertThreshold)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	co := coordinator.New(cons, visibility, overflow, dispatcher, admin, logger, addr)

	logger.Infof("gateway: starting %s version %s", cfg.Name, cfg.Version)
	return co.Run(ctx)
}

// watchDLQDepth polls each model's dead-letter depth and fires an alert
// email once it crosses threshold. A coarse periodic check is enough: DLQ
// alerts are an ops signal, not a latency-sensitive path.
func watchDLQDepth(ctx context.Context, q *queue.Queue, notifier *alert.Notifier, logger commons.Logger, threshold int) {
	if threshold <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, modelID := range coordinator.ModelIDs {
				depth, err := q.DLQLength(ctx, modelID)
				if err != nil {
					logger.Error("gateway: dlq length check failed", "model_id", modelID, "error", err)
					continue
				}
				if depth >= int64(threshold) {
					if err := notifier.DLQDepthExceeded(modelID, depth, int64(threshold)); err != nil {
						logger.Error("gateway: dlq alert send failed", "model_id", modelID, "error", err)
					}
				}
			}
		}
	}
}
