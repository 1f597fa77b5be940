// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Command worker runs the generic pull-process-push loop (spec §4.4)
// against exactly one vendor adapter, selected at startup by the
// WORKER_ADAPTER config value. Running one vendor per process lets each
// be scaled and deployed independently.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/readvox/synthbridge/internal/adapter/azure"
	"github.com/readvox/synthbridge/internal/adapter/cartesia"
	"github.com/readvox/synthbridge/internal/adapter/deepgram"
	"github.com/readvox/synthbridge/internal/adapter/elevenlabs"
	"github.com/readvox/synthbridge/internal/adapter/google"
	"github.com/readvox/synthbridge/internal/adapter/openaitts"
	"github.com/readvox/synthbridge/internal/adapter/polly"
	"github.com/readvox/synthbridge/internal/adapter/sarvam"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/config"
	"github.com/readvox/synthbridge/internal/connectors"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/resultstream"
	"github.com/readvox/synthbridge/internal/workerloop"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func run() error {
	v, err := config.InitConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := config.GetWorkerConfig(v)
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

	adapter, err := buildAdapter(ctx, cfg.WorkerAdapter, cfg.Adapter, logger)
	if err != nil {
		return fmt.Errorf("build adapter: %w", err)
	}

	q := queue.New(redisClient, logger, cfg.Queue.QueueKeyPrefix, cfg.Queue.MaxRetries)
	stream := resultstream.New(redisClient, logger, cfg.Queue.ResultsStreamKey, "gateway")
	if err := stream.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("ensure result stream group: %w", err)
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = cfg.WorkerAdapter + "-" + uuid.NewString()
	}

	loop := workerloop.New(q, stream, adapter, logger, workerID, time.Duration(cfg.PollIntervalMs)*time.Millisecond, nil)

	logger.Infof("worker: starting %s adapter=%s worker_id=%s", cfg.Name, cfg.WorkerAdapter, workerID)
	return loop.Run(ctx)
}

// buildAdapter constructs the single vendor adapter named by vendor. New
// vendors are added here and to internal/config.AdapterConfig together.
func buildAdapter(ctx context.Context, vendor string, cfg config.AdapterConfig, logger commons.Logger) (workerloop.Adapter, error) {
	switch vendor {
	case "azure":
		return azure.New(logger, azure.Config{
			SubscriptionKey: cfg.AzureSubscriptionKey,
			Region:          cfg.AzureRegion,
		}), nil
	case "cartesia":
		return cartesia.New(logger, cartesia.Config{
			APIKey:    cfg.CartesiaAPIKey,
			ModelName: cfg.CartesiaModelName,
		}), nil
	case "deepgram":
		return deepgram.New(logger, deepgram.Config{
			APIKey: cfg.DeepgramAPIKey,
			Model:  cfg.DeepgramModel,
		}), nil
	case "elevenlabs":
		return elevenlabs.New(logger, elevenlabs.Config{
			APIKey:  cfg.ElevenLabsAPIKey,
			ModelID: cfg.ElevenLabsModelID,
		}), nil
	case "google":
		return google.New(ctx, logger, google.Config{
			APIKey:            cfg.GoogleAPIKey,
			ServiceAccountKey: []byte(cfg.GoogleServiceAccountKey),
		})
	case "openai":
		return openaitts.New(logger, openaitts.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		}), nil
	case "polly":
		return polly.New(logger, polly.Config{
			Region:          cfg.PollyRegion,
			AccessKeyID:     cfg.PollyAccessKeyID,
			SecretAccessKey: cfg.PollySecretAccessKey,
		})
	case "sarvam":
		return sarvam.New(logger, sarvam.Config{APIKey: cfg.SarvamAPIKey}), nil
	default:
		return nil, fmt.Errorf("unknown WORKER_ADAPTER %q", vendor)
	}
}
