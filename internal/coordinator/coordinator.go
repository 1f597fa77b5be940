// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package coordinator owns the gateway process's lifecycle (spec §4.10):
// start the result consumer, the visibility scanner, and (when configured)
// the overflow scanner as background tasks, serve the WebSocket and admin
// HTTP surfaces, and bring everything down cleanly on shutdown. Grounded
// on the teacher's own multi-service startup shape (several long-running
// goroutines fed by one cancellable context), reworked around
// golang.org/x/sync/errgroup the way the pack's worker-pool examples use
// it to collect the first failing goroutine's error.
package coordinator

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/readvox/synthbridge/internal/adminapi"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/consumer"
	"github.com/readvox/synthbridge/internal/scanner"
	"github.com/readvox/synthbridge/internal/tracing"
	"github.com/readvox/synthbridge/internal/ws"
)

// ModelIDs enumerates every model_id a vendor adapter registers (spec §4.3
// supplement's eight providers), used to scan every per-model queue for
// stale claims and, when enabled, overflow candidates.
var ModelIDs = []string{
	"azure-cognitive-speech",
	"cartesia-sonic",
	"deepgram-aura",
	"elevenlabs-tts",
	"google-texttospeech",
	"openai-tts",
	"aws-polly",
	"sarvam-bulbul",
}

// Coordinator wires the gateway's long-running components together and
// runs them until ctx is cancelled.
type Coordinator struct {
	consumer          *consumer.Consumer
	visibilityScanner *scanner.VisibilityScanner
	overflowScanner   *scanner.OverflowScanner // nil when overflow is disabled
	dispatcher        *ws.Dispatcher
	adminAPI          *adminapi.API
	logger            commons.Logger

	addr       string
	httpServer *http.Server
}

// New assembles a Coordinator from its already-constructed collaborators.
// overflowScanner may be nil (spec §4.7: "disabled when no serverless
// endpoint is configured").
func New(
	c *consumer.Consumer,
	visibility *scanner.VisibilityScanner,
	overflow *scanner.OverflowScanner,
	dispatcher *ws.Dispatcher,
	admin *adminapi.API,
	logger commons.Logger,
	addr string,
) *Coordinator {
	return &Coordinator{
		consumer:          c,
		visibilityScanner: visibility,
		overflowScanner:   overflow,
		dispatcher:        dispatcher,
		adminAPI:          admin,
		logger:            logger,
		addr:              addr,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them returns a non-context error, at which point every other component
// is stopped and Run returns that error. In-flight synthesis jobs are not
// drained on shutdown: spec §4.10 treats this as safe because an abandoned
// claim simply times out and the visibility scanner requeues it on the
// next process's behalf.
func (co *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		co.logger.Infof("coordinator: starting result consumer")
		return co.consumer.Run(ctx)
	})

	g.Go(func() error {
		co.logger.Infof("coordinator: starting visibility scanner")
		return co.visibilityScanner.Run(ctx)
	})

	if co.overflowScanner != nil {
		g.Go(func() error {
			co.logger.Infof("coordinator: starting overflow scanner")
			return co.overflowScanner.Run(ctx)
		})
	} else {
		co.logger.Infof("coordinator: overflow scanner disabled, no serverless endpoint configured")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	co.dispatcher.RegisterRoutes(router)
	co.adminAPI.RegisterRoutes(router)

	co.httpServer = &http.Server{Addr: co.addr, Handler: tracing.WrapHandler(router, "gateway.http")}

	g.Go(func() error {
		co.logger.Infof("coordinator: listening on %s", co.addr)
		if err := co.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return co.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
