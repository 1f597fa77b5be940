// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package adminapi is the coordinator's read-only operational surface
// (spec §4.9 supplement: "a production gateway needs some operational
// visibility even though the spec places metrics/billing dashboards out
// of scope"). Three endpoints only, all GET, all JSON, grounded on the
// gin route-group idiom the pack uses for its own REST-style routers.
package adminapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/readvox/synthbridge/internal/cache"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/dlq"
	"github.com/readvox/synthbridge/internal/metrics"
	"github.com/readvox/synthbridge/internal/queue"
)

// API wires the coordinator's internal state into the three read-only
// endpoints spec §4.9 names.
type API struct {
	cache   *cache.Cache
	queue   *queue.Queue
	dlqRepo *dlq.Repository
	metrics *metrics.Registry
	logger  commons.Logger
}

func New(c *cache.Cache, q *queue.Queue, dlqRepo *dlq.Repository, reg *metrics.Registry, logger commons.Logger) *API {
	return &API{cache: c, queue: q, dlqRepo: dlqRepo, metrics: reg, logger: logger}
}

// RegisterRoutes mounts the admin surface under /v1/admin on r, with an
// open CORS policy matching the teacher's own dashboard-facing endpoints.
func (a *API) RegisterRoutes(r gin.IRouter) {
	group := r.Group("/v1/admin", cors.Default())
	group.GET("/cache/stats", a.handleCacheStats)
	group.GET("/dlq/:model_id", a.handleDLQList)
	group.GET("/queue/:model_id/depth", a.handleQueueDepth)
}

func (a *API) handleCacheStats(c *gin.Context) {
	stats, err := a.cache.Stats(c.Request.Context())
	if err != nil {
		a.logger.Error("adminapi: cache stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cache":   stats,
		"metrics": a.metrics.Snapshot(),
	})
}

func (a *API) handleDLQList(c *gin.Context) {
	modelID := c.Param("model_id")

	limit := 100
	records, err := a.dlqRepo.List(c.Request.Context(), modelID, limit)
	if err != nil {
		a.logger.Error("adminapi: dlq list failed", "model_id", modelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dlq list unavailable"})
		return
	}

	count, err := a.dlqRepo.Count(c.Request.Context(), modelID)
	if err != nil {
		a.logger.Error("adminapi: dlq count failed", "model_id", modelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dlq count unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "total": count, "records": records})
}

func (a *API) handleQueueDepth(c *gin.Context) {
	modelID := c.Param("model_id")

	depth, err := a.queue.Depth(c.Request.Context(), modelID)
	if err != nil {
		a.logger.Error("adminapi: queue depth failed", "model_id", modelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "queue depth unavailable"})
		return
	}

	dlqDepth, err := a.queue.DLQLength(c.Request.Context(), modelID)
	if err != nil {
		a.logger.Error("adminapi: dlq length failed", "model_id", modelID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dlq length unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"model_id": modelID, "depth": depth, "dlq_depth": dlqDepth})
}
