// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/readvox/synthbridge/internal/cache"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/dlq"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/metrics"
	"github.com/readvox/synthbridge/internal/queue"
)

func newTestAPI(t *testing.T) (*API, *redis.Client, sqlmock.Sqlmock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := commons.NewTestLogger()
	c := cache.New(client, logger, 1<<20)
	q := queue.New(client, logger, "synth", 3)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	dialector := postgres.New(postgres.Config{Conn: sqlDB, DriverName: "postgres"})
	gdb, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)
	repo := dlq.NewRepository(gdb, logger)

	reg := metrics.New()

	return New(c, q, repo, reg, logger), client, mock
}

func TestCacheStatsEndpointReportsStoreAndCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api, client, _ := newTestAPI(t)
	require.NoError(t, api.cache.Put(context.Background(), domain.CacheEntry{VariantHash: "h1", ModelID: "cartesia-sonic"}, []byte("audio")))
	api.metrics.IncCacheHit()
	_ = client

	r := gin.New()
	api.RegisterRoutes(r)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/admin/cache/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Cache   domain.CacheStats `json:"cache"`
		Metrics metrics.Snapshot  `json:"metrics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(1), body.Cache.EntryCount)
	require.Equal(t, int64(1), body.Metrics.CacheHits)
}

func TestQueueDepthEndpointReportsPendingAndDeadLettered(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api, _, _ := newTestAPI(t)
	ctx := context.Background()

	require.NoError(t, api.queue.Push(ctx, "cartesia-sonic", domain.SynthesisJob{JobID: "job-1", VariantHash: "h1"}))

	r := gin.New()
	api.RegisterRoutes(r)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/admin/queue/cartesia-sonic/depth")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Depth    int64 `json:"depth"`
		DLQDepth int64 `json:"dlq_depth"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(1), body.Depth)
	require.Equal(t, int64(0), body.DLQDepth)
}

func TestDLQListEndpointQueriesModelIDFromPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	api, _, mock := newTestAPI(t)

	rows := sqlmock.NewRows([]string{"id", "job_id", "model_id", "variant_hash", "document_id", "user_id", "voice_id", "reason", "retry_count", "job_payload", "recorded_at", "created_at"}).
		AddRow("id-1", "job-1", "cartesia-sonic", "h1", "doc-1", "user-1", "v1", "fatal", 1, "{}", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "dlq_records" WHERE model_id = $1`)).
		WithArgs("cartesia-sonic").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "dlq_records" WHERE model_id = $1`)).
		WithArgs("cartesia-sonic").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	r := gin.New()
	api.RegisterRoutes(r)
	server := httptest.NewServer(r)
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/admin/dlq/cartesia-sonic")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Total   int64        `json:"total"`
		Records []dlq.Record `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, int64(1), body.Total)
	require.Len(t, body.Records, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
