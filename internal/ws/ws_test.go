// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/readvox/synthbridge/internal/cache"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/inflight"
	"github.com/readvox/synthbridge/internal/normalize"
	"github.com/readvox/synthbridge/internal/pubsub"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/synth"
)

const testJWTSecret = "ws-test-secret-ws-test-secret-32"

type wsHarness struct {
	server     *httptest.Server
	dispatcher *Dispatcher
	queue      *queue.Queue
	cache      *cache.Cache
	inflight   *inflight.Registry
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := commons.NewTestLogger()
	q := queue.New(client, logger, "synth", 3)
	c := cache.New(client, logger, 1<<30)
	reg := inflight.New(client, logger)
	bus := pubsub.New(client, logger)

	d := New(q, c, reg, bus, logger, testJWTSecret)

	r := gin.New()
	d.RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &wsHarness{server: server, dispatcher: d, queue: q, cache: c, inflight: reg}
}

func (h *wsHarness) token(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{UserID: userID})
	signed, err := tok.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (h *wsHarness) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(h.server.URL, "http://", "ws://", 1) + "/ws?token=" + h.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendSynthesize(t *testing.T, conn *websocket.Conn, msg synthesizeMsg) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(inboundEnvelope{Type: inboundSynthesize, Data: data}))
}

func sendCursorMoved(t *testing.T, conn *websocket.Conn, msg cursorMovedMsg) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(inboundEnvelope{Type: inboundCursorMoved, Data: data}))
}

func readStatus(t *testing.T, conn *websocket.Conn) domain.StatusMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg domain.StatusMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestCacheHitRespondsImmediatelyWithoutEnqueuing(t *testing.T) {
	h := newWSHarness(t)
	ctx := context.Background()

	normalized := normalize.Text("Hello   world")
	variantHash := synth.Fingerprint(normalized, "cartesia-sonic", "v1", nil)
	require.NoError(t, h.cache.Put(ctx, domain.CacheEntry{VariantHash: variantHash, ModelID: "cartesia-sonic", VoiceID: "v1"}, []byte("audio")))

	conn := h.dial(t, "user-1")
	sendSynthesize(t, conn, synthesizeMsg{DocumentID: "doc-1", BlockIndex: 0, Text: "Hello   world", ModelID: "cartesia-sonic", VoiceID: "v1"})

	msg := readStatus(t, conn)
	require.Equal(t, domain.StatusCached, msg.Status)
	require.Equal(t, "/audio/"+variantHash, msg.AudioURL)

	n, err := h.queue.Depth(ctx, "cartesia-sonic")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestDuplicateRequestsJoinSingleInFlightJob(t *testing.T) {
	h := newWSHarness(t)
	ctx := context.Background()

	connA := h.dial(t, "user-a")
	sendSynthesize(t, connA, synthesizeMsg{DocumentID: "doc-1", BlockIndex: 0, Text: "hello world", ModelID: "cartesia-sonic", VoiceID: "v1"})
	queuedA := readStatus(t, connA)
	require.Equal(t, domain.StatusQueued, queuedA.Status)

	connB := h.dial(t, "user-b")
	sendSynthesize(t, connB, synthesizeMsg{DocumentID: "doc-2", BlockIndex: 3, Text: "hello world", ModelID: "cartesia-sonic", VoiceID: "v1"})
	queuedB := readStatus(t, connB)
	require.Equal(t, domain.StatusQueued, queuedB.Status)
	require.Equal(t, queuedA.VariantHash, queuedB.VariantHash)

	subs, err := h.inflight.Subscribers(ctx, queuedA.VariantHash)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	_, _, err = h.queue.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.NoError(t, err)
	_, _, err = h.queue.PopAndClaim(ctx, "cartesia-sonic", "worker-1", time.Second)
	require.Error(t, err) // only one job was ever pushed for the shared variant
}

func TestCursorMovedEvictsPassedBlockSubscriber(t *testing.T) {
	h := newWSHarness(t)
	ctx := context.Background()

	conn := h.dial(t, "user-1")
	sendSynthesize(t, conn, synthesizeMsg{DocumentID: "doc-1", BlockIndex: 0, Text: "block zero", ModelID: "cartesia-sonic", VoiceID: "v1"})
	queued := readStatus(t, conn)
	require.Equal(t, domain.StatusQueued, queued.Status)

	sendCursorMoved(t, conn, cursorMovedMsg{DocumentID: "doc-1", CursorIndex: 5})

	require.Eventually(t, func() bool {
		subs, err := h.inflight.Subscribers(ctx, queued.VariantHash)
		return err == nil && len(subs) == 0
	}, 2*time.Second, 50*time.Millisecond)
}
