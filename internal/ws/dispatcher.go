// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/readvox/synthbridge/internal/cache"
	"github.com/readvox/synthbridge/internal/commons"
	"github.com/readvox/synthbridge/internal/domain"
	"github.com/readvox/synthbridge/internal/inflight"
	"github.com/readvox/synthbridge/internal/normalize"
	"github.com/readvox/synthbridge/internal/pubsub"
	"github.com/readvox/synthbridge/internal/queue"
	"github.com/readvox/synthbridge/internal/synth"
)

// Dispatcher is the WebSocket half of the gateway (spec §4.8): it owns
// in-flight insertions and pending-set writes, and never touches cache or
// claim-set state directly (spec §3 ownership invariant). Upgrade idiom
// grounded on the teacher's webrtc.go gin handler; the connection loop and
// JSON envelope are grounded on websocket_executor.go.
type Dispatcher struct {
	queue    *queue.Queue
	cache    *cache.Cache
	inflight *inflight.Registry
	pubsub   *pubsub.Bus
	logger   commons.Logger

	jwtSecret string
	upgrader  websocket.Upgrader
}

func New(q *queue.Queue, c *cache.Cache, reg *inflight.Registry, bus *pubsub.Bus, logger commons.Logger, jwtSecret string) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		cache:     c,
		inflight:  reg,
		pubsub:    bus,
		logger:    logger,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and runs the connection's read loop
// until it disconnects, then performs the spec §4.8.4 cleanup.
func (d *Dispatcher) HandleConnection(c *gin.Context) {
	userID, err := authenticate(c.Request, d.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := d.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		d.logger.Error("ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sess := newSession(conn, userID)
	defer d.cleanup(ctx, sess)

	for {
		var env inboundEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.logger.Warn("ws: connection closed unexpectedly", "user_id", userID, "error", err)
			}
			return
		}

		switch env.Type {
		case inboundSynthesize:
			var msg synthesizeMsg
			if err := decode(env.Data, &msg); err != nil {
				d.logger.Warn("ws: malformed synthesize message", "user_id", userID, "error", err)
				continue
			}
			d.handleSynthesize(ctx, sess, msg)
		case inboundCursorMoved:
			var msg cursorMovedMsg
			if err := decode(env.Data, &msg); err != nil {
				d.logger.Warn("ws: malformed cursor_moved message", "user_id", userID, "error", err)
				continue
			}
			d.handleCursorMoved(ctx, sess, msg)
		default:
			d.logger.Warn("ws: unknown message type", "user_id", userID, "type", env.Type)
		}
	}
}

// handleSynthesize implements spec §4.8.2 end to end.
func (d *Dispatcher) handleSynthesize(ctx context.Context, sess *session, msg synthesizeMsg) {
	normalizedText := normalize.Text(msg.Text)
	variantHash := synth.Fingerprint(normalizedText, msg.ModelID, msg.VoiceID, msg.VoiceParameters)

	d.ensureSubscribed(ctx, sess, msg.DocumentID)

	_, hit, err := d.cache.Get(ctx, variantHash)
	if err != nil {
		d.logger.Error("ws: cache lookup failed", "variant_hash", variantHash, "error", err)
	}
	if hit {
		// Audio bytes are served from /audio/{variant_hash}, not inlined on the socket.
		_ = sess.writeJSON(domain.StatusMessage{
			DocumentID:  msg.DocumentID,
			BlockIndex:  msg.BlockIndex,
			VariantHash: variantHash,
			Status:      domain.StatusCached,
			ModelID:     msg.ModelID,
			VoiceID:     msg.VoiceID,
			AudioURL:    "/audio/" + variantHash,
		})
		return
	}

	sub := domain.Subscriber{UserID: sess.userID, DocumentID: msg.DocumentID, BlockIndex: msg.BlockIndex}
	alreadyInFlight, err := d.inflight.Register(ctx, variantHash, sub)
	if err != nil {
		d.logger.Error("ws: inflight register failed", "variant_hash", variantHash, "error", err)
		return
	}
	sess.addPending(msg.DocumentID, msg.BlockIndex, variantHash)

	if !alreadyInFlight {
		job := domain.SynthesisJob{
			JobID:           uuid.NewString(),
			VariantHash:     variantHash,
			BlockIndex:      msg.BlockIndex,
			DocumentID:      msg.DocumentID,
			UserID:          sess.userID,
			ModelID:         msg.ModelID,
			VoiceID:         msg.VoiceID,
			VoiceParameters: msg.VoiceParameters,
			Text:            normalizedText,
			ContextTokens:   msg.ContextTokens,
			EnqueuedAt:      time.Now(),
		}
		if err := d.queue.Push(ctx, msg.ModelID, job); err != nil {
			d.logger.Error("ws: job push failed", "variant_hash", variantHash, "error", err)
			return
		}
	}

	_ = sess.writeJSON(domain.StatusMessage{
		DocumentID:  msg.DocumentID,
		BlockIndex:  msg.BlockIndex,
		VariantHash: variantHash,
		Status:      domain.StatusQueued,
		ModelID:     msg.ModelID,
		VoiceID:     msg.VoiceID,
	})
}

// handleCursorMoved implements spec §4.8.3: blocks behind the cursor are
// dropped from the pending set, but any job already enqueued for them runs
// to completion regardless.
func (d *Dispatcher) handleCursorMoved(ctx context.Context, sess *session, msg cursorMovedMsg) {
	evicted := sess.evictOutsideWindow(msg.DocumentID, msg.CursorIndex)
	for _, p := range evicted {
		if err := d.inflight.RemoveSubscriber(ctx, p.variantHash, p.subscriber); err != nil {
			d.logger.Warn("ws: remove subscriber failed", "variant_hash", p.variantHash, "error", err)
		}
	}
}

// ensureSubscribed opens a pubsub subscription to done:{user_id}:{document_id}
// the first time this connection touches documentID, and starts the relay
// goroutine that forwards deliveries to the client (spec §4.8.2.b, §4.9's
// "dynamic subscription membership" design note: "a set + lazy-subscribe
// pattern; unsubscribe only at connection close").
func (d *Dispatcher) ensureSubscribed(ctx context.Context, sess *session, documentID string) {
	if sess.isSubscribed(documentID) {
		return
	}
	sub := d.pubsub.Subscribe(ctx, sess.userID, documentID)
	sess.addSubscription(documentID, sub)
	go relaySubscription(ctx, sess, documentID, sub, func(blockIndex int) {
		sess.removePending(documentID, blockIndex)
	})
}

// cleanup implements spec §4.8.4: unsubscribe every channel, clear the
// pending set, and release this connection's in-flight subscriber rows.
// Jobs already enqueued by this connection are left to run; claims time
// out and route to the DLQ on their own if nobody ever collects the
// result.
func (d *Dispatcher) cleanup(ctx context.Context, sess *session) {
	subs, pending := sess.drain()
	for _, sub := range subs {
		_ = sub.Close()
	}
	for _, p := range pending {
		if err := d.inflight.RemoveSubscriber(ctx, p.variantHash, p.subscriber); err != nil {
			d.logger.Warn("ws: remove subscriber on close failed", "variant_hash", p.variantHash, "error", err)
		}
	}
}

func decode(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}
