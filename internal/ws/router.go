// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package ws

import "github.com/gin-gonic/gin"

// RegisterRoutes wires the dispatcher's two HTTP surfaces onto an existing
// gin engine: the WebSocket upgrade endpoint and the cached-audio fetch
// route, matching the teacher's practice of grouping a feature's handlers
// behind one registration call (see webrtc.go's route group setup).
func (d *Dispatcher) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", d.HandleConnection)
	r.GET("/audio/:variant_hash", d.HandleAudio)
}
