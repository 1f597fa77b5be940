// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleAudio serves the cached audio bytes for a variant hash at the
// AudioURL path the consumer package stamps onto every status message
// ("/audio/" + variant_hash).
func (d *Dispatcher) HandleAudio(c *gin.Context) {
	variantHash := c.Param("variant_hash")
	audio, hit, err := d.cache.Get(c.Request.Context(), variantHash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cache lookup failed"})
		return
	}
	if !hit {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}
