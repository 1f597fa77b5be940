// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package ws

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

var errMissingToken = errors.New("ws: missing bearer token")

// claims is the minimal payload the client's session token carries — just
// enough to scope pubsub channels and in-flight subscribers to a user.
type claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// authenticate extracts and verifies the connection's JWT, read either from
// the Authorization header or a `token` query parameter (browsers cannot
// set arbitrary headers on a WebSocket upgrade request).
func authenticate(r *http.Request, secret string) (string, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
			raw = h[7:]
		}
	}
	if raw == "" {
		return "", errMissingToken
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	if c.UserID == "" {
		return "", errMissingToken
	}
	return c.UserID, nil
}
