// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartSpanRecordsErrorWithoutPanicking(t *testing.T) {
	_, endSpan := StartSpan(context.Background(), "test.span")
	require.NotPanics(t, func() { endSpan(errors.New("boom")) })
}

func TestStartSpanSucceedsWithNilError(t *testing.T) {
	_, endSpan := StartSpan(context.Background(), "test.span")
	require.NotPanics(t, func() { endSpan(nil) })
}

func TestWrapHandlerServesUnderlyingHandler(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	wrapped := WrapHandler(inner, "test.operation")
	server := httptest.NewServer(wrapped)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.True(t, called)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
