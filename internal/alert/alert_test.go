// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package alert

import (
	"strings"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent *mail.SGMailV3
}

func (f *fakeSender) Send(email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = email
	return &rest.Response{StatusCode: 202}, nil
}

func TestDLQDepthExceededSendsEmailWithDepthAndThreshold(t *testing.T) {
	fs := &fakeSender{}
	n := &Notifier{client: fs, fromEmail: "alerts@synthbridge.dev", toEmail: "ops@synthbridge.dev"}

	err := n.DLQDepthExceeded("cartesia-sonic", 75, 50)
	require.NoError(t, err)
	require.NotNil(t, fs.sent)
	require.Contains(t, fs.sent.Subject, "cartesia-sonic")
	require.True(t, strings.Contains(fs.sent.Content[0].Value, "75"))
}
