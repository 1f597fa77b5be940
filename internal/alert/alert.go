// Copyright (c) 2026 Synthbridge
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

// Package alert sends an operator email once a model's DLQ depth crosses
// dlq_alert_threshold (spec §6.4/§8, "ops is alerted once dlq_depth
// exceeds a configured threshold"). A thin wrapper over sendgrid-go, the
// same shape the teacher uses for its own transactional notifications.
package alert

import (
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/readvox/synthbridge/internal/commons"
)

// sender is the one sendgrid.Client method this package calls, narrowed so
// a fake can stand in for tests without hitting the network.
type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// Notifier sends a DLQ-depth alert email. When to send is decided by the
// caller (cmd/gateway's watchDLQDepth, which sends on every check while a
// model's depth is at or above the threshold), not here.
type Notifier struct {
	client    sender
	fromEmail string
	toEmail   string
	logger    commons.Logger
}

func New(apiKey, fromEmail, toEmail string, logger commons.Logger) *Notifier {
	return &Notifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		toEmail:   toEmail,
		logger:    logger,
	}
}

// DLQDepthExceeded sends the operator email for a model whose dead-letter
// depth has crossed the configured threshold.
func (n *Notifier) DLQDepthExceeded(modelID string, depth, threshold int64) error {
	from := mail.NewEmail("Synthbridge", n.fromEmail)
	to := mail.NewEmail("Ops", n.toEmail)
	subject := fmt.Sprintf("synthbridge: DLQ depth alert for %s", modelID)
	body := fmt.Sprintf(
		"Model %s has %d dead-lettered jobs, above the configured threshold of %d.\n"+
			"Jobs in this state were retried max_retries times and require manual replay or disposal.",
		modelID, depth, threshold,
	)
	content := mail.NewContent("text/plain", body)
	message := mail.NewV3MailInit(from, subject, to, content)

	resp, err := n.client.Send(message)
	if err != nil {
		return fmt.Errorf("alert: send failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		n.logger.Warn("alert: sendgrid returned non-2xx", "status_code", resp.StatusCode, "body", resp.Body)
	}
	return nil
}
