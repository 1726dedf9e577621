// Package mail delivers validation notifications.
package mail

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// DefaultSendMailJob is the platform job that delivers email.
const DefaultSendMailJob = "apify/send-mail"

// PlatformMailer sends email by invoking the platform's send-mail job.
type PlatformMailer struct {
	invoker validation.Invoker
	jobID   string
}

// NewPlatformMailer creates a PlatformMailer. An empty jobID selects DefaultSendMailJob.
func NewPlatformMailer(invoker validation.Invoker, jobID string) (*PlatformMailer, error) {
	if invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if strings.TrimSpace(jobID) == "" {
		jobID = DefaultSendMailJob
	}
	return &PlatformMailer{invoker: invoker, jobID: jobID}, nil
}

// Send invokes the send-mail job with {to, subject, text}.
func (m *PlatformMailer) Send(ctx context.Context, email validation.Email) error {
	if strings.TrimSpace(email.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if err := m.invoker.Invoke(ctx, m.jobID, email); err != nil {
		return fmt.Errorf("invoke %s: %w", m.jobID, err)
	}
	return nil
}

// LogMailer logs emails instead of sending them. It is useful for dry runs.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer wires a Zap logger to the mailer interface.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs the email.
func (m *LogMailer) Send(_ context.Context, email validation.Email) error {
	m.logger.Info("notification email",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("text", email.Text),
	)
	return nil
}
