package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// Message is a plain-text email.
type Message struct {
	To       string
	Subject  string
	Body     string
	FromName string
}

// Validate checks the message has a deliverable recipient and content.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("mailer: recipient required")
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("mailer: invalid recipient %q: %w", m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mailer: subject required")
	}
	return nil
}

// Sender dispatches email messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the logger instead of delivering them. Used in development.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.Info("email dispatched",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("from_name", msg.FromName),
		zap.String("body", msg.Body),
	)
	return nil
}
