package mailer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

func TestMessageValidate(t *testing.T) {
	assert.Error(t, Message{Subject: "x"}.Validate())
	assert.Error(t, Message{To: "not-an-address", Subject: "x"}.Validate())
	assert.Error(t, Message{To: "buyer@hospital.org"}.Validate())
	assert.NoError(t, Message{To: "buyer@hospital.org", Subject: "Sign"}.Validate())
}

func TestLogSenderSend(t *testing.T) {
	sender := NewLogSender(zap.NewNop())
	require.NoError(t, sender.Send(context.Background(), Message{To: "buyer@hospital.org", Subject: "Sign"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sender.Send(ctx, Message{To: "buyer@hospital.org", Subject: "Sign"}), context.Canceled)
}

func TestSMTPSenderComposesMessage(t *testing.T) {
	var got *gomail.Msg

	sender := NewSMTPSender(SMTPConfig{
		Host:        "smtp.example.com",
		Port:        587,
		Username:    "user",
		Password:    "pass",
		FromAddress: "no-reply@example.com",
		FromName:    "Sales Evaluations",
	})
	sender.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	sender.deliver = func(ctx context.Context, m *gomail.Msg) error {
		got = m
		return nil
	}

	err := sender.Send(context.Background(), Message{
		To:      "Pat Buyer <buyer@hospital.org>",
		Subject: "Please sign EV-20261015-ABC123",
		Body:    "https://app.example.com/sign?token=abc",
	})
	require.NoError(t, err)
	require.NotNil(t, got)

	recipients, err := got.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer@hospital.org"}, recipients)
	assert.Equal(t, []string{"Please sign EV-20261015-ABC123"}, got.GetGenHeader(gomail.HeaderSubject))

	var buf bytes.Buffer
	_, err = got.WriteTo(&buf)
	require.NoError(t, err)
	rendered := buf.String()
	assert.Contains(t, rendered, `"Pat Buyer" <buyer@hospital.org>`)
	assert.Contains(t, rendered, `"Sales Evaluations" <no-reply@example.com>`)
	assert.Contains(t, rendered, "https://app.example.com/sign?token=abc")
}

func TestSMTPSenderWrapsTransportError(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 25, FromAddress: "no-reply@example.com"})
	sender.deliver = func(context.Context, *gomail.Msg) error {
		return errors.New("connection refused")
	}

	err := sender.Send(context.Background(), Message{To: "buyer@hospital.org", Subject: "Sign"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSMTPSenderHonoursCancelledContext(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 25, FromAddress: "no-reply@example.com"})
	called := false
	sender.deliver = func(context.Context, *gomail.Msg) error {
		called = true
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sender.Send(ctx, Message{To: "buyer@hospital.org", Subject: "Sign"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
