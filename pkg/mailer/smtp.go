package mailer

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

type deliverFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPSender delivers messages through an SMTP relay using STARTTLS when offered.
type SMTPSender struct {
	cfg     SMTPConfig
	deliver deliverFunc
	now     func() time.Time
}

// NewSMTPSender constructs an SMTP backed Sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	s := &SMTPSender{cfg: cfg, now: time.Now}
	s.deliver = s.dialAndSend
	return s
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := s.compose(msg)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) compose(msg Message) (*gomail.Msg, error) {
	fromName := msg.FromName
	if fromName == "" {
		fromName = s.cfg.FromName
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(fromName, s.cfg.FromAddress); err != nil {
		return nil, fmt.Errorf("mailer: invalid sender %q: %w", s.cfg.FromAddress, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("mailer: invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDateWithValue(s.now())
	m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	return m, nil
}

func (s *SMTPSender) dialAndSend(ctx context.Context, m *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}
