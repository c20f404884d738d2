package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// MailConfig addresses the SMTP relay.
type MailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	Timeout  time.Duration
}

// MailSink mails the alert to the manager's address.
type MailSink struct {
	cfg MailConfig
}

// NewMailSink creates a mail sink.
func NewMailSink(cfg MailConfig) *MailSink {
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &MailSink{cfg: cfg}
}

// Name implements Sink.
func (s *MailSink) Name() string { return "mail" }

// Send implements Sink.
func (s *MailSink) Send(ctx context.Context, ev Event) error {
	if ev.ManagerEmail == "" {
		return errors.New("no recipient address")
	}

	msg, err := s.Message(ev)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Username == "" {
		opts = append(opts, mail.WithTLSPortPolicy(mail.NoTLS))
	} else {
		// Credentials are only offered once the relay upgrades to TLS.
		opts = append(opts,
			mail.WithTLSPortPolicy(mail.TLSMandatory),
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create mail client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", ev.ManagerEmail, err)
	}
	return nil
}

// Message builds the mail for ev.
func (s *MailSink) Message(ev Event) (*mail.Msg, error) {
	body, err := RenderBody(ev)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.cfg.From, err)
	}
	if err := msg.AddToFormat(ev.Manager, ev.ManagerEmail); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", ev.ManagerEmail, err)
	}
	msg.Subject(Subject(ev))
	msg.SetDateWithValue(ev.Timestamp)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
