package service

import (
	"context"
	"fmt"

	"github.com/higpup01-design/proofok/config"
	"github.com/wneessen/go-mail"
)

// Message is one notification email with plain-text and HTML alternatives
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a composed message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// MailSender delivers over SMTP, opening a fresh connection per message
type MailSender struct {
	config *config.MailConfig
}

func NewMailSender(cfg *config.MailConfig) *MailSender {
	return &MailSender{config: cfg}
}

// Send builds a multipart/alternative message and hands it to the relay
func (s *MailSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(s.config.To); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)

	client, err := mail.NewClient(s.config.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *MailSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.config.Port),
		mail.WithTimeout(s.config.MailTimeout()),
	}

	if s.config.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		// Upgrade with STARTTLS when the relay offers it, carry on in plaintext otherwise
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if s.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(s.authType()),
			mail.WithUsername(s.config.Username),
			mail.WithPassword(s.config.Password),
		)
	}
	return opts
}

// authType is PLAIN, which go-mail only sends over TLS or to localhost, unless
// the relay is explicitly allowed to take credentials in the clear
func (s *MailSender) authType() mail.SMTPAuthType {
	if s.config.InsecureAuth {
		return mail.SMTPAuthPlainNoEnc
	}
	return mail.SMTPAuthPlain
}
