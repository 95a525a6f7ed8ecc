package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"DigestAgent/internal/ports"
)

const (
	implicitTLSPort = 465
	dialTimeout     = 30 * time.Second
)

// SMTPSender delivers mail over SMTP with PLAIN auth.
type SMTPSender struct {
	host     string
	port     int
	user     string
	password string
	from     string
}

var _ ports.MailSender = (*SMTPSender)(nil)

// NewSMTPSender returns nil unless host, user and password are all set.
func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	if host == "" || user == "" || password == "" {
		return nil
	}
	if port == 0 {
		port = 587
	}
	if from == "" {
		from = user
	}
	return &SMTPSender{host: host, port: port, user: user, password: password, from: from}
}

// Send writes one HTML message. Port 465 uses implicit TLS, any other port
// upgrades with STARTTLS when the server offers it.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg, err := newMessage(s.from, to, subject, htmlBody)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.user),
		gomail.WithPassword(s.password),
		gomail.WithTimeout(dialTimeout),
	}
	if s.port == implicitTLSPort {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	return append(opts, gomail.WithPort(s.port))
}

func newMessage(from, to, subject, htmlBody string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)
	return msg, nil
}
