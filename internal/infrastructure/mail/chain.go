package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"DigestAgent/internal/ports"
)

// ErrNotConfigured is returned when no sender is available.
var ErrNotConfigured = errors.New("no mail sender configured")

// Chain tries each configured sender in order until one succeeds.
type Chain struct {
	senders []namedSender
	logger  *slog.Logger
}

type namedSender struct {
	name   string
	sender ports.MailSender
}

var _ ports.MailSender = (*Chain)(nil)

// NewChain builds an empty chain; add senders with With.
func NewChain(logger *slog.Logger) *Chain {
	return &Chain{logger: logger}
}

// With appends sender under name. Nil senders are ignored.
func (c *Chain) With(name string, sender ports.MailSender) *Chain {
	if sender == nil || isNilSender(sender) {
		return c
	}
	c.senders = append(c.senders, namedSender{name: name, sender: sender})
	return c
}

// Configured reports whether at least one sender is present.
func (c *Chain) Configured() bool {
	return len(c.senders) > 0
}

// Send delivers through the first sender that succeeds.
func (c *Chain) Send(ctx context.Context, to, subject, htmlBody string) error {
	if len(c.senders) == 0 {
		return ErrNotConfigured
	}

	var errs []error
	for _, s := range c.senders {
		err := s.sender.Send(ctx, to, subject, htmlBody)
		if err == nil {
			c.logger.Info("mail sent", "sender", s.name, "to", to)
			return nil
		}
		c.logger.Warn("mail sender failed", "sender", s.name, "to", to, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

func isNilSender(sender ports.MailSender) bool {
	switch s := sender.(type) {
	case *ResendSender:
		return s == nil
	case *SMTPSender:
		return s == nil
	default:
		return false
	}
}
