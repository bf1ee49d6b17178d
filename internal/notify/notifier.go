// Package notify delivers out-of-band notifications (email). Delivery
// is fire-and-forget: a failed send is logged and never blocks or fails
// the integrity logic that triggered it.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"invoice-integrity-backend/internal/config"
)

// Notifier sends a message to a recipient.
type Notifier interface {
	Notify(recipient, subject, body string) error
}

// SMTPNotifier sends HTML mail through a plain SMTP relay.
type SMTPNotifier struct {
	cfg config.EmailConfig
}

func NewSMTPNotifier(cfg config.EmailConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) Notify(recipient, subject, body string) error {
	from := n.cfg.FromEmail
	if from == "" {
		from = n.cfg.SMTPUser
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", n.cfg.FromName, from)
	fmt.Fprintf(&msg, "To: %s\r\n", recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	auth := smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPHost)
	return smtp.SendMail(addr, auth, from, []string{recipient}, []byte(msg.String()))
}

// Async wraps a Notifier so sends happen in a goroutine with failures
// logged. Integrity transitions are always persisted before any
// notification is attempted, so a lost mail never hides a tamper event.
type Async struct {
	inner  Notifier
	logger *zap.Logger
}

func NewAsync(inner Notifier, logger *zap.Logger) *Async {
	return &Async{inner: inner, logger: logger}
}

func (a *Async) Notify(recipient, subject, body string) error {
	go func() {
		if err := a.inner.Notify(recipient, subject, body); err != nil {
			a.logger.Warn("notification delivery failed",
				zap.String("recipient", recipient),
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}()
	return nil
}
