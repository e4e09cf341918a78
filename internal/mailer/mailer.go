// Package mailer delivers outbound email through Mailgun, off the request path.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/rs/zerolog/log"
)

// ErrDeliveryFailed is returned when the mail provider rejects a message.
var ErrDeliveryFailed = errors.New("mail delivery failed")

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// MailgunSender sends messages through the Mailgun HTTP API.
type MailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
}

// NewMailgunSender creates a sender for domain using apiKey. baseURL is the
// versioned API root, e.g. https://api.mailgun.net/v3.
func NewMailgunSender(baseURL, domain, apiKey string) *MailgunSender {
	mg := mailgun.NewMailgun(domain, apiKey)
	mg.SetAPIBase(strings.TrimRight(baseURL, "/"))
	mg.SetClient(&http.Client{Timeout: 10 * time.Second})

	return &MailgunSender{
		mg:   mg,
		from: fmt.Sprintf("Todo App <mailgun@%s>", domain),
	}
}

// Send hands msg to Mailgun.
func (s *MailgunSender) Send(ctx context.Context, msg Message) error {
	m := s.mg.NewMessage(s.from, msg.Subject, msg.Body, msg.To)

	_, id, err := s.mg.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	log.Debug().Str("to", msg.To).Str("mailgun_id", id).Msg("Mail accepted by Mailgun")
	return nil
}

// LogSender only logs messages. It is used when Mailgun is not configured.
type LogSender struct{}

// Send writes the message to the log.
func (LogSender) Send(_ context.Context, msg Message) error {
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Str("body", msg.Body).Msg("Mail delivery disabled, logging message instead")
	return nil
}

// RegistrationMessage builds the account confirmation email.
func RegistrationMessage(email, activationURL string) Message {
	return Message{
		To:      email,
		Subject: "Confirm your account",
		Body: "Your account has been created. " +
			"Please confirm your email address to activate it. " +
			"Activation link: " + activationURL,
	}
}
