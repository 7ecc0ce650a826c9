// Package mailer delivers recovery e-mails consumed from the message queue.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eduaventuras/apiserver/config"
	"github.com/eduaventuras/apiserver/internal/i18n"
	"github.com/eduaventuras/apiserver/internal/mq"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer renders localized recovery e-mails and sends them over SMTP.
type Mailer struct {
	cfg    config.SMTPConfig
	bundle *i18n.Bundle
	logger logrus.FieldLogger
	send   SendFunc
	now    func() time.Time
}

// Option customises a Mailer.
type Option func(*Mailer)

// WithSender replaces smtp.SendMail.
func WithSender(send SendFunc) Option {
	return func(m *Mailer) {
		m.send = send
	}
}

// New constructs a Mailer. logger may be nil.
func New(cfg config.SMTPConfig, bundle *i18n.Bundle, logger logrus.FieldLogger, opts ...Option) *Mailer {
	m := &Mailer{
		cfg:    cfg,
		bundle: bundle,
		logger: logger,
		send:   smtp.SendMail,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle sends one recovery e-mail. Returning an error asks the broker to
// redeliver the message.
func (m *Mailer) Handle(ctx context.Context, msg mq.RecoveryMessage) error {
	log := m.logger.WithField("to_domain", domainOf(msg.Email))
	if !msg.ExpiresAt.IsZero() && m.now().After(msg.ExpiresAt) {
		log.Info("dropping recovery message for an expired token")
		return nil
	}
	if m.cfg.Host == "" {
		log.Warn("smtp host not configured, recovery e-mail not sent")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := m.Render(msg)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(addr, auth, m.cfg.From, []string{msg.Email}, body); err != nil {
		log.WithError(err).Error("failed to send recovery e-mail")
		return fmt.Errorf("send recovery e-mail: %w", err)
	}
	log.Info("recovery e-mail sent")
	return nil
}

// Render builds the RFC 5322 message for msg in its requested language.
func (m *Mailer) Render(msg mq.RecoveryMessage) ([]byte, error) {
	if msg.Email == "" {
		return nil, errors.New("recovery message has no recipient")
	}
	lang := m.bundle.Match(msg.Language)
	link := msg.ResetURL
	if link == "" {
		link = msg.Token
	}
	name := msg.Name
	if name == "" {
		name = msg.Email
	}
	subject := m.bundle.Message("mail.recovery.subject", lang, nil)
	text := m.bundle.Message("mail.recovery.body", lang, map[string]string{
		"nombre": name,
		"expira": msg.ExpiresAt.Format("2006-01-02 15:04 MST"),
		"enlace": link,
	})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.Email)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(text)
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

func domainOf(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
