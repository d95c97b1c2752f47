// Package notify implements the asynchronous notification dispatcher and
// its SMTP delivery backend. Delivery is best effort by contract: failures
// are logged and counted, never propagated to the workflow action that
// triggered the event.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends one message to a recipient list.
type Mailer interface {
	Send(subject, message string, to []string) error
}

// SMTPConfig holds the SMTP delivery settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer delivers mail over plain SMTP.
type SMTPMailer struct {
	config SMTPConfig
	server string
	auth   smtp.Auth
}

// NewSMTPMailer constructs a mailer from config. Auth is only used when a
// username is configured.
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &SMTPMailer{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured reports whether enough settings are present to deliver.
func (m *SMTPMailer) IsConfigured() bool {
	return m.config.Host != "" && m.config.Port != "" && m.config.From != ""
}

// Send delivers a plain text message.
func (m *SMTPMailer) Send(subject, message string, to []string) error {
	if !m.IsConfigured() {
		return fmt.Errorf("smtp mailer not configured")
	}

	from := m.config.From
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		message,
	))

	return smtp.SendMail(m.server, m.auth, m.config.From, to, msg)
}
