package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

// EmailSender delivers notifications over plain SMTP.
type EmailSender struct {
	config SMTPConfig
}

func NewEmailSender(config SMTPConfig) (*EmailSender, error) {
	if config.Host == "" || config.Port == "" || config.Username == "" || config.Password == "" {
		return nil, fmt.Errorf("incomplete SMTP configuration: host=%q, port=%q, username=%q",
			config.Host, config.Port, config.Username)
	}
	return &EmailSender{config: config}, nil
}

func (s *EmailSender) Channel() string { return ChannelEmail }

func (s *EmailSender) Send(_ context.Context, to string, payload Payload) error {
	addr := s.config.Host + ":" + s.config.Port
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	from := s.config.Username
	body := payload.Body
	if payload.DeepLink != "" {
		body += fmt.Sprintf("<p><a href=%q>Open your plan</a></p>", payload.DeepLink)
	}

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	message := "From: " + from + "\n" +
		"To: " + to + "\n" +
		"Subject: " + payload.Title + "\n" +
		mime + "\n" +
		body

	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("SMTP send error: %w", err)
	}
	return nil
}
