package notifier

import (
	"context"
	"fmt"
	"net/smtp"
)

// メール送信の約束。SMTP以外（テスト用フェイクなど）も差し込める
type Mailer interface {
	Send(ctx context.Context, to string, bcc string, subject string, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Password string
}

type smtpMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{cfg: cfg}
}

func (m *smtpMailer) Send(ctx context.Context, to string, bcc string, subject string, body string) error {
	msg := []byte(
		"Subject: " + subject + "\r\n" +
			"MIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n" +
			body)

	recipients := []string{to}
	if bcc != "" {
		recipients = append(recipients, bcc)
	}

	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)

	if err := smtp.SendMail(addr, auth, m.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}
