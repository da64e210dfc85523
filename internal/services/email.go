package services

import (
	"fmt"
	"html"
	"net/smtp"

	"github.com/dimitrije/starter-api/internal/config"
)

type EmailService struct {
	cfg      config.SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailService(cfg config.SMTPConfig) *EmailService {
	return &EmailService{cfg: cfg, sendMail: smtp.SendMail}
}

func (s *EmailService) IsConfigured() bool {
	return s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != "" && s.cfg.From != ""
}

// Send is a no-op when SMTP is not configured.
func (s *EmailService) Send(to, subject, body string) error {
	if !s.IsConfigured() {
		return nil
	}

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.cfg.From, to, subject, body)

	return s.sendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg))
}

func (s *EmailService) SendPasswordReset(to, name, resetURL string) error {
	greeting := "Hi,"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s,", html.EscapeString(name))
	}

	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>Reset your password</h2>
			<p>%s</p>
			<p>Someone asked to reset the password for this account. If it was you, follow the link below within the hour.</p>
			<p><a href="%s">Choose a new password</a></p>
			<p>If you did not ask for this, you can ignore this email.</p>
		</body>
		</html>
	`, greeting, html.EscapeString(resetURL))

	return s.Send(to, "Reset your password", body)
}
