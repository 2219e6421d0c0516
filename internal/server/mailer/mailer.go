// Package mailer delivers notification email: verification links and
// security alerts. Delivery is best-effort; callers log failures and never
// let them reach the request's error path.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Sender delivers notification email.
type Sender interface {
	// SendVerificationEmail mails the signed verification link to email.
	SendVerificationEmail(ctx context.Context, email, token string) error

	// SendSecurityAlert warns the account owner that a refresh token was
	// replayed and every session in that lineage has been revoked.
	SendSecurityAlert(ctx context.Context, email string) error
}

// Config holds SMTP settings and the base URL used in verification links.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string
}

// SMTPSender implements Sender over net/smtp with STARTTLS.
type SMTPSender struct {
	cfg Config
	// send is swapped in tests; production uses smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) sendHTML(email, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Server)

	if err := s.send(addr, auth, s.cfg.From, []string{email}, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", email, err)
	}
	return nil
}

func (s *SMTPSender) SendVerificationEmail(_ context.Context, email, token string) error {
	verificationURL := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.AppURL, token)
	body := fmt.Sprintf(`<html><body>
<h2>Welcome to CloudVault!</h2>
<p>Please click the link below to verify your email address:</p>
<p><a href=%q>Verify Email</a></p>
</body></html>`, verificationURL)

	return s.sendHTML(email, "Verify Your Email Address", body)
}

func (s *SMTPSender) SendSecurityAlert(_ context.Context, email string) error {
	body := `<html><body>
<h2>Security alert</h2>
<p>A sign-in token for your account was used twice. As a precaution, every
session in that chain has been signed out. Please sign in again and consider
changing your password.</p>
</body></html>`

	return s.sendHTML(email, "Suspicious sign-in activity", body)
}
