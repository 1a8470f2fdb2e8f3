package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
)

// SMTPEmailSender sends password-reset emails over SMTP with implicit TLS
// (port 465 style endpoints).
type SMTPEmailSender struct {
	host     string
	port     string
	username string
	password string
	from     string
}

// NewSMTPEmailSender creates an email sender authenticated against the given
// SMTP server. The from address defaults to the username when empty.
func NewSMTPEmailSender(host, port, username, password, from string) *SMTPEmailSender {
	if from == "" {
		from = username
	}
	return &SMTPEmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

// Name returns the name of this sender.
func (s *SMTPEmailSender) Name() string {
	return "smtp"
}

// SendPasswordResetLink emails the recovery link to the given address.
func (s *SMTPEmailSender) SendPasswordResetLink(ctx context.Context, to, link string) error {
	subject := "Password Reset Request"
	body := fmt.Sprintf(
		"<p>We received a request to reset the password for your account.</p>"+
			"<p><a href=%q>Reset your password</a></p>"+
			"<p>The link expires in one hour. If you did not request a reset, you can ignore this email.</p>",
		link,
	)

	if err := s.send(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func (s *SMTPEmailSender) send(ctx context.Context, to, subject, body string) error {
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", s.from) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	addr := s.host + ":" + s.port
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: s.host}}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(s.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return nil
}
