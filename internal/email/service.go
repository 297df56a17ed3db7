// Package email sends transactional mail over SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Service handles email sending via SMTP.
type Service struct {
	host     string
	port     int
	from     string
	username string
	password string

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service. Credentials are optional.
func NewService(host string, port int, from, username, password string) *Service {
	return &Service{
		host:     host,
		port:     port,
		from:     from,
		username: username,
		password: password,
		sendMail: smtp.SendMail,
	}
}

// Send delivers an HTML message to one recipient.
func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	if s.host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	return s.sendMail(addr, auth, s.from, []string{to}, []byte(msg))
}
