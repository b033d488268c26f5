// Package email sends plain text mail over SMTP.
package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Sender delivers mail through one SMTP account.
type Sender struct {
	server   string
	port     int
	username string
	password string
	fromName string
}

func NewSender(server string, port int, username, password, fromName string) (*Sender, error) {
	if server == "" || port == 0 || username == "" || password == "" {
		return nil, fmt.Errorf("missing email configuration: server, port, username, or password is empty")
	}
	return &Sender{
		server:   server,
		port:     port,
		username: username,
		password: password,
		fromName: fromName,
	}, nil
}

func (s *Sender) Send(to, subject, body string) error {
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.fromName, s.username, to, subject, body))
	auth := smtp.PlainAuth("", s.username, s.password, s.server)
	addr := fmt.Sprintf("%s:%d", s.server, s.port)
	if err := smtp.SendMail(addr, auth, s.username, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}
