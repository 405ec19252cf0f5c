package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPNotifier emails message to a fixed recipient.
type SMTPNotifier struct {
	Host     string
	Port     int
	From     string
	To       string
	Password string
	Subject  string
}

func (s *SMTPNotifier) Notify(_ context.Context, message string) error {
	port := s.Port
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", s.Host, port)

	subject := s.Subject
	if subject == "" {
		subject = "Action plan generation update"
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		s.From, s.To, subject, message)

	var auth smtp.Auth
	if s.Password != "" {
		auth = smtp.PlainAuth("", s.From, s.Password, s.Host)
	}

	if err := smtp.SendMail(addr, auth, s.From, []string{s.To}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp notify: %w", err)
	}
	return nil
}
