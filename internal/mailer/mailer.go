// Package mailer renders customer notifications as e-mail and delivers them
// over SMTP.
package mailer

import "context"

// Email is a single plain-text message.
type Email struct {
	FromName string
	From     string
	To       []string
	Subject  string
	TextBody string
	Headers  map[string]string
}

// Sender delivers an Email.
type Sender interface {
	Send(ctx context.Context, e Email) error
}
