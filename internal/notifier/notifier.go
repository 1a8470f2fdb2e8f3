// Package notifier delivers account-recovery messages to users over
// email and SMS.
package notifier

import "context"

// EmailSender delivers password-reset emails.
type EmailSender interface {
	Name() string
	SendPasswordResetLink(ctx context.Context, to, link string) error
}

// SMSSender delivers one-time password codes to phone numbers.
type SMSSender interface {
	Name() string
	SendOTP(ctx context.Context, phoneNumber, code string) error
}
