// Package notify delivers one-time codes to citizens.
package notify

import (
	"context"
	"time"

	"github.com/apex/log"
)

// Mailer delivers a one-time code to an email address.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string, ttl time.Duration) error
}

// LogMailer writes codes to the log instead of sending mail. Development only.
type LogMailer struct{}

// SendOTP logs the code.
func (LogMailer) SendOTP(_ context.Context, email, code string, ttl time.Duration) error {
	log.WithFields(log.Fields{
		"email": email,
		"code":  code,
		"ttl":   ttl.String(),
	}).Warn("otp delivery disabled, code logged")
	return nil
}
