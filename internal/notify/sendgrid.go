package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	apperrors "civicreport/internal/errors"
)

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer sends codes through the SendGrid v3 API.
type SendGridMailer struct {
	client    sendClient
	fromName  string
	fromEmail string
}

// NewSendGridMailer creates a mailer using apiKey.
func NewSendGridMailer(apiKey, fromName, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

// SendOTP sends the code. Any transport error or non-2xx answer is
// reported as ErrDeliveryFailed.
func (m *SendGridMailer) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	resp, err := m.client.SendWithContext(ctx, m.buildMessage(email, code, ttl))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrDeliveryFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid returned status %d", apperrors.ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}

func (m *SendGridMailer) buildMessage(email, code string, ttl time.Duration) *mail.SGMailV3 {
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(email, email)
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	plainText := fmt.Sprintf(`Your verification code is %s

It expires in %d minute(s). If you did not ask to report an issue, ignore this email.`, code, minutes)

	htmlContent := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Your verification code is</p>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
    <p>It expires in %d minute(s). If you did not ask to report an issue, ignore this email.</p>
</body>
</html>`, code, minutes)

	message := mail.NewSingleEmail(from, "Your Civic Report verification code", to, plainText, htmlContent)
	return message
}
