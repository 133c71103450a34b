package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/cardswap/cardswap/internal/auth"
	"github.com/cardswap/cardswap/pkg/logger"
)

// sesAPI is the subset of the SES client the mailer uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer delivers sign-in codes, confirmation links and seller
// notifications through AWS SES.
type SESMailer struct {
	sesClient   sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESMailer creates a mailer using the default AWS credential chain.
func NewSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSESMailer(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func newSESMailer(client sesAPI, fromAddress string, logger *slog.Logger) *SESMailer {
	return &SESMailer{sesClient: client, fromAddress: fromAddress, logger: logger}
}

const emailStyle = `
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 28px; letter-spacing: 6px; font-weight: bold; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }`

// SendLoginCode mails a one-time code plus a magic link and its QR code.
func (m *SESMailer) SendLoginCode(ctx context.Context, email, code, link string, expiresAt time.Time) error {
	qr, err := auth.MagicLinkPNG(link)
	if err != nil {
		return err
	}
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><style>%s</style></head>
<body>
    <div class="container">
        <div class="header"><h1>Your CardSwap sign-in code</h1></div>
        <p class="code">%s</p>
        <p>Enter this code in the terminal, or open the link below on this computer:</p>
        <p><a href="%s" class="button">Sign in</a></p>
        <p>Scan to sign in from your phone:<br><img src="%s" alt="Sign-in QR code"></p>
        <p>The code expires in %d minutes.</p>
        <div class="footer"><p>If you did not try to sign in, you can ignore this email.</p></div>
    </div>
</body>
</html>
`, emailStyle, code, link, qr, minutes)

	textBody := fmt.Sprintf(`Your CardSwap sign-in code: %s

Or open this link on this computer:
%s

The code expires in %d minutes. If you did not try to sign in, you can ignore this email.
`, code, link, minutes)

	return m.send(ctx, email, "Your CardSwap sign-in code", htmlBody, textBody)
}

// SendConfirmation mails the account confirmation link.
func (m *SESMailer) SendConfirmation(ctx context.Context, email, link string, expiresAt time.Time) error {
	hours := int(time.Until(expiresAt).Round(time.Hour).Hours())

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><style>%s</style></head>
<body>
    <div class="container">
        <div class="header"><h1>Confirm your email address</h1></div>
        <p>Welcome to CardSwap! Confirm your email to start buying and selling referral offers.</p>
        <p><a href="%s" class="button">Confirm email</a></p>
        <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
        <p>This link expires in %d hours.</p>
        <div class="footer"><p>Didn't create this account? You can ignore this email.</p></div>
    </div>
</body>
</html>
`, emailStyle, link, link, hours)

	textBody := fmt.Sprintf(`Confirm your email address

Welcome to CardSwap! Open this link to confirm your email:
%s

This link expires in %d hours. Didn't create this account? You can ignore this email.
`, link, hours)

	return m.send(ctx, email, "Confirm your CardSwap account", htmlBody, textBody)
}

// NotifySeller tells a seller about a counter-offer on one of their listings.
func (m *SESMailer) NotifySeller(ctx context.Context, sellerEmail, offerTitle string, offeredPrice float64, message string) error {
	textBody := fmt.Sprintf(`New offer on %q

A buyer offered %.2f.

Message:
%s
`, offerTitle, offeredPrice, message)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><style>%s</style></head>
<body>
    <div class="container">
        <div class="header"><h1>New offer on %s</h1></div>
        <p>A buyer offered <strong>%.2f</strong>.</p>
        <blockquote>%s</blockquote>
    </div>
</body>
</html>
`, emailStyle, offerTitle, offeredPrice, message)

	return m.send(ctx, sellerEmail, "New offer on your listing", htmlBody, textBody)
}

func (m *SESMailer) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := m.sesClient.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send email via SES",
			slog.String("email", logger.SanitizedEmail(to)),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("email sent",
		slog.String("email", logger.SanitizedEmail(to)),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// ConsoleMailer prints messages to a terminal instead of sending them. It is
// the mailer used in offline mode.
type ConsoleMailer struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

func NewConsoleMailer(out io.Writer, logger *slog.Logger) *ConsoleMailer {
	return &ConsoleMailer{out: out, logger: logger}
}

func (m *ConsoleMailer) SendLoginCode(_ context.Context, email, code, link string, expiresAt time.Time) error {
	qr, err := auth.MagicLinkQR(link)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.out, "\n[mail to %s] sign-in code: %s (expires %s)\nmagic link: %s\n%s\n",
		email, code, expiresAt.Format(time.Kitchen), link, qr)
	m.logger.Info("login code printed", slog.String("email", logger.SanitizedEmail(email)))
	return nil
}

func (m *ConsoleMailer) SendConfirmation(_ context.Context, email, link string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.out, "\n[mail to %s] confirm your account (expires %s):\n%s\n",
		email, expiresAt.Format(time.DateTime), link)
	m.logger.Info("confirmation link printed", slog.String("email", logger.SanitizedEmail(email)))
	return nil
}

func (m *ConsoleMailer) NotifySeller(_ context.Context, sellerEmail, offerTitle string, offeredPrice float64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.out, "\n[mail to %s] new offer of %.2f on %q: %s\n", sellerEmail, offeredPrice, offerTitle, message)
	return nil
}
