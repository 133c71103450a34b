package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSESMailer_SendLoginCode(t *testing.T) {
	client := &MockSESClient{}
	mailer := newSESMailer(client, "noreply@cardswap.test", slog.Default())

	link := "http://127.0.0.1:8765/auth/callback?code=abc"
	err := mailer.SendLoginCode(context.Background(), "asha@example.com", "123456", link, time.Now().Add(10*time.Minute))

	require.NoError(t, err)
	require.Len(t, client.Inputs, 1)
	input := client.Inputs[0]
	assert.Equal(t, "noreply@cardswap.test", aws.ToString(input.Source))
	assert.Equal(t, []string{"asha@example.com"}, input.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(input.Message.Body.Text.Data), "123456")
	assert.Contains(t, aws.ToString(input.Message.Body.Text.Data), link)
	assert.Contains(t, aws.ToString(input.Message.Body.Html.Data), "data:image/png;base64,")
	assert.Contains(t, aws.ToString(input.Message.Body.Text.Data), "10 minutes")
}

func TestSESMailer_SendConfirmation(t *testing.T) {
	client := &MockSESClient{}
	mailer := newSESMailer(client, "noreply@cardswap.test", slog.Default())

	link := "http://127.0.0.1:8765/auth/callback?confirm=tok"
	err := mailer.SendConfirmation(context.Background(), "asha@example.com", link, time.Now().Add(24*time.Hour))

	require.NoError(t, err)
	require.Len(t, client.Inputs, 1)
	assert.Equal(t, "Confirm your CardSwap account", aws.ToString(client.Inputs[0].Message.Subject.Data))
	assert.Contains(t, aws.ToString(client.Inputs[0].Message.Body.Html.Data), link)
}

func TestSESMailer_SendError(t *testing.T) {
	client := &MockSESClient{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	mailer := newSESMailer(client, "noreply@cardswap.test", slog.Default())

	err := mailer.NotifySeller(context.Background(), "seller@example.com", "Gold Card", 900, "Would you take 900?")

	assert.ErrorContains(t, err, "throttled")
}

func TestConsoleMailer(t *testing.T) {
	var out bytes.Buffer
	mailer := NewConsoleMailer(&out, slog.Default())

	err := mailer.SendLoginCode(context.Background(), "asha@example.com", "654321", "http://127.0.0.1/cb?code=x", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "654321")
	assert.Contains(t, out.String(), "http://127.0.0.1/cb?code=x")

	out.Reset()
	require.NoError(t, mailer.SendConfirmation(context.Background(), "asha@example.com", "http://127.0.0.1/cb?confirm=y", time.Now()))
	assert.Contains(t, out.String(), "confirm=y")
}
