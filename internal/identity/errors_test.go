package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cardswap/cardswap/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/auth-go/types"
)

func TestProviderError_Unwrap(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want error
	}{
		{"bad credentials code", &ProviderError{Status: 400, Code: "invalid_credentials"}, models.ErrInvalidCredentials},
		{"expired otp", &ProviderError{Status: 403, Code: "otp_expired"}, models.ErrInvalidCredentials},
		{"unconfirmed", &ProviderError{Status: 400, Code: "email_not_confirmed"}, models.ErrEmailNotVerified},
		{"existing user", &ProviderError{Status: 422, Code: "user_already_exists"}, models.ErrConflict},
		{"otp signups disabled", &ProviderError{Status: 422, Code: "otp_disabled"}, models.ErrNotFound},
		{"legacy message", &ProviderError{Status: 400, Code: "invalid_grant", Message: "Invalid login credentials"}, models.ErrInvalidCredentials},
		{"message only", &ProviderError{Status: 400, Message: "Email not confirmed"}, models.ErrEmailNotVerified},
		{"rate limited", &ProviderError{Status: http.StatusTooManyRequests}, models.ErrRateLimited},
		{"server error", &ProviderError{Status: http.StatusBadGateway}, models.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("op: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.want)
		})
	}
}

func TestProviderError_UnknownStaysUnclassified(t *testing.T) {
	err := &ProviderError{Status: http.StatusTeapot, Code: "brewing"}
	for _, sentinel := range []error{
		models.ErrInvalidCredentials, models.ErrEmailNotVerified, models.ErrNotFound,
		models.ErrConflict, models.ErrProviderUnavailable,
	} {
		assert.False(t, errors.Is(err, sentinel))
	}
	assert.Contains(t, err.Error(), "brewing")
}

func TestTransportError(t *testing.T) {
	err := transportError("POST /otp", context.DeadlineExceeded)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)

	err = transportError("POST /otp", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestClientError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    error
		status  int
		code    string
		message string
	}{
		{
			name:    "status with error body",
			err:     errors.New(`response status code 400: {"code":400,"error_code":"otp_expired","msg":"Token has expired or is invalid"}`),
			want:    models.ErrInvalidCredentials,
			status:  400,
			code:    "otp_expired",
			message: "Token has expired or is invalid",
		},
		{
			name:    "legacy oauth body",
			err:     errors.New(`response status code 400: {"error":"invalid_grant","error_description":"Email not confirmed"}`),
			want:    models.ErrEmailNotVerified,
			status:  400,
			code:    "invalid_grant",
			message: "Email not confirmed",
		},
		{
			name:    "status without body",
			err:     errors.New("response status code 503"),
			want:    models.ErrProviderUnavailable,
			status:  503,
			message: "Service Unavailable",
		},
		{
			name:    "multi-line body",
			err:     errors.New("response status code 502: <html>\nbad gateway\n</html>"),
			want:    models.ErrProviderUnavailable,
			status:  502,
			message: "Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := clientError("verify login code", tt.err)
			assert.ErrorIs(t, err, tt.want)

			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.status, pe.Status)
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.message, pe.Message)
		})
	}
}

func TestClientError_RejectedRequest(t *testing.T) {
	err := clientError("exchange code", types.ErrInvalidTokenRequest)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	var pe *ProviderError
	assert.False(t, errors.As(err, &pe))
}
