package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cardswap/cardswap/internal/models"
	pkghttp "github.com/cardswap/cardswap/pkg/http"
	"github.com/supabase-community/auth-go/types"
)

// ProviderError is an error payload returned by the identity provider. It
// unwraps to the models sentinel matching its code so callers can use
// errors.Is without knowing the provider's vocabulary.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider: %s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("identity provider: status %d: %s", e.Status, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return sentinelFor(e.Status, e.Code, e.Message)
}

var codeSentinels = map[string]error{
	"invalid_credentials":        models.ErrInvalidCredentials,
	"invalid_grant":              models.ErrInvalidCredentials,
	"otp_expired":                models.ErrInvalidCredentials,
	"bad_code_verifier":          models.ErrInvalidCredentials,
	"flow_state_not_found":       models.ErrInvalidCredentials,
	"flow_state_expired":         models.ErrInvalidCredentials,
	"refresh_token_not_found":    models.ErrUnauthorized,
	"refresh_token_already_used": models.ErrUnauthorized,
	"session_not_found":          models.ErrUnauthorized,
	"bad_jwt":                    models.ErrUnauthorized,
	"email_not_confirmed":        models.ErrEmailNotVerified,
	"user_not_found":             models.ErrNotFound,
	"otp_disabled":               models.ErrNotFound,
	"user_already_exists":        models.ErrConflict,
	"email_exists":               models.ErrConflict,
	"validation_failed":          models.ErrValidation,
	"email_address_invalid":      models.ErrValidation,
	"weak_password":              models.ErrValidation,
	"over_email_send_rate_limit": models.ErrRateLimited,
	"over_request_rate_limit":    models.ErrRateLimited,
	"unexpected_failure":         models.ErrProviderUnavailable,
}

// Older provider releases only send a human-readable message.
var messageSentinels = []struct {
	fragment string
	err      error
}{
	{"invalid login credentials", models.ErrInvalidCredentials},
	{"token has expired or is invalid", models.ErrInvalidCredentials},
	{"email not confirmed", models.ErrEmailNotVerified},
	{"user already registered", models.ErrConflict},
	{"signups not allowed for otp", models.ErrNotFound},
	{"user not found", models.ErrNotFound},
}

// The message is consulted first: legacy payloads reuse invalid_grant for
// several distinct failures.
func sentinelFor(status int, code, message string) error {
	msg := strings.ToLower(message)
	for _, m := range messageSentinels {
		if strings.Contains(msg, m.fragment) {
			return m.err
		}
	}

	if err, ok := codeSentinels[code]; ok {
		return err
	}

	switch {
	case status == http.StatusTooManyRequests:
		return models.ErrRateLimited
	case status == http.StatusUnauthorized:
		return models.ErrUnauthorized
	case status == http.StatusNotFound:
		return models.ErrNotFound
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return models.ErrBadRequest
	case status >= http.StatusInternalServerError:
		return models.ErrProviderUnavailable
	}
	return nil
}

// The auth client reports a rejected request as its status and raw body.
var statusPattern = regexp.MustCompile(`(?s)^response status code (\d{3})(?:: (.*))?$`)

// clientError maps an auth client failure onto a ProviderError or a
// transport failure.
func clientError(op string, err error) error {
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		status, _ := strconv.Atoi(m[1])
		code, msg := pkghttp.DecodeUpstreamError(strings.NewReader(m[2]))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return fmt.Errorf("%s: %w", op, &ProviderError{Status: status, Code: code, Message: msg})
	}

	if errors.Is(err, types.ErrInvalidTokenRequest) || errors.Is(err, types.ErrInvalidVerifyRequest) {
		return fmt.Errorf("%s: %w: %v", op, models.ErrBadRequest, err)
	}
	return transportError(op, err)
}

// transportError wraps failures that never produced a provider response.
func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, models.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrProviderUnavailable, err)
}
