package handlers

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/cardswap/cardswap/internal/identity"
	"github.com/cardswap/cardswap/internal/models"
	pkghttp "github.com/cardswap/cardswap/pkg/http"
	pkglogger "github.com/cardswap/cardswap/pkg/logger"
)

// EmailConfirmer redeems a confirmation link. Only the offline provider
// delivers confirmation links to the callback listener.
type EmailConfirmer interface {
	ConfirmEmail(ctx context.Context, token string) error
}

// CallbackKind says what a redirect accomplished.
type CallbackKind string

const (
	CallbackSignedIn  CallbackKind = "signed-in"
	CallbackConfirmed CallbackKind = "confirmed"
	CallbackFailed    CallbackKind = "failed"
)

// CallbackResult is reported for every redirect the listener handles.
type CallbackResult struct {
	Kind    CallbackKind
	Session *models.Session
	Err     error
}

// CallbackHandler finishes redirect-based sign-in (OAuth and magic links)
// and email confirmation.
type CallbackHandler struct {
	exchanger identity.CodeExchanger
	confirmer EmailConfirmer
	results   chan CallbackResult
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
}

// NewCallbackHandler creates a CallbackHandler. confirmer may be nil.
func NewCallbackHandler(exchanger identity.CodeExchanger, confirmer EmailConfirmer, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		exchanger: exchanger,
		confirmer: confirmer,
		results:   make(chan CallbackResult, 4),
		logger:    logger,
		audit:     pkglogger.NewAuditLogger(logger),
	}
}

// Results delivers the outcome of each handled redirect. Outcomes nobody
// reads are dropped once the buffer is full.
func (h *CallbackHandler) Results() <-chan CallbackResult {
	return h.results
}

func (h *CallbackHandler) publish(res CallbackResult) {
	select {
	case h.results <- res:
	default:
		h.logger.Warn("callback result dropped", slog.String("kind", string(res.Kind)))
	}
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>CardSwap</title>
<style>body { font-family: Arial, sans-serif; text-align: center; margin-top: 15%; color: #333; }</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<p>You can close this tab and return to the terminal.</p>
</body>
</html>
`))

type callbackView struct {
	Title   string
	Message string
}

func renderCallback(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackPage.Execute(w, callbackView{Title: title, Message: message})
}

// Callback handles GET /auth/callback. The query carries one of code (OAuth
// or magic link), confirm (account confirmation) or error and
// error_description (the provider refused the sign-in).
func (h *CallbackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch {
	case q.Get("error") != "":
		err := &identity.ProviderError{
			Status:  http.StatusBadRequest,
			Code:    q.Get("error"),
			Message: q.Get("error_description"),
		}
		h.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "redirect_sign_in",
			Success:       false,
			FailureReason: err.Code,
		})
		h.publish(CallbackResult{Kind: CallbackFailed, Err: err})

		message := err.Message
		if message == "" {
			message = "The sign-in was cancelled or refused."
		}
		renderCallback(w, http.StatusBadRequest, "Sign-in failed", message)

	case q.Get("code") != "":
		session, err := h.exchanger.ExchangeCode(r.Context(), q.Get("code"))
		if err != nil {
			h.logger.Warn("failed to exchange callback code", slog.Any("error", err))
			h.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "redirect_sign_in",
				Success:       false,
				FailureReason: err.Error(),
			})
			h.publish(CallbackResult{Kind: CallbackFailed, Err: err})
			renderCallback(w, callbackStatus(err), "Sign-in failed", "This link is invalid or has expired. Request a new one from the terminal.")
			return
		}

		h.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType: "redirect_sign_in",
			UserID:    session.User.ID,
			Success:   true,
		})
		h.publish(CallbackResult{Kind: CallbackSignedIn, Session: session})
		renderCallback(w, http.StatusOK, "Signed in", "Welcome back, "+session.User.Email+".")

	case q.Get("confirm") != "":
		if h.confirmer == nil {
			pkghttp.WriteNotFound(w, "Email confirmation is handled by the identity provider")
			return
		}
		if err := h.confirmer.ConfirmEmail(r.Context(), q.Get("confirm")); err != nil {
			h.logger.Warn("failed to confirm email", slog.Any("error", err))
			h.publish(CallbackResult{Kind: CallbackFailed, Err: err})
			renderCallback(w, callbackStatus(err), "Confirmation failed", "This confirmation link is invalid or has expired.")
			return
		}

		h.publish(CallbackResult{Kind: CallbackConfirmed})
		renderCallback(w, http.StatusOK, "Email confirmed", "Your account is ready. Log in from the terminal.")

	default:
		pkghttp.WriteBadRequest(w, "Missing code, confirm or error parameter")
	}
}

func callbackStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrProviderUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

// Health handles GET /health.
func (h *CallbackHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
