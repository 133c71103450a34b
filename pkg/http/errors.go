package http

import (
	"encoding/json"
	"io"
	"net/http"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`            // Machine-readable error code
	Message string `json:"message"`          // Human-readable message
	Details string `json:"details,omitempty"` // Optional additional context
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	}

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

// upstreamError is the union of the error payload shapes returned by the
// upstream auth API across releases.
type upstreamError struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

// DecodeUpstreamError extracts a machine-readable code and a message from an
// upstream error body. Unknown or malformed bodies yield empty strings.
func DecodeUpstreamError(body io.Reader) (code, message string) {
	var ue upstreamError
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&ue); err != nil {
		return "", ""
	}

	code = ue.ErrorCode
	if code == "" {
		code = ue.Error
	}

	switch {
	case ue.Msg != "":
		message = ue.Msg
	case ue.ErrorDescription != "":
		message = ue.ErrorDescription
	default:
		message = ue.Message
	}
	return code, message
}
