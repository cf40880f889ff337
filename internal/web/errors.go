package web

// errors.go turns handler errors into JSON responses. The technical error is
// logged with the request id; the client receives the mapped user message
// and its support code.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/pharmaimport/internal/core"
	"github.com/JonMunkholm/pharmaimport/internal/logging"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	Missing []string `json:"missing,omitempty"`
}

var errRateLimited = errors.New("rate limit exceeded")

// respondError logs err and writes its user-facing form. A status of 0
// derives the status from the error.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if status == 0 {
		status = statusFor(err)
	}
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	body := ErrorResponse{
		Error:   err.Error(),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if status >= http.StatusInternalServerError {
		body.Error = msg.Message
	}
	var cfgErr *core.ConfigurationError
	if errors.As(err, &cfgErr) {
		body.Missing = cfgErr.Missing
	}

	writeJSONStatus(w, status, body)
}

// statusFor maps the error taxonomy to HTTP statuses.
func statusFor(err error) int {
	var (
		parseErr *core.ParseError
		cfgErr   *core.ConfigurationError
		stateErr *core.StateError
	)
	switch {
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyUploads):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &stateErr), errors.Is(err, core.ErrFileReplaced):
		return http.StatusConflict
	case errors.As(err, &parseErr), errors.As(err, &cfgErr), errors.Is(err, core.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// rateLimited is the rejection handler for the rate limit middleware.
func rateLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", "60")
	respondError(w, r, errRateLimited, http.StatusTooManyRequests)
}
