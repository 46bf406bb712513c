package web

// errors.go turns handler errors into responses.
//
// The technical error is logged with the request id; the client gets the
// coded message from core.MapError plus any field errors, as JSON or, for
// HTMX requests, as an HTML fragment.

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/logging"
	"github.com/JonMunkholm/gradebook/internal/web/templates"
)

var (
	errRateLimited    = errors.New("rate limit exceeded")
	errNoFile         = errors.New("no file provided")
	errFileTooLarge   = errors.New("file too large")
	errImportNotFound = errors.New("import not found")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error       string           `json:"error"`
	Message     string           `json:"message"`
	Action      string           `json:"action,omitempty"`
	Code        string           `json:"code"`
	FieldErrors core.FieldErrors `json:"fieldErrors,omitempty"`
}

// respondError logs err and writes the user-facing message. A statusCode of
// 0 derives the status from err.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = statusFor(err)
	}
	msg := core.MapError(err)
	fields := core.FieldErrorsOf(err)

	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", msg.Code,
	}
	if statusCode >= 500 {
		logger.Error("request error", args...)
	} else {
		logger.Info("request rejected", args...)
	}

	if isHTMX(r) {
		renderErrorPartial(w, r, msg, fields, statusCode)
		return
	}
	writeJSON(w, statusCode, ErrorResponse{
		Error:       msg.Message,
		Message:     msg.Message,
		Action:      msg.Action,
		Code:        msg.Code,
		FieldErrors: fields,
	})
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	var validation *core.ValidationFailedError
	var structure *core.DocumentStructureError
	var remote *core.RemoteError

	switch {
	case errors.As(err, &validation), errors.As(err, &structure),
		errors.Is(err, core.ErrUnknownSortKey), errors.Is(err, core.ErrUnknownDirection),
		errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound), errors.Is(err, errImportNotFound):
		return http.StatusNotFound
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyImports), errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrStaleWorkingSet):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &remote):
		if len(remote.Fields) > 0 && remote.StatusCode >= 400 && remote.StatusCode < 500 {
			return remote.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// renderErrorPartial renders an HTMX error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, fields core.FieldErrors, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)

	ctx := r.Context()
	if err := templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(ctx, w); err != nil {
		return
	}
	names := make([]string, 0, len(fields))
	messages := make([]string, 0, len(fields))
	for _, fe := range fields.List() {
		names = append(names, string(fe.Field))
		messages = append(messages, fe.Message)
	}
	_ = templates.FieldErrorList(names, messages).Render(ctx, w)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
