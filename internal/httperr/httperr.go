// Package httperr defines the gateway's error taxonomy and its mapping
// onto HTTP responses. Every failure surfaced to a caller is a single
// structured reason; there are no internal retries.
package httperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes exposed in response bodies.
const (
	CodeValidation   = "validation_error"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeUpstream     = "upstream_error"
	CodeInternal     = "internal_error"
)

// Error is a caller-facing failure with an HTTP status, a stable code,
// and a single human-readable reason. Optional metadata (e.g. reset_at
// on budget rejections) is merged into the response body.
type Error struct {
	Status  int
	Code    string
	Message string
	Meta    map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// WithMeta attaches a metadata field to the response body.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[key] = value
	return e
}

func Validation(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

func Upstream(message string) *Error {
	return &Error{Status: http.StatusBadGateway, Code: CodeUpstream, Message: message}
}

func Internal(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message}
}

// Respond writes err as a JSON response. Errors that are not *Error are
// masked as internal errors so store and crypto details never leak.
func Respond(c *gin.Context, err error) {
	var httpErr *Error
	if !errors.As(err, &httpErr) {
		httpErr = Internal("internal server error")
	}

	body := gin.H{
		"error":   httpErr.Code,
		"message": httpErr.Message,
	}
	for k, v := range httpErr.Meta {
		body[k] = v
	}

	c.JSON(httpErr.Status, body)
}
