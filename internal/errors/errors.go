// Package errors defines the service error taxonomy shared by the walkthrough
// pipeline, the report queries and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of a ServiceError.
type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodePersistence    Code = "PERSISTENCE_ERROR"
	CodePartialFailure Code = "PARTIAL_FAILURE"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeRateLimited    Code = "RATE_LIMIT_EXCEEDED"
)

// ServiceError is the error type surfaced at the HTTP boundary.
type ServiceError struct {
	Code       Code           `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any ServiceError carrying the same code, so sentinel values such
// as ErrNotFound work with errors.Is.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns the error with an extra detail attached.
func (e *ServiceError) WithDetail(key string, value any) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrValidation     = &ServiceError{Code: CodeValidation}
	ErrNotFound       = &ServiceError{Code: CodeNotFound}
	ErrPersistence    = &ServiceError{Code: CodePersistence}
	ErrPartialFailure = &ServiceError{Code: CodePartialFailure}
	ErrUnauthorized   = &ServiceError{Code: CodeUnauthorized}
)

// Validation reports malformed or missing input.
func Validation(format string, args ...any) *ServiceError {
	return &ServiceError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest,
	}
}

// NotFound reports an absent record.
func NotFound(resource, id string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"id": id},
	}
}

// Persistence wraps a gateway failure, keeping the gateway message.
func Persistence(op string, err error) *ServiceError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %s", op, err.Error())
	}
	return &ServiceError{
		Code:       CodePersistence,
		Message:    msg,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// PartialFailure reports that some incident writes failed and the audit
// report was not written.
func PartialFailure(failed, total int, err error) *ServiceError {
	return &ServiceError{
		Code:       CodePartialFailure,
		Message:    fmt.Sprintf("%d of %d incidents failed to save; audit report not created", failed, total),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"failed": failed, "total": total},
		Err:        err,
	}
}

// Unauthorized reports a missing or invalid bearer token.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("rate limit of %d requests per %s exceeded", limit, window),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// As extracts a ServiceError from err.
func As(err error) (*ServiceError, bool) {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HTTPStatus maps err to a status code, defaulting to 500.
func HTTPStatus(err error) int {
	if se, ok := As(err); ok && se.HTTPStatus != 0 {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
