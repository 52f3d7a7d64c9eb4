// Package httputil provides the JSON response envelope and body-reading
// helpers shared by the HTTP handlers and the Supabase client.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrBodyTooLarge is returned by ReadAllStrict when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadAllWithLimit reads at most limit bytes and reports whether more were
// available.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads the whole body, failing when it exceeds limit.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

// Envelope is the response shape of the inspection API.
type Envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes data with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// Fail writes a failure envelope. detail, when non-empty, goes to the error field.
func Fail(w http.ResponseWriter, status int, message, detail string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message, Error: detail})
}

// BadRequest writes a 400 failure envelope.
func BadRequest(w http.ResponseWriter, message string) {
	Fail(w, http.StatusBadRequest, message, "")
}

// NotFound writes a 404 failure envelope.
func NotFound(w http.ResponseWriter, message string) {
	Fail(w, http.StatusNotFound, message, "")
}

// InternalError writes a 500 failure envelope.
func InternalError(w http.ResponseWriter, message string) {
	Fail(w, http.StatusInternalServerError, message, "")
}

// MethodNotAllowed writes a 405 failure envelope.
func MethodNotAllowed(w http.ResponseWriter) {
	Fail(w, http.StatusMethodNotAllowed, "Method not allowed", "")
}

// DecodeJSON decodes the request body into dst, writing a 400 on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	body, err := ReadAllStrict(r.Body, limit)
	if err != nil {
		Fail(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	if len(body) == 0 {
		BadRequest(w, "Request body is required")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		Fail(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return false
	}
	return true
}
