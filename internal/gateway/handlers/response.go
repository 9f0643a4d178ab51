// Package handlers implements the relay's HTTP endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned by the relay API.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// SendJSON writes data as JSON with the given status code.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// SendError writes an ErrorResponse.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

// NotFound is the router's fallback handler.
func NotFound(w http.ResponseWriter, r *http.Request) {
	SendError(w, http.StatusNotFound, ErrCodeNotFound, "no route for "+r.URL.Path)
}

// MethodNotAllowed is used when a route exists for another method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	SendError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
}
