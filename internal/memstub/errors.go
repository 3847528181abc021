package memstub

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidRequest      = "INVALID_REQUEST"
	ErrorCodeAuthenticationError = "AUTHENTICATION_ERROR"
	ErrorCodeInternalError       = "INTERNAL_ERROR"
	ErrorCodeInjected            = "INJECTED_FAILURE"
)

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Status: "error", Code: code, Message: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

func handleBadRequest(w http.ResponseWriter, message string) {
	writeErrorResponse(w, http.StatusBadRequest, ErrorCodeInvalidRequest, message)
}

func handleUnauthorized(w http.ResponseWriter) {
	writeErrorResponse(w, http.StatusUnauthorized, ErrorCodeAuthenticationError, "invalid or missing API key")
}

func handleInternalError(w http.ResponseWriter, err error) {
	slog.Error("memstub internal error", "error", err)
	writeErrorResponse(w, http.StatusInternalServerError, ErrorCodeInternalError, "an unexpected error occurred")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
