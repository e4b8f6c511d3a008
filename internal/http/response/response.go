// Package response writes the JSON envelope for handlers that live outside the
// typed API operations: router fallbacks, middleware and the event stream.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	domainerrors "github.com/collectr/collectr/internal/errors"
)

// Version is the version of the response envelope.
const Version = 1

// CodeRateLimited is sent with 429 responses.
const CodeRateLimited = "RATE_LIMITED"

// Envelope wraps every successful response body.
type Envelope struct {
	Version int  `json:"v"`
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorEnvelope wraps every error response body.
type ErrorEnvelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error writes an error envelope with the given status and code.
func Error(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	write(w, status, ErrorEnvelope{Version: Version, Error: message, Code: code}, logger)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusNotFound, string(domainerrors.CodeNotFound), message, logger)
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter, logger *slog.Logger) {
	Error(w, http.StatusMethodNotAllowed, string(domainerrors.CodeValidation), "method not allowed", logger)
}

// HandleError writes an appropriate HTTP response based on the error type.
// Domain errors keep their code, message and details; unknown errors become 500.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var de *domainerrors.Error
	if domainerrors.As(err, &de) {
		if de.Code == domainerrors.CodeInternal && logger != nil {
			logger.Error("Internal error", "error", err)
		}
		write(w, de.HTTPStatus(), ErrorEnvelope{
			Version: Version,
			Error:   de.Message,
			Code:    string(de.Code),
			Details: de.Details,
		}, logger)
		return
	}

	// Unknown error = 500
	if logger != nil {
		logger.Error("Unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, string(domainerrors.CodeInternal), "internal server error", logger)
}

func write(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		if logger != nil {
			logger.Error("Failed to encode JSON response", "error", err)
		}
	}
}
