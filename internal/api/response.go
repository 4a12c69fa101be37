package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SafeSignal/internal/engine"
	"github.com/BTreeMap/SafeSignal/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var cfgErr *models.ConfigurationError
	switch {
	case errors.Is(err, models.ErrInvariantViolation), errors.Is(err, models.ErrIllegalStatusTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrEventNotFound), errors.Is(err, models.ErrContactNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidPhoneNumber), errors.Is(err, models.ErrEmptyContactName), errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrEngineClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err in the standard envelope with a matching status code.
func writeError(w http.ResponseWriter, handler string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Server."+handler+": request failed", "error", err)
	} else {
		slog.Warn("Server."+handler+": request rejected", "error", err, "status", status)
	}
	writeJSONResponse(w, status, models.Error(err.Error()))
}
