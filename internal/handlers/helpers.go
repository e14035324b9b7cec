package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quickfix/quickfix-api/internal/apperr"
	"github.com/quickfix/quickfix-api/internal/logger"
	"go.uber.org/zap"
)

const maxErrorMessageLength = 300

// errorBody is the failure envelope
type errorBody struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response with a length-capped message
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	writeErrorBody(w, status, errorBody{Error: errorType, Message: message})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body.Success = false
	body.Message = logger.SanitizeString(body.Message, maxErrorMessageLength)
	body.Timestamp = time.Now().UTC().Format(time.RFC3339)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondProblem classifies err and writes the matching error envelope.
// Internal failures are logged; their text never reaches the client.
func respondProblem(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	p := apperr.Classify(err)
	if p.Kind == apperr.Internal || p.Kind == apperr.QueryFailed {
		log.Error("request_failed",
			zap.String("path", logger.SanitizePath(r.URL.Path)),
			zap.String("kind", string(p.Kind)),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
	writeErrorBody(w, p.Status, errorBody{
		Error:     string(p.Kind),
		Message:   p.Message,
		Retryable: p.Retryable,
		Fields:    p.Fields,
	})
}

// decodeJSON reads a single JSON value from the request body into dst
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	return nil
}

// respondBadRequest reports an unreadable request body
func respondBadRequest(w http.ResponseWriter, err error) {
	respondJSONError(w, http.StatusBadRequest, string(apperr.ValidationFailed), err.Error())
}
