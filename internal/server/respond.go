package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pricelens/pricelens/internal/apierror"
)

// errorEnvelope is the common error response shape.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
	Timestamp   string   `json:"timestamp"`
	RequestID   string   `json:"request_id,omitempty"`
}

// writeJSON serialises payload with the given status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError converts any error to the envelope. Non-typed errors become
// a generic QueryProcessingError so internals never leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierror.From(err)

	if apiErr.Code == apierror.CodeRateLimit {
		w.Header().Set("Retry-After", "60")
	}

	writeJSON(w, apiErr.Status, errorEnvelope{Error: errorBody{
		Code:        string(apiErr.Code),
		Message:     apiErr.Message,
		Suggestions: apiErr.Suggestions,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		RequestID:   requestIDFromContext(r.Context()),
	}})
}
