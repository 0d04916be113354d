package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/venuehq/venue-sdk/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

// WriteRawJSON writes an already-serialized JSON body. Used for idempotent
// replays, where the response must be byte-identical to the first execution.
func WriteRawJSON(w http.ResponseWriter, status int, body json.RawMessage) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteServiceError maps a service error to its HTTP representation. Internal
// causes are never leaked to the client.
func WriteServiceError(w http.ResponseWriter, err error) error {
	var se *serrors.Error
	if errors.As(err, &se) {
		return WriteError(w, se.Status, se.Code, se.Message, se.Meta)
	}
	return WriteError(w, http.StatusInternalServerError, serrors.CodeInternal, "internal server error", nil)
}
