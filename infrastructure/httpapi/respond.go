// Package httpapi is the REST command surface. Every mutation arrives
// here; the WebSocket transport only pushes resulting events.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"parley/errors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError maps the service error taxonomy onto HTTP statuses. Internal
// detail stays in the log, never in the response body.
func writeError(log *slog.Logger, w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return errors.Validationf("malformed request body")
	}
	return nil
}
