// Package httpx holds the small HTTP response vocabulary shared by every
// fabrik REST surface.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error body: a short machine code and a
// human-readable message. No structured error codes beyond that.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}
