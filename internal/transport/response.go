package transport

import (
	"encoding/json"
	"net/http"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
	// Extra carries caller-recovery payloads alongside an error, such as the
	// refreshed slot list returned with a booking conflict.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteRawJSON sends an already-encoded JSON payload, typically from cache.
func WriteRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func WriteError(w http.ResponseWriter, status int, message string, details map[string]string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

func WriteErrorExtra(w http.ResponseWriter, status int, message string, extra map[string]interface{}) {
	WriteJSON(w, status, ErrorResponse{
		Error: message,
		Extra: extra,
	})
}
