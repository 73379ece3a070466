package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorBody is the shape of every admin API error: {"error": "..."}.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write admin response", "status", status, "error", err)
	}
}

// writeError reports a failed admin operation. Successful purges answer 204
// with no body, so this is the only JSON most callers will see.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
