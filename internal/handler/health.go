package handler

import (
	"net/http"

	"github.com/msomdec/locomotiva-cache/internal/schema"
)

// HandleHealthz reports that the admin server is up and which schema version
// this build expects.
func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"schema_version": schema.Version,
	})
}
