package handler

import (
	"log/slog"
	"net/http"

	"github.com/msomdec/locomotiva-cache/internal/schema"
	"github.com/msomdec/locomotiva-cache/internal/service"
)

// HandleClearAll purges every collection.
func HandleClearAll(cache *service.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cache.ClearAll(r.Context()) {
			writeError(w, http.StatusInternalServerError, "cache could not be fully cleared")
			return
		}
		slog.Info("cache cleared via admin API", "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleClearCollection purges one collection.
func HandleClearCollection(cache *service.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := r.PathValue("collection")
		if !schema.Has(collection) {
			writeError(w, http.StatusNotFound, "unknown collection")
			return
		}
		if !cache.ClearCollection(r.Context(), collection) {
			writeError(w, http.StatusInternalServerError, "collection could not be cleared")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleInvalidate removes one record. Removing an absent record succeeds.
func HandleInvalidate(cache *service.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection := r.PathValue("collection")
		if !schema.Has(collection) {
			writeError(w, http.StatusNotFound, "unknown collection")
			return
		}
		key := r.PathValue("key")
		if key == "" {
			writeError(w, http.StatusBadRequest, "key is required")
			return
		}
		if !cache.Invalidate(r.Context(), collection, key) {
			writeError(w, http.StatusInternalServerError, "record could not be invalidated")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
