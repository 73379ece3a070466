package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msomdec/locomotiva-cache/internal/service"
)

// RegisterRoutes sets up the admin routes on the given mux. The purge routes
// are rate limited per client when limiter is non-nil.
func RegisterRoutes(mux *http.ServeMux, cache *service.Cache, gatherer prometheus.Gatherer, limiter *service.TokenBucket) {
	mux.HandleFunc("GET /healthz", HandleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("DELETE /cache", RateLimit(limiter, HandleClearAll(cache)))
	mux.HandleFunc("DELETE /cache/{collection}", RateLimit(limiter, HandleClearCollection(cache)))
	mux.HandleFunc("DELETE /cache/{collection}/{key}", RateLimit(limiter, HandleInvalidate(cache)))
}
