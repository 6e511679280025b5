package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/api/recovery"
	"github.com/reelscript/reelscript/internal/api/respond"
	"github.com/reelscript/reelscript/internal/ephemeral"
	"github.com/reelscript/reelscript/internal/gate"
	"github.com/reelscript/reelscript/internal/health"
	"github.com/reelscript/reelscript/internal/observability"
	"github.com/reelscript/reelscript/internal/session"
	"github.com/reelscript/reelscript/internal/store"
)

// RouterDeps carries the constructed services the HTTP surface exposes.
type RouterDeps struct {
	Store      store.Store
	Ephemeral  ephemeral.Store
	Gate       *gate.Gate
	Sessions   *session.Manager
	Variations *session.Variations
	Metrics    *observability.Metrics
	Health     *health.ServiceHealthChecker
	AdminKey   string
	// Per-IP ingress throttle, requests per second with a burst allowance.
	RateRPS   float64
	RateBurst int
	Log       zerolog.Logger
}

// NewRouter creates the HTTP router with all routes.
func NewRouter(d RouterDeps) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares. ProxyHeaders runs first so the per-IP throttle
	// sees the real client address behind a load balancer.
	router.Use(handlers.ProxyHeaders)
	router.Use(recovery.Middleware)
	router.Use(AccessLogMiddleware(d.Log))
	router.Use(handlers.CompressHandler)

	ingress := NewIngressHandler(d.Store, d.Ephemeral, d.Gate, d.Sessions, d.Variations, d.Metrics, d.Log)
	feedback := NewFeedbackHandler(d.Store, d.Sessions, d.Metrics, d.Log)
	public := NewPublicViewHandler(d.Store, d.Metrics, d.Log)

	// Ingress and feedback, behind the per-IP throttle
	throttle := RateLimitMiddleware(d.RateRPS, d.RateBurst)
	router.Handle("/api/v1/script/generate", throttle(http.HandlerFunc(ingress.HandleGenerate))).Methods("POST")
	router.Handle("/api/v1/feedback", throttle(http.HandlerFunc(feedback.HandleSubmit))).Methods("POST")

	// Admin surface
	admin := AdminKeyMiddleware(d.AdminKey)
	router.Handle("/api/v1/feedback/stats", admin(http.HandlerFunc(feedback.HandleStats))).Methods("GET")
	router.Handle("/api/v1/dataset/export", admin(http.HandlerFunc(feedback.HandleExport))).Methods("GET")

	// Public script pages
	router.HandleFunc("/s/{publicId}", public.HandleView).Methods("GET")

	// Health endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil && !d.Health.IsHealthy() {
			respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		respond.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	router.HandleFunc("/health/detailed", func(w http.ResponseWriter, r *http.Request) {
		components := map[string]bool{}
		healthy := true
		if d.Health != nil {
			components = d.Health.Components()
			healthy = d.Health.IsHealthy()
		}
		status := http.StatusOK
		label := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			label = "unhealthy"
		}
		respond.WriteJSON(w, status, map[string]interface{}{
			"status":     label,
			"components": components,
		})
	}).Methods("GET")

	// Metrics, Prometheus exposition plus a JSON snapshot
	if d.Metrics != nil {
		router.Handle("/metrics", d.Metrics.Handler()).Methods("GET")
		router.HandleFunc("/metrics/json", func(w http.ResponseWriter, r *http.Request) {
			snap, err := d.Metrics.JSONSnapshot()
			if err != nil {
				respond.WriteInternalError(w, "could not gather metrics")
				return
			}
			respond.WriteJSON(w, http.StatusOK, snap)
		}).Methods("GET")
	}

	return router
}
