package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/webauthd/internal/logger"
	"github.com/marmos91/webauthd/pkg/api/handlers"
	"github.com/marmos91/webauthd/pkg/api/session"
	"github.com/marmos91/webauthd/pkg/identity"
	"github.com/marmos91/webauthd/pkg/settings"
)

// RouterDeps carries the collaborators the router wires into handlers.
type RouterDeps struct {
	Provisioner handlers.Provisioner
	Validator   *identity.Validator
	Settings    *settings.Store
	Accounts    identity.AccountStore
	Flash       *session.Flash

	// Metrics, when non-nil, is exposed at /metrics.
	Metrics prometheus.Gatherer
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET  /health        - Liveness probe
//   - GET  /health/ready  - Readiness probe
//   - GET  /              - Username entry page
//   - POST /              - Username submission, redirects to /l/{username}
//   - GET  /l/{username}  - Per-user credential page
//   - POST /l/{username}  - Provisioning submission
//   - GET  /a/{username}  - Post-provisioning summary
//   - GET  /metrics       - Prometheus metrics (when enabled)
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	// One submission runs several child processes, each with its own bound.
	r.Use(middleware.Timeout(3 * time.Minute))

	healthHandler := handlers.NewHealthHandler(deps.Accounts)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	provisionHandler := handlers.NewProvisionHandler(deps.Provisioner, deps.Validator, deps.Settings, deps.Flash)
	r.Get("/", provisionHandler.Index)
	r.Post("/", provisionHandler.IndexSubmit)
	r.Route("/l/{username}", func(r chi.Router) {
		r.Get("/", provisionHandler.Login)
		r.Post("/", provisionHandler.LoginSubmit)
	})
	r.Get("/a/{username}", provisionHandler.Success)

	if deps.Metrics != nil {
		r.Get("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}).ServeHTTP)
	}

	return r
}

// requestLogger logs one line per request with status and duration.
// Passwords travel in form bodies, never in URLs, so paths are safe to log.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}

		// Health probes at DEBUG to avoid polluting logs
		if r.URL.Path == "/health" || r.URL.Path == "/health/ready" {
			logger.Debug("request completed", logArgs...)
		} else {
			logger.Info("request completed", logArgs...)
		}
	})
}
