// Package httptransport assembles the public HTTP surface: the middleware
// chain, operational endpoints and the /api routes of every module.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"landregistry/internal/platform/metrics"
	"landregistry/internal/platform/middleware"
	dErrors "landregistry/pkg/domain-errors"
	"landregistry/pkg/platform/httputil"
	authmw "landregistry/pkg/platform/middleware/auth"
	"landregistry/pkg/platform/middleware/metadata"
	"landregistry/pkg/platform/middleware/requesttime"
)

// RouteRegistrar is implemented by every module handler.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config carries the cross-cutting collaborators of the router.
type Config struct {
	Logger             *slog.Logger
	Metrics            *metrics.Metrics
	Gatherer           prometheus.Gatherer
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
	Tokens             authmw.JWTValidator
	Revocations        authmw.TokenRevocationChecker
	HealthChecks       map[string]HealthCheck
	Clock              func() time.Time
}

// NewRouter mounts routes under /api behind the full middleware chain.
// Requests without a bearer token reach handlers anonymously; each service
// decides whether that is acceptable.
func NewRouter(cfg Config, routes ...RouteRegistrar) http.Handler {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.MiddlewareWithClock(clock))

	r.Get("/healthz", healthHandler(cfg.HealthChecks, cfg.Logger))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(authmw.Authenticate(cfg.Tokens, cfg.Revocations, cfg.Logger))
		for _, route := range routes {
			route.Register(api)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "check", name, "error", err)
				status[name] = "unavailable"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httputil.WriteJSON(w, code, status)
	}
}
