// Package httptransport is the admin HTTP surface: ledger reads, 2FA
// session issuance, restores and the governed bank endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"alumni/internal/platform/metrics"
	"alumni/internal/platform/middleware"
	"alumni/internal/ratelimit"
	ratelimitmw "alumni/internal/ratelimit/middleware"
	"alumni/pkg/platform/httputil"
	"alumni/pkg/platform/middleware/admin"
	"alumni/pkg/platform/middleware/auth"
	"alumni/pkg/platform/middleware/metadata"
	"alumni/pkg/platform/middleware/request"
	"alumni/pkg/platform/middleware/requesttime"
)

const defaultRequestTimeout = 30 * time.Second

// RouterConfig carries the handlers and edge dependencies. Nil handlers are
// not mounted.
type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	Completions    middleware.CompletionRecorder
	Validator      auth.JWTValidator
	AdminToken     string
	RequestTimeout time.Duration
	// RateLimit throttles restores per actor and session issuance per client
	// IP. Nil disables throttling.
	RateLimit *ratelimitmw.Middleware
	// HealthChecks are run by GET /health, keyed by dependency name.
	HealthChecks map[string]func(context.Context) error

	Audit    *AuditHandler
	Restore  *RestoreHandler
	Sessions *SessionHandler
	Banks    *BankHandler
}

// NewRouter wires the middleware chain and every route group.
//
// Authenticated routes resolve the bearer token into an actor and build the
// audit carrier before any handler runs. Session issuance is called by the
// re-authentication service and is guarded by the admin token instead.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Completion(cfg.Completions, cfg.Metrics, logger))
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", healthHandler(cfg.HealthChecks, logger))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Sessions != nil {
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
			if cfg.RateLimit != nil {
				r.Use(cfg.RateLimit.PerClientIP(ratelimit.ClassSession))
			}
			r.Use(middleware.ContentTypeJSON)
			cfg.Sessions.Register(r)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(cfg.Validator, logger))
		r.Use(middleware.AuditCarrier(logger))
		r.Use(middleware.ContentTypeJSON)
		if cfg.Audit != nil {
			cfg.Audit.Register(r)
		}
		if cfg.Restore != nil {
			if cfg.RateLimit != nil {
				cfg.Restore.Register(r.With(cfg.RateLimit.PerActor(ratelimit.ClassRestore)))
			} else {
				cfg.Restore.Register(r)
			}
		}
		if cfg.Banks != nil {
			cfg.Banks.Register(r)
		}
	})
	return r
}

func healthHandler(checks map[string]func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				results[name] = "unavailable"
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, code, map[string]any{"status": status, "checks": results})
	}
}
