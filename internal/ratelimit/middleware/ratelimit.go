package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"alumni/internal/ratelimit"
	"alumni/internal/ratelimit/metrics"
	"alumni/pkg/platform/httputil"
	"alumni/pkg/requestcontext"
)

type Middleware struct {
	store    ratelimit.Store
	limits   map[ratelimit.Class]ratelimit.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for local development).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithLimit overrides the limit for one class. Non-positive values are ignored.
func WithLimit(class ratelimit.Class, limit ratelimit.Limit) Option {
	return func(m *Middleware) {
		if limit.Requests > 0 && limit.Window > 0 {
			m.limits[class] = limit
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(store ratelimit.Store, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limits: ratelimit.DefaultLimits(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// PerActor limits by the authenticated actor, falling back to the client IP
// when no actor was resolved. It must run after the auth middleware.
func (m *Middleware) PerActor(class ratelimit.Class) func(http.Handler) http.Handler {
	return m.limit(class, func(r *http.Request) string {
		if actor := requestcontext.ActorFrom(r.Context()); !actor.IsZero() {
			return "actor:" + actor.ID
		}
		return "ip:" + requestcontext.ClientIP(r.Context())
	})
}

// PerClientIP limits by the client IP resolved by the metadata middleware.
func (m *Middleware) PerClientIP(class ratelimit.Class) func(http.Handler) http.Handler {
	return m.limit(class, func(r *http.Request) string {
		return "ip:" + requestcontext.ClientIP(r.Context())
	})
}

func (m *Middleware) limit(class ratelimit.Class, subject func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			lim, ok := m.limits[class]
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			result, err := m.store.Allow(ctx, ratelimit.Key(class, subject(r)), lim.Requests, lim.Window)
			if err != nil {
				m.metrics.IncrementStoreErrors(string(class))
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				m.metrics.IncrementDenied(string(class))
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"request_id", requestcontext.RequestID(ctx),
					"retry_after", result.RetryAfter,
				)
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":             "rate_limit_exceeded",
		"error_description": "too many requests, try again later",
		"retry_after":       result.RetryAfter,
	})
}
