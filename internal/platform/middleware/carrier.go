package middleware

import (
	"log/slog"
	"net/http"

	"alumni/internal/audit/carrier"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/httputil"
	"alumni/pkg/requestcontext"
)

// AuditCarrier builds the audit carrier from the resolved actor and request
// metadata. It must run after authentication; a request without an actor or
// request id is rejected.
func AuditCarrier(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := requestcontext.ActorFrom(ctx)
			route := requestcontext.RouteFrom(ctx)
			c, err := carrier.New(carrier.Params{
				ActorID:    actor.ID,
				ActorLabel: actor.Label,
				RequestID:  requestcontext.RequestID(ctx),
				ClientIP:   requestcontext.ClientIP(ctx),
				UserAgent:  requestcontext.UserAgent(ctx),
				HTTPMethod: route.Method,
				HTTPPath:   route.Path,
			})
			if err != nil {
				logger.WarnContext(ctx, "audit carrier rejected",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "request identity incomplete"))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCarrier(ctx, c)))
		})
	}
}
