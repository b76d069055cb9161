package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"alumni/internal/audit"
	"alumni/internal/platform/metrics"
	"alumni/pkg/requestcontext"
)

const completionTimeout = 2 * time.Second

// CompletionRecorder stores the outcome of a request next to its ledger records.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, c audit.Completion) error
}

// Completion observes status and latency once the handler returns. Every
// request feeds the HTTP metrics; write requests also record a completion so
// ledger reads can show how the request that caused a mutation ended.
// Recording failures are logged and never change the response.
func Completion(rec CompletionRecorder, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := statusOf(ww)
			elapsed := time.Since(start)
			if m != nil {
				m.Observe(r, status, elapsed)
			}
			if rec == nil || !isWrite(r.Method) {
				return
			}
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)
			if requestID == "" {
				return
			}

			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
			defer cancel()
			err := rec.RecordCompletion(ctx, audit.Completion{
				RequestID:   requestID,
				HTTPStatus:  status,
				LatencyMS:   elapsed.Milliseconds(),
				CompletedAt: time.Now().UTC(),
			})
			if err != nil {
				logger.WarnContext(ctx, "record request completion",
					"error", err,
					"request_id", requestID,
				)
			}
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
