// Package request assigns every inbound request a unique id.
package request

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"alumni/pkg/requestcontext"
)

const (
	// HeaderRequestID carries the server-minted id on every response.
	HeaderRequestID = "X-Request-ID"
	// HeaderCorrelationID echoes a caller-supplied X-Request-ID.
	HeaderCorrelationID = "X-Correlation-ID"
)

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// RequestID mints a fresh UUID for every request. The id keys the audit
// ledger and completions, so a caller's X-Request-ID is never used for it;
// a well-formed inbound value is kept as the correlation id instead.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := requestcontext.WithRequestID(r.Context(), id)
		if inbound := r.Header.Get(HeaderRequestID); validRequestID.MatchString(inbound) {
			ctx = requestcontext.WithCorrelationID(ctx, inbound)
			w.Header().Set(HeaderCorrelationID, inbound)
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
