// Package metadata resolves the client facts recorded on every audit carrier.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"alumni/pkg/requestcontext"
)

// unknownIP is recorded when no source address can be determined.
const unknownIP = "unknown"

// ClientMetadata stores the client IP, User-Agent and route in the context.
// Apply it before any middleware that builds the audit carrier.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		ctx = requestcontext.WithRoute(ctx, r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest returns the originating client address. Proxy headers are
// preferred in order X-Forwarded-For (first hop), then X-Real-IP; values that do
// not parse as an IP are skipped so a forged header cannot inject free text
// into the ledger.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr == "" {
		return unknownIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := parseIP(host); ip != "" {
		return ip
	}
	return unknownIP
}

func parseIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	return ip.String()
}
