// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values once per inbound request. Handlers read them to
// build an audit carrier which is then passed explicitly to services; services
// and stores never read identity from the context themselves.
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//	ctx = requestcontext.WithActor(ctx, requestcontext.Actor{ID: "42", Label: "admin@alumni"})
//
// Usage in handlers (read values):
//
//	actor := requestcontext.ActorFrom(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"alumni/internal/audit/carrier"
)

// Context key types (unexported for encapsulation).
type (
	actorKey       struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	routeKey       struct{}
	carrierKey     struct{}
	correlationKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyActor       = actorKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyRoute       = routeKey{}
	ContextKeyCarrier     = carrierKey{}
	ContextKeyCorrelation = correlationKey{}
)

// -----------------------------------------------------------------------------
// Acting identity
// -----------------------------------------------------------------------------

// Actor is the identity resolved by the authentication middleware.
type Actor struct {
	ID    string
	Label string
	// Elevated is set when the caller presented the restore role for this request.
	Elevated bool
	// Infrastructure marks service principals (schedulers, operators' tooling).
	Infrastructure bool
}

// IsZero reports whether no actor was resolved.
func (a Actor) IsZero() bool { return a.ID == "" }

// ActorFrom retrieves the authenticated actor from the context.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(ContextKeyActor).(Actor); ok {
		return a
	}
	return Actor{}
}

// WithActor injects the authenticated actor into the context.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, a)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// Route is the HTTP method and path of the inbound request.
type Route struct {
	Method string
	Path   string
}

// RouteFrom retrieves the request route from the context.
func RouteFrom(ctx context.Context) Route {
	if r, ok := ctx.Value(ContextKeyRoute).(Route); ok {
		return r
	}
	return Route{}
}

// WithRoute injects the HTTP method and path.
func WithRoute(ctx context.Context, method, path string) context.Context {
	return context.WithValue(ctx, ContextKeyRoute, Route{Method: method, Path: path})
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// CorrelationID retrieves the caller-supplied correlation id, if any.
// It is never unique per operation; RequestID is.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyCorrelation).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID injects the caller-supplied correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelation, id)
}

// Carrier retrieves the audit carrier built by the transport edge.
// Handlers read it once and pass it explicitly from then on.
func Carrier(ctx context.Context) (carrier.Carrier, bool) {
	c, ok := ctx.Value(ContextKeyCarrier).(carrier.Carrier)
	return c, ok && !c.IsZero()
}

// WithCarrier injects the audit carrier.
func WithCarrier(ctx context.Context, c carrier.Carrier) context.Context {
	return context.WithValue(ctx, ContextKeyCarrier, c)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
//   - CLI commands
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
