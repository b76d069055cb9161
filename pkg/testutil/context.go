package testutil

import (
	"net/http"

	"alumni/internal/audit/carrier"
	"alumni/pkg/requestcontext"
)

// WithActor adds the authenticated actor to the request context.
// This simulates what the auth middleware does for bearer requests.
func WithActor(req *http.Request, actor requestcontext.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithCarrier adds the identity the transport edge would have captured, along
// with the request id and client metadata it was built from.
func WithCarrier(req *http.Request, c carrier.Carrier) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), c.RequestID())
	ctx = requestcontext.WithClientMetadata(ctx, c.ClientIP(), c.UserAgent())
	ctx = requestcontext.WithCarrier(ctx, c)
	return req.WithContext(ctx)
}

// WithAuth combines WithActor and WithCarrier: the state a handler sees after
// the full authenticated middleware chain.
func WithAuth(req *http.Request, actor requestcontext.Actor, c carrier.Carrier) *http.Request {
	return WithCarrier(WithActor(req, actor), c)
}
