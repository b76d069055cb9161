package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni/internal/ratelimit"
	"alumni/internal/ratelimit/metrics"
	"alumni/internal/ratelimit/store/bucket"
	"alumni/pkg/requestcontext"
)

var discard = slog.New(slog.DiscardHandler)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*ratelimit.Result, error) {
	return nil, errors.New("redis: connection refused")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, actorID, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/audit/restore", nil)
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, "curl/8.0")
	if actorID != "" {
		ctx = requestcontext.WithActor(ctx, requestcontext.Actor{ID: actorID})
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req.WithContext(ctx))
	return w
}

func TestPerActor(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	mw := New(bucket.NewInMemoryBucketStore(), discard,
		WithLimit(ratelimit.ClassRestore, ratelimit.Limit{Requests: 2, Window: time.Minute}),
		WithMetrics(m),
	)
	h := mw.PerActor(ratelimit.ClassRestore)(okHandler())

	w := serve(h, "7", "10.0.0.1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	// Same actor from another address shares the bucket.
	require.Equal(t, http.StatusOK, serve(h, "7", "10.0.0.2").Code)

	w = serve(h, "7", "10.0.0.3")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"error":"rate_limit_exceeded"`)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Denied.WithLabelValues("restore")))

	// Another actor is unaffected.
	assert.Equal(t, http.StatusOK, serve(h, "8", "10.0.0.3").Code)
}

func TestPerClientIP(t *testing.T) {
	mw := New(bucket.NewInMemoryBucketStore(), discard,
		WithLimit(ratelimit.ClassSession, ratelimit.Limit{Requests: 1, Window: time.Minute}),
	)
	h := mw.PerClientIP(ratelimit.ClassSession)(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(h, "", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, serve(h, "", "10.0.0.2").Code)
}

func TestStoreErrorFailsOpen(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	mw := New(failingStore{}, discard, WithMetrics(m))
	h := mw.PerActor(ratelimit.ClassRestore)(okHandler())

	assert.Equal(t, http.StatusOK, serve(h, "7", "10.0.0.1").Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StoreErrors.WithLabelValues("restore")))
}

func TestDisabled(t *testing.T) {
	mw := New(failingStore{}, discard, WithDisabled(true))
	w := serve(mw.PerActor(ratelimit.ClassRestore)(okHandler()), "7", "10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
