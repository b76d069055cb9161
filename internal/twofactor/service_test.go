package twofactor_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"alumni/internal/audit"
	"alumni/internal/platform/database/dbtest"
	"alumni/internal/twofactor"
	"alumni/internal/twofactor/store"
	dErrors "alumni/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	now     time.Time
	metrics *twofactor.Metrics
	service *twofactor.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	db, dialect := dbtest.New(s.T())
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.metrics = twofactor.NewMetrics(prometheus.NewRegistry())
	s.service = twofactor.NewService(store.NewSQL(db, dialect),
		twofactor.WithClock(func() time.Time { return s.now }),
		twofactor.WithLogger(slog.New(slog.DiscardHandler)),
		twofactor.WithMetrics(s.metrics),
	)
}

func (s *ServiceSuite) TestOpenAndConsume() {
	ctx := context.Background()
	token, sess, err := s.service.Open(ctx, "admin-1", 10*time.Minute, "10.0.0.1", "curl/8")
	s.Require().NoError(err)
	s.NotEmpty(token)
	s.Equal("admin-1", sess.Subject)
	s.Equal(s.now.Add(10*time.Minute), sess.ExpiresAt)
	s.Equal(twofactor.StatusIssued, sess.StatusAt(s.now))

	consumed, err := s.service.RequireAndConsume(ctx, token, "admin-1")
	s.Require().NoError(err)
	s.Equal(sess.ID, consumed.ID)
	s.Require().NotNil(consumed.UsedAt)
	s.Equal(twofactor.StatusConsumed, consumed.StatusAt(s.now))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Consumed))
}

func (s *ServiceSuite) TestSecondConsumeRejected() {
	ctx := context.Background()
	token, _, err := s.service.Open(ctx, "admin-1", 0, "", "")
	s.Require().NoError(err)

	_, err = s.service.RequireAndConsume(ctx, token, "admin-1")
	s.Require().NoError(err)

	_, err = s.service.RequireAndConsume(ctx, token, "admin-1")
	s.ErrorIs(err, audit.ErrSessionInvalid)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("consumed")))
}

func (s *ServiceSuite) TestTTLRaisedToFloor() {
	_, sess, err := s.service.Open(context.Background(), "admin-1", time.Second, "", "")
	s.Require().NoError(err)
	s.Equal(s.now.Add(twofactor.DefaultMinTTL), sess.ExpiresAt)
}

func (s *ServiceSuite) TestTTLCapped() {
	_, sess, err := s.service.Open(context.Background(), "admin-1", 48*time.Hour, "", "")
	s.Require().NoError(err)
	s.Equal(s.now.Add(twofactor.MaxTTL), sess.ExpiresAt)
}

func (s *ServiceSuite) TestExpiredRejected() {
	ctx := context.Background()
	token, _, err := s.service.Open(ctx, "admin-1", 5*time.Minute, "", "")
	s.Require().NoError(err)

	s.now = s.now.Add(5 * time.Minute)
	_, err = s.service.RequireAndConsume(ctx, token, "admin-1")
	s.ErrorIs(err, audit.ErrSessionInvalid)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("expired")))
}

func (s *ServiceSuite) TestWrongSubjectDoesNotBurnSession() {
	ctx := context.Background()
	token, _, err := s.service.Open(ctx, "admin-1", 0, "", "")
	s.Require().NoError(err)

	_, err = s.service.RequireAndConsume(ctx, token, "admin-2")
	s.ErrorIs(err, audit.ErrSessionInvalid)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("wrong_subject")))

	_, err = s.service.RequireAndConsume(ctx, token, "admin-1")
	s.NoError(err)
}

func (s *ServiceSuite) TestUnknownAndEmptyToken() {
	ctx := context.Background()
	_, err := s.service.RequireAndConsume(ctx, "not-a-token", "admin-1")
	s.ErrorIs(err, audit.ErrSessionInvalid)

	_, err = s.service.RequireAndConsume(ctx, "", "admin-1")
	s.ErrorIs(err, audit.ErrSessionInvalid)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Rejected.WithLabelValues("missing")))
}

func (s *ServiceSuite) TestOpenRequiresSubject() {
	_, _, err := s.service.Open(context.Background(), "  ", 0, "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestConcurrentConsumeSucceedsOnce() {
	ctx := context.Background()
	token, _, err := s.service.Open(ctx, "admin-1", 0, "", "")
	s.Require().NoError(err)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.service.RequireAndConsume(ctx, token, "admin-1"); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), successes.Load())
}

func (s *ServiceSuite) TestPurgeExpired() {
	ctx := context.Background()
	_, _, err := s.service.Open(ctx, "admin-1", 5*time.Minute, "", "")
	s.Require().NoError(err)
	_, _, err = s.service.Open(ctx, "admin-2", time.Hour, "", "")
	s.Require().NoError(err)

	n, err := s.service.PurgeExpired(ctx, s.now.Add(10*time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func TestStatusAtExpiryWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	used := now.Add(-time.Minute)
	sess := twofactor.Session{ExpiresAt: now, UsedAt: &used}
	assert.Equal(t, twofactor.StatusExpired, sess.StatusAt(now))
	assert.Equal(t, twofactor.StatusConsumed, sess.StatusAt(now.Add(-time.Second)))
}

func TestDigestStable(t *testing.T) {
	d := twofactor.Digest("token")
	require.Len(t, d, 64)
	assert.Equal(t, d, twofactor.Digest("token"))
	assert.NotEqual(t, d, twofactor.Digest("token2"))
}
