// Package twofactor issues and consumes single-use re-authentication
// sessions that gate privileged operations.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"alumni/internal/audit"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/sentinel"
)

const (
	// DefaultMinTTL is the shortest lifetime a session may be opened with.
	DefaultMinTTL = 5 * time.Minute
	// MaxTTL bounds how long a re-authentication stays usable.
	MaxTTL = time.Hour
)

// Store persists sessions keyed by token digest.
type Store interface {
	Create(ctx context.Context, digest string, s Session) error
	// Consume atomically marks the session used when it belongs to subject,
	// is unused and unexpired at now. Otherwise it returns sentinel.ErrNotFound,
	// ErrInvalidState (wrong subject), ErrAlreadyUsed or ErrExpired.
	Consume(ctx context.Context, digest, subject string, now time.Time) (Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Service manages the session lifecycle ISSUED -> CONSUMED | EXPIRED.
type Service struct {
	store   Store
	minTTL  time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Service.
type Option func(*Service)

func WithMinTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.minTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		minTTL: DefaultMinTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open issues a session for subject and returns its bearer token. The token
// is shown once; only its digest is stored. ttl is raised to the configured
// floor and capped at MaxTTL.
func (s *Service) Open(ctx context.Context, subject string, ttl time.Duration, clientIP, userAgent string) (string, Session, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", Session{}, dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	ttl = max(ttl, s.minTTL)
	ttl = min(ttl, max(MaxTTL, s.minTTL))

	token, err := newToken()
	if err != nil {
		return "", Session{}, err
	}
	now := audit.Timestamp(s.now())
	sess := Session{
		ID:        uuid.New(),
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		ClientIP:  clientIP,
		UserAgent: userAgent,
	}
	if err := s.store.Create(ctx, Digest(token), sess); err != nil {
		return "", Session{}, fmt.Errorf("create 2fa session: %w", err)
	}
	s.metrics.incOpened()
	s.logger.InfoContext(ctx, "2fa session opened",
		"session_id", sess.ID,
		"subject", subject,
		"expires_at", sess.ExpiresAt,
	)
	return token, sess, nil
}

// RequireAndConsume validates token for subject and consumes it. Every
// failure is audit.ErrSessionInvalid; the reason is only logged.
func (s *Service) RequireAndConsume(ctx context.Context, token, subject string) (Session, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(subject) == "" {
		s.metrics.incRejected("missing")
		return Session{}, audit.ErrSessionInvalid
	}
	sess, err := s.store.Consume(ctx, Digest(token), subject, audit.Timestamp(s.now()))
	if err != nil {
		reason := rejectReason(err)
		if reason == "error" {
			return Session{}, fmt.Errorf("consume 2fa session: %w", err)
		}
		s.metrics.incRejected(reason)
		s.logger.WarnContext(ctx, "2fa session rejected",
			"subject", subject,
			"reason", reason,
		)
		return Session{}, fmt.Errorf("%w: %s", audit.ErrSessionInvalid, reason)
	}
	s.metrics.incConsumed()
	return sess, nil
}

// PurgeExpired removes sessions that expired before now.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, audit.Timestamp(now))
	if err != nil {
		return 0, fmt.Errorf("purge expired 2fa sessions: %w", err)
	}
	return n, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return "missing"
	case errors.Is(err, sentinel.ErrInvalidState):
		return "wrong_subject"
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return "consumed"
	case errors.Is(err, sentinel.ErrExpired):
		return "expired"
	default:
		return "error"
	}
}
