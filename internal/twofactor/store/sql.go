// Package store holds the two-factor session stores.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"alumni/internal/audit"
	"alumni/internal/twofactor"
	"alumni/pkg/platform/sentinel"
	"alumni/pkg/platform/sqldialect"
	txcontext "alumni/pkg/platform/tx"
)

// SQLStore keeps sessions in the twofactor_sessions table. When the context
// carries a transaction the store joins it, so a consume inside a restore
// rolls back with the restore.
type SQLStore struct {
	db      *sql.DB
	dialect sqldialect.Dialect
}

func NewSQL(db *sql.DB, dialect sqldialect.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) querier(ctx context.Context) sqldialect.Queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *SQLStore) Create(ctx context.Context, digest string, sess twofactor.Session) error {
	_, err := s.querier(ctx).ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO twofactor_sessions (id, token_digest, subject, issued_at, expires_at, client_ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		sess.ID, digest, sess.Subject, audit.Timestamp(sess.IssuedAt), audit.Timestamp(sess.ExpiresAt), sess.ClientIP, sess.UserAgent)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("insert 2fa session: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert 2fa session: %w", err)
	}
	return nil
}

// Consume marks the session used with a single conditional UPDATE; the
// database serialises concurrent attempts so at most one sees a row change.
func (s *SQLStore) Consume(ctx context.Context, digest, subject string, now time.Time) (twofactor.Session, error) {
	q := s.querier(ctx)
	now = audit.Timestamp(now)
	res, err := q.ExecContext(ctx, s.dialect.Rebind(`
		UPDATE twofactor_sessions SET used_at = ?
		WHERE token_digest = ? AND subject = ? AND used_at IS NULL AND expires_at > ?`),
		now, digest, subject, now)
	if err != nil {
		return twofactor.Session{}, fmt.Errorf("consume 2fa session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return twofactor.Session{}, fmt.Errorf("consume 2fa session: %w", err)
	}

	sess, err := s.get(ctx, q, digest)
	if err != nil {
		return twofactor.Session{}, err
	}
	if n == 1 {
		return sess, nil
	}
	switch {
	case sess.Subject != subject:
		return twofactor.Session{}, sentinel.ErrInvalidState
	case sess.StatusAt(now) == twofactor.StatusExpired:
		return twofactor.Session{}, sentinel.ErrExpired
	default:
		return twofactor.Session{}, sentinel.ErrAlreadyUsed
	}
}

func (s *SQLStore) get(ctx context.Context, q sqldialect.Queryer, digest string) (twofactor.Session, error) {
	var (
		sess   twofactor.Session
		usedAt sql.NullTime
	)
	err := q.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT id, subject, issued_at, expires_at, client_ip, user_agent, used_at
		FROM twofactor_sessions WHERE token_digest = ?`), digest).
		Scan(&sess.ID, &sess.Subject, &sess.IssuedAt, &sess.ExpiresAt, &sess.ClientIP, &sess.UserAgent, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return twofactor.Session{}, sentinel.ErrNotFound
	}
	if err != nil {
		return twofactor.Session{}, fmt.Errorf("get 2fa session: %w", err)
	}
	sess.IssuedAt = sess.IssuedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		sess.UsedAt = &t
	}
	return sess, nil
}

func (s *SQLStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.querier(ctx).ExecContext(ctx,
		s.dialect.Rebind(`DELETE FROM twofactor_sessions WHERE expires_at <= ?`), audit.Timestamp(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired 2fa sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
