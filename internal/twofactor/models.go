package twofactor

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIssued   Status = "ISSUED"
	StatusConsumed Status = "CONSUMED"
	StatusExpired  Status = "EXPIRED"
)

// Session is a single-use proof that Subject re-authenticated recently.
// The bearer token is never stored; stores key sessions by its digest.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	Subject   string     `json:"subject"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	ClientIP  string     `json:"client_ip,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// StatusAt reports the state at now. Expiry wins over consumption so an
// expired session is never valid regardless of used_at.
func (s Session) StatusAt(now time.Time) Status {
	if !now.Before(s.ExpiresAt) {
		return StatusExpired
	}
	if s.UsedAt != nil {
		return StatusConsumed
	}
	return StatusIssued
}
