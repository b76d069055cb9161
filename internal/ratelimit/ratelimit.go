// Package ratelimit bounds how often a caller may attempt sensitive audit
// operations. Restores and 2FA session issuance are the only limited classes;
// ledger reads and governed business writes are not throttled here.
package ratelimit

import (
	"context"
	"time"
)

// Class groups endpoints that share one limit.
type Class string

const (
	// ClassRestore covers POST /audit/restore, keyed by actor.
	ClassRestore Class = "restore"
	// ClassSession covers 2FA session issuance, keyed by client IP.
	ClassSession Class = "session"
)

// Limit is the number of requests allowed per sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits are applied when configuration leaves a class unset.
func DefaultLimits() map[Class]Limit {
	return map[Class]Limit{
		ClassRestore: {Requests: 10, Window: time.Minute},
		ClassSession: {Requests: 20, Window: time.Minute},
	}
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is whole seconds until the oldest hit leaves the window. Only
	// set when the request was denied.
	RetryAfter int
}

// Store counts hits per key in a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Key builds the bucket key for a class and subject.
func Key(class Class, subject string) string {
	return "rl:" + string(class) + ":" + subject
}

// RetryAfter rounds d up to whole seconds, never below one.
func RetryAfter(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
