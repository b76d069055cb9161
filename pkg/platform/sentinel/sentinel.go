package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into named audit or domain errors:
//   - ErrNotFound: row, record or snapshot does not exist
//   - ErrConflict: a unique key (bank code, restore execution id) is taken
//   - ErrExpired: a 2FA session is past its expiry
//   - ErrAlreadyUsed: a 2FA session was consumed by an earlier restore
//   - ErrInvalidState: a 2FA session belongs to a different subject
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
)
