package audit

import dErrors "alumni/pkg/domain-errors"

// Named errors surfaced by capture and restore. Each is a distinct value so
// callers match with errors.Is; the code drives the HTTP status at the edge.
var (
	// ErrCaptureFailed means the audit record could not be written; the
	// enclosing business transaction was rolled back.
	ErrCaptureFailed = dErrors.New(dErrors.CodeInternal, "mutation capture failed")
	// ErrSessionInvalid covers a missing, foreign, consumed or expired 2FA session.
	ErrSessionInvalid = dErrors.New(dErrors.CodeUnauthorized, "two-factor session invalid")
	// ErrUnauthorized means the actor lacks the privilege for the operation.
	ErrUnauthorized = dErrors.New(dErrors.CodeForbidden, "actor not authorized")
	// ErrUnknownTarget means the table has no restore handler, or the snapshot
	// or live row the restore needs does not exist.
	ErrUnknownTarget = dErrors.New(dErrors.CodeNotFound, "unknown restore target")
	// ErrSnapshotEmpty means the requested image side is absent on the snapshot.
	ErrSnapshotEmpty = dErrors.New(dErrors.CodeConflict, "snapshot side is empty")
	// ErrUnsupportedOperationKind means the snapshot's operation has no restore strategy.
	ErrUnsupportedOperationKind = dErrors.New(dErrors.CodeUnprocessable, "unsupported operation kind")
	// ErrInvalidRowKey means the row key does not parse as the table's key type.
	ErrInvalidRowKey = dErrors.New(dErrors.CodeBadRequest, "invalid row key")
)
