package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"alumni/internal/audit"
	"alumni/internal/authz"
	"alumni/internal/restore"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/httputil"
	"alumni/pkg/requestcontext"
)

// Restorer applies a snapshot to a live row.
type Restorer interface {
	Restore(ctx context.Context, req restore.Request) (audit.RestoreExecutionRecord, error)
}

// RestoreHandler serves secure restores.
type RestoreHandler struct {
	restorer Restorer
	logger   *slog.Logger
}

func NewRestoreHandler(restorer Restorer, logger *slog.Logger) *RestoreHandler {
	return &RestoreHandler{restorer: restorer, logger: logger}
}

func (h *RestoreHandler) Register(r chi.Router) {
	r.Post("/audit/restore", h.handleRestore)
}

type restoreRequest struct {
	Table        string `json:"table"`
	RowKey       string `json:"row_key"`
	SnapshotID   string `json:"snapshot_id"`
	Side         string `json:"side"`
	SessionToken string `json:"session_token"`
	Note         string `json:"note"`

	snapshotID uuid.UUID
}

func (req *restoreRequest) Validate() error {
	req.Table = strings.TrimSpace(req.Table)
	req.RowKey = strings.TrimSpace(req.RowKey)
	req.Side = strings.ToUpper(strings.TrimSpace(req.Side))
	if req.Table == "" || req.RowKey == "" {
		return dErrors.New(dErrors.CodeValidation, "table and row_key are required")
	}
	id, err := uuid.Parse(strings.TrimSpace(req.SnapshotID))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "snapshot_id must be a UUID")
	}
	req.snapshotID = id
	return nil
}

// handleRestore restores one row. The two-factor session token is taken
// from the body; a missing token is rejected by the executor as an invalid
// session after the authorization check.
func (h *RestoreHandler) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	c, ok := requestcontext.Carrier(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "audit carrier missing despite middleware", "request_id", requestID)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "audit context error"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[restoreRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.restorer.Restore(ctx, restore.Request{
		Table:        req.Table,
		RowKey:       req.RowKey,
		SnapshotID:   req.snapshotID,
		Side:         audit.SnapshotSide(req.Side),
		SessionToken: req.SessionToken,
		Principal:    authz.FromActor(requestcontext.ActorFrom(ctx)),
		Carrier:      c,
		Note:         req.Note,
	})
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "restore failed", "error", err, "request_id", requestID)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}
