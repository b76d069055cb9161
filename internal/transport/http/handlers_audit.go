package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"alumni/internal/audit"
	"alumni/internal/ledger"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/httputil"
	"alumni/pkg/requestcontext"
)

const defaultSnapshotLimit = 50

// LedgerService is the read side of the audit trail.
type LedgerService interface {
	Query(ctx context.Context, f audit.Filter) ([]ledger.View, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.View, error)
	Snapshots(ctx context.Context, table, rowKey string, limit int) ([]audit.RowSnapshot, error)
	Executions(ctx context.Context, table, rowKey string) ([]audit.RestoreExecutionRecord, error)
}

// AuditHandler serves ledger queries.
type AuditHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

func NewAuditHandler(ledger LedgerService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{ledger: ledger, logger: logger}
}

// Register mounts the ledger routes on r.
func (h *AuditHandler) Register(r chi.Router) {
	r.Get("/audit/mutations", h.handleQuery)
	r.Get("/audit/mutations/{id}", h.handleGet)
	r.Get("/audit/snapshots", h.handleSnapshots)
	r.Get("/audit/executions", h.handleExecutions)
}

func (h *AuditHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views, err := h.ledger.Query(ctx, f)
	if err != nil {
		h.fail(ctx, w, "query ledger", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"records": views,
		"limit":   f.Limit,
		"offset":  f.Offset,
	})
}

func (h *AuditHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid mutation id"))
		return
	}
	view, err := h.ledger.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get ledger record", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *AuditHandler) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, err := intParam(q, "limit", defaultSnapshotLimit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	snaps, err := h.ledger.Snapshots(ctx, q.Get("table"), q.Get("row_key"), limit)
	if err != nil {
		h.fail(ctx, w, "list snapshots", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

func (h *AuditHandler) handleExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	recs, err := h.ledger.Executions(ctx, q.Get("table"), q.Get("row_key"))
	if err != nil {
		h.fail(ctx, w, "list restore executions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"executions": recs})
}

func (h *AuditHandler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}

func parseFilter(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		TableName: q.Get("table"),
		ActorID:   q.Get("actor"),
		RequestID: q.Get("request_id"),
		RowKey:    q.Get("row_key"),
	}
	var err error
	if f.From, err = timeParam(q, "from"); err != nil {
		return audit.Filter{}, err
	}
	if f.To, err = timeParam(q, "to"); err != nil {
		return audit.Filter{}, err
	}
	if f.Limit, err = intParam(q, "limit", 0); err != nil {
		return audit.Filter{}, err
	}
	if f.Offset, err = intParam(q, "offset", 0); err != nil {
		return audit.Filter{}, err
	}
	if err := f.Validate(); err != nil {
		return audit.Filter{}, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	}
	return f, nil
}

func timeParam(q url.Values, key string) (time.Time, error) {
	raw := q.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, key+" must be an RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be a non-negative integer")
	}
	return n, nil
}
