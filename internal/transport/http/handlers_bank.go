package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"alumni/internal/alumni/models"
	"alumni/internal/audit/carrier"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/httputil"
	"alumni/pkg/requestcontext"
)

const defaultPageSize = 50

// BankService manages the bank reference table.
type BankService interface {
	Create(ctx context.Context, c carrier.Carrier, kode, nama string) (*models.Bank, error)
	Get(ctx context.Context, id int64) (*models.Bank, error)
	List(ctx context.Context, limit, offset int) ([]*models.Bank, error)
	Rename(ctx context.Context, c carrier.Carrier, id int64, kode, nama string) (*models.Bank, error)
	Delete(ctx context.Context, c carrier.Carrier, id int64) error
}

// BankHandler exposes CRUD on banks. Writes are captured in the ledger.
type BankHandler struct {
	banks  BankService
	logger *slog.Logger
}

func NewBankHandler(banks BankService, logger *slog.Logger) *BankHandler {
	return &BankHandler{banks: banks, logger: logger}
}

func (h *BankHandler) Register(r chi.Router) {
	r.Route("/bank", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handleRename)
		r.Delete("/{id}", h.handleDelete)
	})
}

type bankRequest struct {
	Kode string `json:"kode"`
	Nama string `json:"nama"`
}

func (req *bankRequest) Validate() error {
	req.Kode = strings.TrimSpace(req.Kode)
	req.Nama = strings.TrimSpace(req.Nama)
	if req.Kode == "" || req.Nama == "" {
		return dErrors.New(dErrors.CodeValidation, "kode and nama are required")
	}
	return nil
}

func (h *BankHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, err := intParam(q, "limit", defaultPageSize)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	offset, err := intParam(q, "offset", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	banks, err := h.banks.List(ctx, limit, offset)
	if err != nil {
		h.fail(ctx, w, "list banks", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"banks": banks})
}

func (h *BankHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := bankID(w, r)
	if !ok {
		return
	}
	bank, err := h.banks.Get(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get bank", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bank)
}

func (h *BankHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.carrier(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[bankRequest](w, r, h.logger, ctx, c.RequestID())
	if !ok {
		return
	}
	bank, err := h.banks.Create(ctx, c, req.Kode, req.Nama)
	if err != nil {
		h.fail(ctx, w, "create bank", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, bank)
}

func (h *BankHandler) handleRename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.carrier(w, r)
	if !ok {
		return
	}
	id, ok := bankID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[bankRequest](w, r, h.logger, ctx, c.RequestID())
	if !ok {
		return
	}
	bank, err := h.banks.Rename(ctx, c, id, req.Kode, req.Nama)
	if err != nil {
		h.fail(ctx, w, "rename bank", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bank)
}

func (h *BankHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, ok := h.carrier(w, r)
	if !ok {
		return
	}
	id, ok := bankID(w, r)
	if !ok {
		return
	}
	if err := h.banks.Delete(ctx, c, id); err != nil {
		h.fail(ctx, w, "delete bank", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BankHandler) carrier(w http.ResponseWriter, r *http.Request) (carrier.Carrier, bool) {
	ctx := r.Context()
	c, ok := requestcontext.Carrier(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "audit carrier missing despite middleware",
			"request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "audit context error"))
	}
	return c, ok
}

func (h *BankHandler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}

func bankID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid bank id"))
		return 0, false
	}
	return id, true
}
