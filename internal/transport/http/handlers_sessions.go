package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"alumni/internal/twofactor"
	dErrors "alumni/pkg/domain-errors"
	"alumni/pkg/platform/httputil"
	"alumni/pkg/requestcontext"
)

// SessionOpener issues two-factor sessions.
type SessionOpener interface {
	Open(ctx context.Context, subject string, ttl time.Duration, clientIP, userAgent string) (string, twofactor.Session, error)
}

// SessionHandler serves the re-authentication flow that opens 2FA sessions.
type SessionHandler struct {
	sessions SessionOpener
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionOpener, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

func (h *SessionHandler) Register(r chi.Router) {
	r.Post("/audit/2fa/sessions", h.handleOpen)
}

type openSessionRequest struct {
	Subject    string `json:"subject"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (req *openSessionRequest) Validate() error {
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if req.TTLSeconds < 0 {
		return dErrors.New(dErrors.CodeValidation, "ttl_seconds must not be negative")
	}
	return nil
}

type openSessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *SessionHandler) handleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[openSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	token, sess, err := h.sessions.Open(ctx, req.Subject, time.Duration(req.TTLSeconds)*time.Second,
		requestcontext.ClientIP(ctx), requestcontext.UserAgent(ctx))
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "open 2fa session", "error", err, "request_id", requestID)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, openSessionResponse{
		Token:     token,
		SessionID: sess.ID.String(),
		Subject:   sess.Subject,
		ExpiresAt: sess.ExpiresAt,
	})
}
