package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"authcore/internal/platform/middleware"
	dErrors "authcore/pkg/domain-errors"
	"authcore/pkg/platform/httputil"
	"authcore/pkg/requestcontext"
)

const defaultAuditLimit = 50

// Handler serves the operator API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// New creates a new admin handler
func New(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the admin routes on r. Authentication is applied by the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/ratelimits", h.HandleListNamespaces)
	r.Get("/admin/ratelimits/{namespace}", h.HandleRateLimitStatus)
	r.Post("/admin/ratelimits/{namespace}/reset", h.HandleResetRateLimit)

	r.Get("/admin/lockouts/{identifier}", h.HandleLockoutStatus)
	r.Delete("/admin/lockouts/{identifier}", h.HandleClearLockout)

	r.Get("/admin/users/{userID}/sessions", h.HandleUserSessions)
	r.Delete("/admin/users/{userID}/sessions", h.HandleRevokeUserSessions)
	r.Get("/admin/users/{userID}/two-factor", h.HandleTwoFactorStatus)
	r.Delete("/admin/sessions/{sessionID}", h.HandleRevokeSession)

	r.Get("/admin/audit/recent", h.HandleRecentAuditEvents)
}

func (h *Handler) HandleListNamespaces(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, NamespacesResponse{Namespaces: h.service.Namespaces()})
}

// HandleRateLimitStatus reads ?identifier= and optional ?endpoint=.
func (h *Handler) HandleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	status, err := h.service.RateLimitStatus(ctx, chi.URLParam(r, "namespace"), q.Get("identifier"), q.Get("endpoint"))
	if err != nil {
		h.fail(w, r, "rate limit status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleResetRateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[ResetRateLimitRequest](w, r, h.logger)
	if !ok {
		return
	}
	req.Namespace = chi.URLParam(r, "namespace")
	req.Normalize()

	if err := h.service.ResetRateLimit(ctx, middleware.AdminActorID(ctx), req); err != nil {
		h.fail(w, r, "rate limit reset failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleLockoutStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.LockoutStatus(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		h.fail(w, r, "lockout status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) HandleClearLockout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.ClearLockout(ctx, middleware.AdminActorID(ctx), chi.URLParam(r, "identifier")); err != nil {
		h.fail(w, r, "lockout clear failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleUserSessions(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.UserSessions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, "list sessions failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) HandleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	n, err := h.service.RevokeUserSessions(ctx, middleware.AdminActorID(ctx), userID)
	if err != nil {
		h.fail(w, r, "revoke sessions failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RevokeSessionsResponse{UserID: userID, Revoked: n})
}

func (h *Handler) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.RevokeSession(ctx, middleware.AdminActorID(ctx), chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, r, "revoke session failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleTwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.TwoFactorStatus(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, "two-factor status failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleRecentAuditEvents returns the newest events; ?limit= defaults to 50.
func (h *Handler) HandleRecentAuditEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	events, err := h.service.RecentAuditEvents(r.Context(), limit)
	if err != nil {
		h.fail(w, r, "recent audit events failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AuditEventsResponse{Events: events, Total: len(events)})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	status := httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err))
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
