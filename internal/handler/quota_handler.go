package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"albumshare/internal/domain"
	"albumshare/internal/service"
)

type QuotaReader interface {
	GetQuotaInfo(ctx context.Context, userID string) (*domain.QuotaInfo, error)
	UpdateQuotaLimit(ctx context.Context, userID string, newLimit int64) error
}

type Reconciler interface {
	RunForUser(ctx context.Context, userID string) (*service.ReconcileResult, error)
}

type QuotaHandler struct {
	quota      QuotaReader
	reconciler Reconciler
	log        zerolog.Logger
}

func NewQuotaHandler(quota QuotaReader, reconciler Reconciler, log zerolog.Logger) *QuotaHandler {
	return &QuotaHandler{
		quota:      quota,
		reconciler: reconciler,
		log:        log,
	}
}

func (h *QuotaHandler) GetQuotaInfo(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	info, err := h.quota.GetQuotaInfo(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// UpdateQuotaLimit is admin-only; the router enforces the role.
func (h *QuotaHandler) UpdateQuotaLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuotaBytes *int64 `json:"quotaBytes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if req.QuotaBytes == nil {
		writeError(w, r, h.log, domain.ErrBadRequest)
		return
	}

	userID := chi.URLParam(r, "userId")
	if err := h.quota.UpdateQuotaLimit(r.Context(), userID, *req.QuotaBytes); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	info, err := h.quota.GetQuotaInfo(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *QuotaHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.RunForUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
