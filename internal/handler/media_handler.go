package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"albumshare/internal/domain"
)

type MediaManager interface {
	Get(ctx context.Context, callerID string, id uuid.UUID) (*domain.MediaAsset, error)
	DownloadURL(ctx context.Context, callerID string, id uuid.UUID) (*domain.DownloadURL, error)
	Retire(ctx context.Context, callerID string, id uuid.UUID) error
}

type MediaHandler struct {
	media MediaManager
	log   zerolog.Logger
}

func NewMediaHandler(media MediaManager, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{media: media, log: log}
}

func mediaID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid media id", domain.ErrBadRequest)
	}
	return id, nil
}

func (h *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := mediaID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	asset, err := h.media.Get(r.Context(), caller.UserID, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := mediaID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	u, err := h.media.DownloadURL(r.Context(), caller.UserID, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *MediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := mediaID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if err := h.media.Retire(r.Context(), caller.UserID, id); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
