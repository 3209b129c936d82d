package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"albumshare/internal/domain"
)

type Reserver interface {
	Reserve(ctx context.Context, userID string, req domain.ReserveUploadRequest) (*domain.ReserveUploadResponse, error)
	ReserveAvatar(ctx context.Context, userID string, req domain.ReserveAvatarRequest) (*domain.ReserveUploadResponse, error)
}

type Completer interface {
	Complete(ctx context.Context, userID string, req domain.CompleteUploadRequest) (*domain.MediaAsset, error)
}

// UploadHandler serves both halves of the upload protocol.
type UploadHandler struct {
	reserver  Reserver
	completer Completer
	log       zerolog.Logger
}

func NewUploadHandler(reserver Reserver, completer Completer, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		reserver:  reserver,
		completer: completer,
		log:       log,
	}
}

func (h *UploadHandler) ReserveUpload(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.ReserveUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resp, err := h.reserver.Reserve(r.Context(), id.UserID, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *UploadHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.CompleteUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	asset, err := h.completer.Complete(r.Context(), id.UserID, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (h *UploadHandler) ReserveAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	var req domain.ReserveAvatarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	resp, err := h.reserver.ReserveAvatar(r.Context(), id.UserID, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
