package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"albumshare/internal/auth"
	"albumshare/internal/domain"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	RemainingBytes *int64 `json:"remainingBytes,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps err onto the error taxonomy. Infrastructure errors are
// logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status, resp := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, ErrorResponse) {
	var qe *domain.QuotaExceededError
	switch {
	case errors.As(err, &qe):
		remaining := qe.Remaining
		return http.StatusConflict, ErrorResponse{Code: "QUOTA_EXCEEDED", Message: qe.Error(), RemainingBytes: &remaining}
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()}
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidFileType):
		return http.StatusBadRequest, ErrorResponse{Code: "INVALID_FILE_TYPE", Message: err.Error()}
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusBadRequest, ErrorResponse{Code: "FILE_TOO_LARGE", Message: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Code: "NOT_MEMBER", Message: err.Error()}
	case errors.Is(err, domain.ErrNotAllowed):
		return http.StatusForbidden, ErrorResponse{Code: "FORBIDDEN", Message: err.Error()}
	case errors.Is(err, domain.ErrMediaNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrObjectNotFound):
		return http.StatusBadRequest, ErrorResponse{Code: "OBJECT_NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return http.StatusBadRequest, ErrorResponse{Code: "ALREADY_REGISTERED", Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL_ERROR", Message: "internal server error"}
	}
}

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 16 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrBadRequest, err)
	}
	return nil
}

// identity is set by the auth middleware; a missing one is a wiring bug.
func identity(r *http.Request) (auth.Identity, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Identity{}, auth.ErrNoToken
	}
	return id, nil
}
