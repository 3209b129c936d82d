package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"albumshare/internal/domain"
	"albumshare/internal/metrics"
	"albumshare/internal/service/s3"
)

// MembershipChecker answers whether a user is an active album member.
type MembershipChecker interface {
	ActiveRole(ctx context.Context, albumID, userID string) (role string, ok bool, err error)
}

// Limits are the per-type size caps.
type Limits struct {
	ImageMaxBytes int64
	VideoMaxBytes int64
}

func (l Limits) maxFor(t domain.MediaType) int64 {
	if t == domain.MediaTypeVideo {
		return l.VideoMaxBytes
	}
	return l.ImageMaxBytes
}

// UploadService authorizes uploads and hands out direct-to-store
// credentials. It never charges the ledger.
type UploadService struct {
	quota   *QuotaService
	members MembershipChecker
	storage s3.Storage
	limits  Limits
	metrics *metrics.Metrics
	log     zerolog.Logger
	newID   func() uuid.UUID
}

func NewUploadService(
	quota *QuotaService,
	members MembershipChecker,
	storage s3.Storage,
	limits Limits,
	m *metrics.Metrics,
	log zerolog.Logger,
) *UploadService {
	return &UploadService{
		quota:   quota,
		members: members,
		storage: storage,
		limits:  limits,
		metrics: m,
		log:     log,
		newID:   uuid.New,
	}
}

// Reserve validates the proposed upload and issues a credential for a
// fresh object key.
func (s *UploadService) Reserve(ctx context.Context, userID string, req domain.ReserveUploadRequest) (*domain.ReserveUploadResponse, error) {
	resp, mediaType, err := s.reserve(ctx, userID, req)
	label := string(mediaType)
	if label == "" {
		label = "unknown"
	}
	s.metrics.RecordReservation(label, resultLabel(err))
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("album_id", req.AlbumID).
		Str("object_key", resp.ObjectKey).
		Int64("declared_size", req.FileSize).
		Msg("upload reserved")
	return resp, nil
}

func (s *UploadService) reserve(ctx context.Context, userID string, req domain.ReserveUploadRequest) (*domain.ReserveUploadResponse, domain.MediaType, error) {
	if userID == "" || req.AlbumID == "" || strings.TrimSpace(req.FileName) == "" || req.MimeType == "" {
		return nil, "", fmt.Errorf("%w: albumId, fileName and mimeType are required", domain.ErrBadRequest)
	}
	if req.FileSize <= 0 {
		return nil, "", fmt.Errorf("%w: fileSize must be positive", domain.ErrBadRequest)
	}

	mimeType, spec, err := resolveMIME(req.MimeType)
	if err != nil {
		return nil, "", err
	}

	if limit := s.limits.maxFor(spec.mediaType); req.FileSize > limit {
		return nil, spec.mediaType, fmt.Errorf("%w: %s limit is %s", domain.ErrFileTooLarge, spec.mediaType, units.BytesSize(float64(limit)))
	}

	key, err := albumObjectKey(req.AlbumID, req.EventID, s.newID(), spec.extension(req.FileName))
	if err != nil {
		return nil, spec.mediaType, err
	}

	if _, ok, err := s.members.ActiveRole(ctx, req.AlbumID, userID); err != nil {
		return nil, spec.mediaType, fmt.Errorf("failed to check membership: %w", err)
	} else if !ok {
		return nil, spec.mediaType, domain.ErrForbidden
	}

	if err := s.quota.CheckCapacity(ctx, userID, req.FileSize); err != nil {
		return nil, spec.mediaType, err
	}

	cred, err := s.storage.PresignUpload(ctx, key, mimeType)
	if err != nil {
		return nil, spec.mediaType, fmt.Errorf("failed to issue upload credential: %w", err)
	}

	return &domain.ReserveUploadResponse{
		Credential: cred,
		ObjectKey:  key,
		MediaType:  spec.mediaType,
	}, spec.mediaType, nil
}

// ReserveAvatar issues a credential for a profile image. Avatars are not
// album media and are not billed to the ledger.
func (s *UploadService) ReserveAvatar(ctx context.Context, userID string, req domain.ReserveAvatarRequest) (*domain.ReserveUploadResponse, error) {
	if userID == "" || strings.TrimSpace(req.FileName) == "" || req.MimeType == "" || req.FileSize <= 0 {
		return nil, fmt.Errorf("%w: fileName, fileSize and mimeType are required", domain.ErrBadRequest)
	}

	mimeType, spec, err := resolveMIME(req.MimeType)
	if err != nil {
		return nil, err
	}
	if spec.mediaType != domain.MediaTypeImage {
		return nil, fmt.Errorf("%w: avatars must be images", domain.ErrInvalidFileType)
	}
	if req.FileSize > s.limits.ImageMaxBytes {
		return nil, fmt.Errorf("%w: image limit is %s", domain.ErrFileTooLarge, units.BytesSize(float64(s.limits.ImageMaxBytes)))
	}

	key, err := avatarObjectKey(userID, s.newID(), spec.extension(req.FileName))
	if err != nil {
		return nil, err
	}

	cred, err := s.storage.PresignUpload(ctx, key, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to issue upload credential: %w", err)
	}

	return &domain.ReserveUploadResponse{
		Credential: cred,
		ObjectKey:  key,
		MediaType:  spec.mediaType,
	}, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrBadRequest):
		return "bad_request"
	case errors.Is(err, domain.ErrInvalidFileType):
		return "invalid_file_type"
	case errors.Is(err, domain.ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, domain.ErrForbidden):
		return "not_member"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, domain.ErrObjectNotFound):
		return "object_not_found"
	case errors.Is(err, domain.ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, domain.ErrMediaNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrNotAllowed):
		return "not_allowed"
	default:
		return "error"
	}
}
