package service

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"albumshare/internal/domain"
	"albumshare/internal/metrics"
	"albumshare/internal/service/s3"
)

// Album roles that may manage other members' media.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

// MediaStore persists registered media.
type MediaStore interface {
	// Create returns domain.ErrAlreadyRegistered if the object key is taken.
	Create(ctx context.Context, asset *domain.MediaAsset) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MediaAsset, error)
	KeyRegistered(ctx context.Context, objectKey string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MediaService registers completed uploads and retires deleted media,
// keeping the ledger in step with both.
type MediaService struct {
	media   MediaStore
	quota   *QuotaService
	members MembershipChecker
	storage s3.Storage
	limits  Limits
	metrics *metrics.Metrics
	log     zerolog.Logger
	newID   func() uuid.UUID
}

func NewMediaService(
	media MediaStore,
	quota *QuotaService,
	members MembershipChecker,
	storage s3.Storage,
	limits Limits,
	m *metrics.Metrics,
	log zerolog.Logger,
) *MediaService {
	return &MediaService{
		media:   media,
		quota:   quota,
		members: members,
		storage: storage,
		limits:  limits,
		metrics: m,
		log:     log,
		newID:   uuid.New,
	}
}

// Complete verifies the uploaded object against the store, registers it with
// the store-reported size and charges the uploader.
func (s *MediaService) Complete(ctx context.Context, userID string, req domain.CompleteUploadRequest) (*domain.MediaAsset, error) {
	asset, charged, err := s.complete(ctx, userID, req)
	switch {
	case err != nil:
		s.metrics.RecordCompletion(resultLabel(err), 0)
		return nil, err
	case !charged:
		s.metrics.RecordCompletion("ledger_error", 0)
	default:
		s.metrics.RecordCompletion("ok", asset.SizeBytes)
	}
	return asset, nil
}

func (s *MediaService) complete(ctx context.Context, userID string, req domain.CompleteUploadRequest) (*domain.MediaAsset, bool, error) {
	if userID == "" || req.AlbumID == "" || req.ObjectKey == "" || req.MimeType == "" || req.MediaType == "" {
		return nil, false, fmt.Errorf("%w: albumId, objectKey, mediaType and mimeType are required", domain.ErrBadRequest)
	}

	mimeType, spec, err := resolveMIME(req.MimeType)
	if err != nil {
		return nil, false, err
	}
	if spec.mediaType != req.MediaType {
		return nil, false, fmt.Errorf("%w: %s is not a %s type", domain.ErrInvalidFileType, mimeType, req.MediaType)
	}

	inAlbum, err := keyInAlbum(req.ObjectKey, req.AlbumID, req.EventID)
	if err != nil {
		return nil, false, err
	}
	if !inAlbum {
		return nil, false, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, req.ObjectKey)
	}

	if _, ok, err := s.members.ActiveRole(ctx, req.AlbumID, userID); err != nil {
		return nil, false, fmt.Errorf("failed to check membership: %w", err)
	} else if !ok {
		return nil, false, domain.ErrForbidden
	}

	info, err := s.storage.StatObject(ctx, req.ObjectKey)
	if err != nil {
		return nil, false, err
	}

	// A registered object is never discarded from here, whatever the
	// caller claims about it.
	if registered, err := s.media.KeyRegistered(ctx, req.ObjectKey); err != nil {
		return nil, false, err
	} else if registered {
		return nil, false, fmt.Errorf("%w: %s", domain.ErrAlreadyRegistered, req.ObjectKey)
	}

	// Objects that break the reservation's terms are never registered.
	if stored := storedMIME(info.ContentType); stored != mimeType {
		s.discard(ctx, req.ObjectKey, "content type mismatch")
		return nil, false, fmt.Errorf("%w: stored object is %q, expected %s", domain.ErrInvalidFileType, info.ContentType, mimeType)
	}
	if limit := s.limits.maxFor(spec.mediaType); info.Size > limit {
		s.discard(ctx, req.ObjectKey, "object exceeds size limit")
		return nil, false, fmt.Errorf("%w: stored object is %s, %s limit is %s", domain.ErrFileTooLarge,
			units.BytesSize(float64(info.Size)), spec.mediaType, units.BytesSize(float64(limit)))
	}

	asset := &domain.MediaAsset{
		ID:         s.newID(),
		AlbumID:    req.AlbumID,
		UploaderID: userID,
		MediaType:  spec.mediaType,
		MimeType:   mimeType,
		ObjectKey:  req.ObjectKey,
		SizeBytes:  info.Size,
	}
	if req.EventID != "" {
		eventID := req.EventID
		asset.EventID = &eventID
	}

	if err := s.media.Create(ctx, asset); err != nil {
		return nil, false, err
	}

	// The row is durable from here on. A failed charge leaves the ledger
	// under-counting until the next reconciliation.
	if err := s.quota.Charge(ctx, userID, asset.SizeBytes); err != nil {
		s.log.Error().Err(err).
			Str("user_id", userID).
			Str("media_id", asset.ID.String()).
			Int64("size_bytes", asset.SizeBytes).
			Msg("failed to charge ledger after registering media; reconciliation required")
		return asset, false, nil
	}

	s.log.Info().
		Str("user_id", userID).
		Str("media_id", asset.ID.String()).
		Str("object_key", asset.ObjectKey).
		Int64("size_bytes", asset.SizeBytes).
		Msg("media registered")

	return asset, true, nil
}

// discard removes an unregistered object. Failure leaves an orphan, which
// costs storage but never quota.
func (s *MediaService) discard(ctx context.Context, key, reason string) {
	if err := s.storage.DeleteObject(ctx, key); err != nil {
		s.metrics.ObjectDeleteFailures.Inc()
		s.log.Warn().Err(err).
			Str("object_key", key).
			Str("reason", reason).
			Msg("failed to discard rejected object")
		return
	}
	s.log.Info().Str("object_key", key).Str("reason", reason).Msg("rejected object discarded")
}

func storedMIME(contentType string) string {
	base, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return ""
	}
	return base
}

// Retire deletes the media for callerID, who must be the uploader or an
// album owner/admin.
func (s *MediaService) Retire(ctx context.Context, callerID string, id uuid.UUID) error {
	asset, err := s.retire(ctx, callerID, id)
	if err != nil {
		s.metrics.RecordRetirement(resultLabel(err), 0)
		return err
	}
	s.metrics.RecordRetirement("ok", asset.SizeBytes)
	return nil
}

func (s *MediaService) retire(ctx context.Context, callerID string, id uuid.UUID) (*domain.MediaAsset, error) {
	asset, err := s.media.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeManage(ctx, callerID, asset); err != nil {
		return nil, err
	}

	// Best effort: an orphaned object is preferable to a failed delete.
	if err := s.storage.DeleteObject(ctx, asset.ObjectKey); err != nil {
		s.metrics.ObjectDeleteFailures.Inc()
		s.log.Warn().Err(err).
			Str("media_id", asset.ID.String()).
			Str("object_key", asset.ObjectKey).
			Msg("failed to delete object, leaving orphan")
	}

	if err := s.media.Delete(ctx, asset.ID); err != nil {
		return nil, err
	}

	if err := s.quota.Release(ctx, asset.UploaderID, asset.SizeBytes); err != nil {
		s.log.Error().Err(err).
			Str("user_id", asset.UploaderID).
			Str("media_id", asset.ID.String()).
			Int64("size_bytes", asset.SizeBytes).
			Msg("failed to release ledger after deleting media; reconciliation required")
	}

	s.log.Info().
		Str("caller_id", callerID).
		Str("media_id", asset.ID.String()).
		Int64("size_bytes", asset.SizeBytes).
		Msg("media retired")

	return asset, nil
}

func (s *MediaService) authorizeManage(ctx context.Context, callerID string, asset *domain.MediaAsset) error {
	if callerID != "" && callerID == asset.UploaderID {
		return nil
	}
	role, ok, err := s.members.ActiveRole(ctx, asset.AlbumID, callerID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if ok && (role == RoleOwner || role == RoleAdmin) {
		return nil
	}
	return domain.ErrNotAllowed
}

// Get returns the asset if callerID is an active member of its album.
func (s *MediaService) Get(ctx context.Context, callerID string, id uuid.UUID) (*domain.MediaAsset, error) {
	asset, err := s.media.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok, err := s.members.ActiveRole(ctx, asset.AlbumID, callerID); err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	} else if !ok {
		return nil, domain.ErrForbidden
	}
	return asset, nil
}

// DownloadURL issues a time-limited GET for an album member.
func (s *MediaService) DownloadURL(ctx context.Context, callerID string, id uuid.UUID) (*domain.DownloadURL, error) {
	asset, err := s.Get(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	u, err := s.storage.PresignDownload(ctx, asset.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to issue download url: %w", err)
	}
	return u, nil
}
