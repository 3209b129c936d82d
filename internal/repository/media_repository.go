package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"albumshare/internal/domain"
)

type MediaRepository struct {
	db *sqlx.DB
}

func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create inserts the asset. A second insert for the same object key returns
// domain.ErrAlreadyRegistered.
func (r *MediaRepository) Create(ctx context.Context, asset *domain.MediaAsset) error {
	query := `
        INSERT INTO media_assets (id, album_id, event_id, uploader_id, media_type, mime_type, object_key, size_bytes)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		asset.ID,
		asset.AlbumID,
		asset.EventID,
		asset.UploaderID,
		string(asset.MediaType),
		asset.MimeType,
		asset.ObjectKey,
		asset.SizeBytes,
	).Scan(&asset.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyRegistered, asset.ObjectKey)
		}
		return fmt.Errorf("failed to create media asset: %w", err)
	}

	return nil
}

func (r *MediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MediaAsset, error) {
	query := `
        SELECT id, album_id, event_id, uploader_id, media_type, mime_type, object_key, size_bytes, created_at
        FROM media_assets
        WHERE id = $1`

	var asset domain.MediaAsset
	if err := r.db.GetContext(ctx, &asset, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMediaNotFound
		}
		return nil, fmt.Errorf("failed to get media asset: %w", err)
	}

	return &asset, nil
}

// KeyRegistered reports whether an asset already owns objectKey.
func (r *MediaRepository) KeyRegistered(ctx context.Context, objectKey string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM media_assets WHERE object_key = $1)`
	if err := r.db.GetContext(ctx, &exists, query, objectKey); err != nil {
		return false, fmt.Errorf("failed to look up object key: %w", err)
	}
	return exists, nil
}

func (r *MediaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete media asset: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrMediaNotFound
	}

	return nil
}
