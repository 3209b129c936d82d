// storage.go
package s3

import (
	"context"

	"albumshare/internal/domain"
)

// Storage is the object-store surface the ingestion protocol depends on.
// Clients upload and download directly with the presigned requests it issues.
type Storage interface {
	PresignUpload(ctx context.Context, key, contentType string) (*domain.UploadCredential, error)
	PresignDownload(ctx context.Context, key string) (*domain.DownloadURL, error)
	// StatObject returns domain.ErrObjectNotFound when nothing is stored at key.
	StatObject(ctx context.Context, key string) (*domain.ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error
}

var _ Storage = (*Client)(nil)
