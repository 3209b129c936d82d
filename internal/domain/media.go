package domain

import (
	"time"

	"github.com/google/uuid"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MediaAsset is a registered object billed to its uploader.
// SizeBytes always comes from the object store, never from the client.
type MediaAsset struct {
	ID         uuid.UUID `json:"id" db:"id"`
	AlbumID    string    `json:"albumId" db:"album_id"`
	EventID    *string   `json:"eventId,omitempty" db:"event_id"`
	UploaderID string    `json:"uploaderId" db:"uploader_id"`
	MediaType  MediaType `json:"mediaType" db:"media_type"`
	MimeType   string    `json:"mimeType" db:"mime_type"`
	ObjectKey  string    `json:"objectKey" db:"object_key"`
	SizeBytes  int64     `json:"sizeBytes" db:"size_bytes"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// UploadCredential is a time-boxed presigned request. It is never persisted.
type UploadCredential struct {
	URL       string              `json:"url"`
	Method    string              `json:"method"`
	Headers   map[string][]string `json:"headers,omitempty"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

// ObjectInfo is what the object store reports about a stored key.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

type ReserveUploadRequest struct {
	AlbumID  string `json:"albumId"`
	EventID  string `json:"eventId"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type ReserveUploadResponse struct {
	Credential *UploadCredential `json:"credential"`
	ObjectKey  string            `json:"objectKey"`
	MediaType  MediaType         `json:"mediaType"`
}

type ReserveAvatarRequest struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type CompleteUploadRequest struct {
	AlbumID   string    `json:"albumId"`
	EventID   string    `json:"eventId"`
	ObjectKey string    `json:"objectKey"`
	MediaType MediaType `json:"mediaType"`
	MimeType  string    `json:"mimeType"`
}

type DownloadURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
