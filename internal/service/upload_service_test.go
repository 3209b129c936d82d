package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"albumshare/internal/domain"
)

func TestReserve_QuotaExceeded(t *testing.T) {
	h := newHarness()
	h.store.setUsage("alice", 256*mib, 250*mib)

	_, err := h.uploads.Reserve(context.Background(), "alice", domain.ReserveUploadRequest{
		AlbumID:  "album-1",
		FileName: "big.jpg",
		FileSize: 10 * mib,
		MimeType: "image/jpeg",
	})

	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	var qe *domain.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 6*mib, qe.Remaining)
	assert.Equal(t, 10*mib, qe.Requested)
	assert.Empty(t, h.storage.presigned, "no credential may be issued")
	assert.Equal(t, 250*mib, h.store.used("alice"))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Reservations.WithLabelValues("image", "quota_exceeded")))
}

func TestReserve_Success(t *testing.T) {
	h := newHarness()
	h.store.setUsage("alice", 256*mib, 250*mib)

	resp, err := h.uploads.Reserve(context.Background(), "alice", domain.ReserveUploadRequest{
		AlbumID:  "album-1",
		EventID:  "wedding",
		FileName: "IMG_0001.JPEG",
		FileSize: 5 * mib,
		MimeType: "image/jpeg",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.MediaTypeImage, resp.MediaType)
	assert.True(t, strings.HasPrefix(resp.ObjectKey, "albums/album-1/events/wedding/"))
	assert.True(t, strings.HasSuffix(resp.ObjectKey, ".jpeg"))
	require.NotNil(t, resp.Credential)
	assert.Equal(t, "PUT", resp.Credential.Method)
	assert.Equal(t, []string{"image/jpeg"}, resp.Credential.Headers["Content-Type"])
	assert.Equal(t, 250*mib, h.store.used("alice"), "reservation never charges")
}

func TestReserve_NoEventUsesPlaceholder(t *testing.T) {
	h := newHarness()

	resp, err := h.uploads.Reserve(context.Background(), "alice", domain.ReserveUploadRequest{
		AlbumID:  "album-1",
		FileName: "clip",
		FileSize: mib,
		MimeType: "video/mp4",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.ObjectKey, "albums/album-1/events/_/"))
	assert.True(t, strings.HasSuffix(resp.ObjectKey, ".mp4"))
	assert.Equal(t, domain.MediaTypeVideo, resp.MediaType)
}

func TestReserve_CapEnforcedRegardlessOfQuota(t *testing.T) {
	h := newHarness()
	h.store.setUsage("alice", 10<<30, 0)

	tests := []struct {
		name string
		mime string
		size int64
	}{
		{"image over cap", "image/png", 20*mib + 1},
		{"video over cap", "video/quicktime", 200*mib + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.uploads.Reserve(context.Background(), "alice", domain.ReserveUploadRequest{
				AlbumID:  "album-1",
				FileName: "f",
				FileSize: tt.size,
				MimeType: tt.mime,
			})
			assert.ErrorIs(t, err, domain.ErrFileTooLarge)
		})
	}
}

func TestReserve_Validation(t *testing.T) {
	h := newHarness()

	tests := []struct {
		name    string
		userID  string
		req     domain.ReserveUploadRequest
		wantErr error
	}{
		{
			name:    "missing album",
			userID:  "alice",
			req:     domain.ReserveUploadRequest{FileName: "a.jpg", FileSize: 1, MimeType: "image/jpeg"},
			wantErr: domain.ErrBadRequest,
		},
		{
			name:    "zero size",
			userID:  "alice",
			req:     domain.ReserveUploadRequest{AlbumID: "album-1", FileName: "a.jpg", MimeType: "image/jpeg"},
			wantErr: domain.ErrBadRequest,
		},
		{
			name:    "unsupported mime",
			userID:  "alice",
			req:     domain.ReserveUploadRequest{AlbumID: "album-1", FileName: "a.pdf", FileSize: 1, MimeType: "application/pdf"},
			wantErr: domain.ErrInvalidFileType,
		},
		{
			name:    "traversal in album id",
			userID:  "alice",
			req:     domain.ReserveUploadRequest{AlbumID: "../album-2", FileName: "a.jpg", FileSize: 1, MimeType: "image/jpeg"},
			wantErr: domain.ErrBadRequest,
		},
		{
			name:    "not a member",
			userID:  "carol",
			req:     domain.ReserveUploadRequest{AlbumID: "album-1", FileName: "a.jpg", FileSize: 1, MimeType: "image/jpeg"},
			wantErr: domain.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.uploads.Reserve(context.Background(), tt.userID, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, h.storage.presigned)
}

func TestReserve_MembershipLookupFailure(t *testing.T) {
	h := newHarness()
	h.uploads.members = fakeMembers{err: errDown}

	_, err := h.uploads.Reserve(context.Background(), "alice", domain.ReserveUploadRequest{
		AlbumID:  "album-1",
		FileName: "a.jpg",
		FileSize: 1,
		MimeType: "image/jpeg",
	})
	require.ErrorIs(t, err, errDown)
	assert.Equal(t, "error", resultLabel(err))
}

func TestReserveAvatar(t *testing.T) {
	h := newHarness()
	h.store.setUsage("alice", 256*mib, 256*mib)

	resp, err := h.uploads.ReserveAvatar(context.Background(), "alice", domain.ReserveAvatarRequest{
		FileName: "me.png",
		FileSize: mib,
		MimeType: "image/png",
	})
	require.NoError(t, err, "avatars ignore the ledger")
	assert.True(t, strings.HasPrefix(resp.ObjectKey, "avatars/alice/"))
	assert.True(t, strings.HasSuffix(resp.ObjectKey, ".png"))

	_, err = h.uploads.ReserveAvatar(context.Background(), "alice", domain.ReserveAvatarRequest{
		FileName: "me.mp4",
		FileSize: mib,
		MimeType: "video/mp4",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidFileType)

	_, err = h.uploads.ReserveAvatar(context.Background(), "alice", domain.ReserveAvatarRequest{
		FileName: "me.png",
		FileSize: 21 * mib,
		MimeType: "image/png",
	})
	assert.ErrorIs(t, err, domain.ErrFileTooLarge)

	resp, err = h.uploads.ReserveAvatar(context.Background(), "user@example.com", domain.ReserveAvatarRequest{
		FileName: "me.png",
		FileSize: mib,
		MimeType: "image/png",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.ObjectKey, "avatars/~dXNlckBleGFtcGxlLmNvbQ/"))
}
