package service

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"albumshare/internal/domain"
)

type mimeSpec struct {
	mediaType domain.MediaType
	// exts lists accepted file extensions; the first is canonical.
	exts []string
}

var allowedMIME = map[string]mimeSpec{
	"image/jpeg":       {domain.MediaTypeImage, []string{"jpg", "jpeg"}},
	"image/png":        {domain.MediaTypeImage, []string{"png"}},
	"image/gif":        {domain.MediaTypeImage, []string{"gif"}},
	"image/webp":       {domain.MediaTypeImage, []string{"webp"}},
	"image/heic":       {domain.MediaTypeImage, []string{"heic"}},
	"image/heif":       {domain.MediaTypeImage, []string{"heif"}},
	"video/mp4":        {domain.MediaTypeVideo, []string{"mp4", "m4v"}},
	"video/quicktime":  {domain.MediaTypeVideo, []string{"mov", "qt"}},
	"video/webm":       {domain.MediaTypeVideo, []string{"webm"}},
	"video/x-matroska": {domain.MediaTypeVideo, []string{"mkv"}},
	"video/3gpp":       {domain.MediaTypeVideo, []string{"3gp"}},
}

// resolveMIME normalizes mimeType and maps it to a media type.
func resolveMIME(mimeType string) (string, mimeSpec, error) {
	base, _, err := mime.ParseMediaType(strings.TrimSpace(mimeType))
	if err != nil {
		return "", mimeSpec{}, fmt.Errorf("%w: %q", domain.ErrInvalidFileType, mimeType)
	}

	spec, ok := allowedMIME[base]
	if !ok {
		return "", mimeSpec{}, fmt.Errorf("%w: %s", domain.ErrInvalidFileType, base)
	}
	return base, spec, nil
}

// extension keeps the file name's extension when it agrees with the MIME
// type and falls back to the canonical one otherwise.
func (s mimeSpec) extension(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	for _, e := range s.exts {
		if e == ext {
			return ext
		}
	}
	return s.exts[0]
}
