package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest        = errors.New("bad request")
	ErrInvalidFileType   = errors.New("invalid file type")
	ErrFileTooLarge      = errors.New("file size exceeds maximum allowed size")
	ErrForbidden         = errors.New("not a member of the album")
	ErrQuotaExceeded     = errors.New("storage quota exceeded")
	ErrObjectNotFound    = errors.New("object not found")
	ErrAlreadyRegistered = errors.New("object already registered")
	ErrMediaNotFound     = errors.New("media not found")
	ErrNotAllowed        = errors.New("not allowed")
)

// QuotaExceededError carries the shortfall so callers can explain it.
type QuotaExceededError struct {
	Requested int64
	Remaining int64
	Quota     int64
	Used      int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: requested %d bytes, %d bytes remaining", ErrQuotaExceeded, e.Requested, e.Remaining)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
