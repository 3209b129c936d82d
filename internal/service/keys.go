package service

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"albumshare/internal/domain"
)

// noEvent stands in for the event segment of uploads that belong to no event.
const noEvent = "_"

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func validSegment(s string) bool {
	return s != noEvent && segmentPattern.MatchString(s)
}

// albumPrefix is the namespace every upload for albumID/eventID lives under.
func albumPrefix(albumID, eventID string) (string, error) {
	if !validSegment(albumID) {
		return "", fmt.Errorf("%w: invalid albumId", domain.ErrBadRequest)
	}
	if eventID == "" {
		eventID = noEvent
	} else if !validSegment(eventID) {
		return "", fmt.Errorf("%w: invalid eventId", domain.ErrBadRequest)
	}
	return "albums/" + albumID + "/events/" + eventID + "/", nil
}

// albumObjectKey builds albums/{albumId}/events/{eventId}/{uuid}.{ext}.
func albumObjectKey(albumID, eventID string, id uuid.UUID, ext string) (string, error) {
	prefix, err := albumPrefix(albumID, eventID)
	if err != nil {
		return "", err
	}
	return prefix + id.String() + "." + ext, nil
}

// maxUserIDLen bounds the identity-provider subject embedded in avatar keys.
const maxUserIDLen = 256

// avatarObjectKey builds avatars/{userId}/{uuid}.{ext}.
func avatarObjectKey(userID string, id uuid.UUID, ext string) (string, error) {
	if userID == "" || len(userID) > maxUserIDLen {
		return "", fmt.Errorf("%w: invalid user id", domain.ErrBadRequest)
	}
	return "avatars/" + userSegment(userID) + "/" + id.String() + "." + ext, nil
}

// userSegment keeps path-safe subjects readable and encodes the rest
// (emails, "auth0|123"). The "~" marker is outside the safe alphabet, so
// the two forms never collide.
func userSegment(userID string) string {
	if validSegment(userID) {
		return userID
	}
	return "~" + base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// keyInAlbum reports whether key is a direct child of the album/event prefix.
func keyInAlbum(key, albumID, eventID string) (bool, error) {
	prefix, err := albumPrefix(albumID, eventID)
	if err != nil {
		return false, err
	}
	name, ok := strings.CutPrefix(key, prefix)
	return ok && name != "" && !strings.Contains(name, "/"), nil
}
