package rendezvous

import (
	"net/url"
	"regexp"
	"strings"
)

// RoomIDLength is the length of every room code.
const RoomIDLength = 7

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{7}$`)

// ValidRoomID reports whether id is a well-formed room code.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// ExtractRoomID accepts a share link carrying ?room=<code> or a bare code.
func ExtractRoomID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidRoomID
	}

	if ValidRoomID(ref) {
		return ref, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", ErrInvalidRoomID
	}
	id := u.Query().Get("room")
	if !ValidRoomID(id) {
		return "", ErrInvalidRoomID
	}
	return id, nil
}
