package domain

import "errors"

const MaxRoomNameLen = 36

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
)

type RoomName string

// ParseRoomName validates a client-supplied room name.
func ParseRoomName(raw string) (RoomName, error) {
	if len(raw) == 0 {
		return "", ErrRoomNameEmpty
	}
	if len(raw) > MaxRoomNameLen {
		return "", ErrRoomNameTooLong
	}
	return RoomName(raw), nil
}
