package domain

import "errors"

var (
	ErrRoomFull           = errors.New("room is full")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotInvited         = errors.New("not invited")
	ErrRoomInactive       = errors.New("room inactive")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomExists         = errors.New("room already exists")
	ErrAlreadyJoined      = errors.New("connection already in a room")
	ErrNotInRoom          = errors.New("not in a room")
	ErrForbidden          = errors.New("permission denied")
	ErrUnknownTarget      = errors.New("unknown target participant")

	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

// Reason maps an admission or control error to the wire reason code that
// clients branch on. Anything unrecognized is reported as a bad request.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, ErrNotInvited):
		return "NOT_INVITED"
	case errors.Is(err, ErrRoomInactive):
		return "ROOM_INACTIVE"
	case errors.Is(err, ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, ErrRoomExists):
		return "ROOM_EXISTS"
	case errors.Is(err, ErrAlreadyJoined):
		return "ALREADY_JOINED"
	case errors.Is(err, ErrNotInRoom):
		return "NOT_IN_ROOM"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrUnknownTarget):
		return "UNKNOWN_TARGET"
	default:
		return "BAD_REQUEST"
	}
}
