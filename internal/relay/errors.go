package relay

import "errors"

var (
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrUnknownRole         = errors.New("unknown role")
	ErrNotAMember          = errors.New("not a member of room")
	ErrRoomNotEmpty        = errors.New("room not empty")
	ErrRoomNotFound        = errors.New("room not found")
	ErrInvalidLocation     = errors.New("invalid location")
)
