package chat

import "errors"

var (
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrUnknownConnection   = errors.New("connection not registered")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrMessageTooLong      = errors.New("message exceeds max length")
	ErrNotAMember          = errors.New("not a member of this room")
)
