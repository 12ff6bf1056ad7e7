package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timed out")
	ErrInvalidRole      = errors.New("invalid role")
)
