package interfaces

import "errors"

// Common errors shared across component boundaries.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrFileNotFound    = errors.New("file not found")
	ErrAdminNotFound   = errors.New("admin not found")
	ErrAdminExists     = errors.New("admin already exists")
	ErrUnauthorized    = errors.New("unauthorized access")
)
