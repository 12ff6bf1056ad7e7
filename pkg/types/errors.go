package types

import "errors"

var (
	ErrInvalidFilename  = errors.New("filename must be a single path element, 1-255 characters")
	ErrEmptyFiledata    = errors.New("filedata cannot be empty")
	ErrInvalidProgress  = errors.New("progress must be between 0 and 100")
	ErrInvalidRole      = errors.New("invalid connection role")
	ErrInvalidSessionID = errors.New("session ID cannot be empty")
	ErrInvalidSubject   = errors.New("subject must be 1-200 characters")
	ErrInvalidExamCode  = errors.New("exam code must be 6 uppercase alphanumeric characters")
	ErrInvalidStatus    = errors.New("invalid session status")
	ErrInvalidUsername  = errors.New("username must be 1-50 characters, alphanumeric + underscore/hyphen")
)
