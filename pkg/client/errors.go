package client

import "errors"

var (
	// ErrNotConnected is returned by actions that require a live socket.
	ErrNotConnected = errors.New("client is not connected")

	// ErrClientClosed is returned after Close; a closed client never redials.
	ErrClientClosed = errors.New("client is closed")

	// ErrEmptyFile is returned when an upload is attempted with no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrReceiptTimeout marks a transfer whose receipt never arrived.
	ErrReceiptTimeout = errors.New("timed out waiting for upload receipt")

	// ErrUploadInFlight is returned when a transfer for the same filename is
	// already awaiting its receipt.
	ErrUploadInFlight = errors.New("upload already in flight for this filename")

	// ErrNoToken is returned by Authenticate when no token has been set.
	ErrNoToken = errors.New("no authentication token set")
)
