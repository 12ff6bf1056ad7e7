package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub already running")
	ErrHubNotRunning     = errors.New("hub not running")
	ErrEventChannelFull  = errors.New("event channel full")
	ErrRateLimited       = errors.New("rate limit exceeded")
)
