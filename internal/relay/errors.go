package relay

import "errors"

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")

	ErrNilConnection = errors.New("connection cannot be nil")

	ErrHubNotRunning     = errors.New("hub is not running")
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrChannelFull       = errors.New("hub channel full")
)
