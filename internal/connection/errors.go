package connection

import "errors"

var (
	ErrNotConnected = errors.New("not connected")
	ErrConnClosed   = errors.New("connection closed")
	ErrWriteTimeout = errors.New("write timeout")
)
