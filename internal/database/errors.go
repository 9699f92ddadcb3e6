package database

import "errors"

var (
	ErrStoreClosed  = errors.New("envelope store is closed")
	ErrWriteTimeout = errors.New("write operation timed out")
)
