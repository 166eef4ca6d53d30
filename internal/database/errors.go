package database

import "errors"

var (
	ErrWriteTimeout      = errors.New("write operation timeout")
	ErrInvalidSenderType = errors.New("sender type must be user or admin")
)
