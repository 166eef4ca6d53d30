package types

import "errors"

var (
	ErrInvalidID       = errors.New("identifier must be a positive integer")
	ErrInvalidPriority = errors.New("priority must be one of high, medium, low")
)
