package chunker

import "errors"

var (
	// ErrInvalidConfig is returned when the token limits are inconsistent.
	ErrInvalidConfig = errors.New("invalid chunker config")
)
