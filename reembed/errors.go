package reembed

import "errors"

var (
	// ErrInvalidConfig is returned when the configuration is out of range
	ErrInvalidConfig = errors.New("invalid reembed config")

	// ErrEmbeddingMismatch is returned when the embedder returns a different number of vectors than texts
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")
)
