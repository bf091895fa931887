package state

import "errors"

var (
	// ErrAlreadyStored means the document is STORED with the same content.
	ErrAlreadyStored = errors.New("document already stored")

	// ErrNotStored means the document is no longer STORED with the
	// expected content.
	ErrNotStored = errors.New("document not stored with expected content")

	// ErrClaimed means another worker holds a live lease on the document.
	ErrClaimed = errors.New("document claimed by another worker")

	// ErrExhausted means the document failed MaxAttempts times. Permanent.
	ErrExhausted = errors.New("document failed too many times")

	// ErrLeaseLost means the caller's lease was taken over by another worker.
	ErrLeaseLost = errors.New("lease lost")

	// ErrInvalidTransition means a stage change skipped or repeated a stage.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("state: invalid config")
)
