package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPartialFailure means some chunks were not written to every store.
// The document stays below STORED and is retried as a whole.
var ErrPartialFailure = errors.New("partial store failure")

// PartialFailureError lists the chunks that could not be persisted.
type PartialFailureError struct {
	SourceID       string
	FailedChunkIDs []string
	Err            error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %s: %d chunk(s) failed [%s]: %v",
		ErrPartialFailure, e.SourceID, len(e.FailedChunkIDs), strings.Join(e.FailedChunkIDs, ", "), e.Err)
}

func (e *PartialFailureError) Unwrap() []error {
	return []error{ErrPartialFailure, e.Err}
}
