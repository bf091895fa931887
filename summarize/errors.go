package summarize

import "errors"

var (
	// ErrNilSummarizer is returned when the adapter is built without a summarizer.
	ErrNilSummarizer = errors.New("summarizer cannot be nil")

	// ErrEmptySummary marks a summarizer response that held no text.
	// It is retried like any other failed call.
	ErrEmptySummary = errors.New("summarizer returned an empty summary")

	// ErrRateLimited means the rate limiter could not grant a call before
	// the document's deadline.
	ErrRateLimited = errors.New("rate limit wait exceeds deadline")
)
