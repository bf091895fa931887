package ingestion

import "errors"

var (
	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrStateTrackerRequired is returned when a state tracker is not provided.
	ErrStateTrackerRequired = errors.New("state tracker required")

	// ErrCoverageTrackerRequired is returned when a coverage tracker is not provided.
	ErrCoverageTrackerRequired = errors.New("coverage tracker required")

	// ErrCoordinatorRequired is returned when a store coordinator is not provided.
	ErrCoordinatorRequired = errors.New("store coordinator required")

	// ErrEmbeddingMismatch is returned when the embedder returns a different
	// number of vectors than texts.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")

	// ErrDocumentTimeout is reported when a document exceeds its time budget.
	ErrDocumentTimeout = errors.New("document timeout")
)
