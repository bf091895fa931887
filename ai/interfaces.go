package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// TableContext describes where a table came from. Summarizers may use it
// to ground the summary; all fields are optional.
type TableContext struct {
	CompanyKey   string
	DocumentType string
	Section      string
}

// TableSummarizer condenses the raw text of a table into a few sentences.
// Implementations must be thread-safe for concurrent use.
type TableSummarizer interface {
	// SummarizeTable returns a short prose summary of tableText.
	// Returns an error if the summarization call fails; callers handle retries.
	SummarizeTable(ctx context.Context, tableText string, tc TableContext) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Summarizer returns the table summarization service.
	Summarizer() TableSummarizer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
