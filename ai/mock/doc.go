// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.TableSummarizer,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vectors, err := mockProvider.Embedder().EmbedTexts(ctx, texts)
//
//	// Failure injection
//	summarizer := mock.NewMockSummarizer()
//	summarizer.SummarizeFunc = func(ctx context.Context, text string, tc ai.TableContext) (string, error) {
//	    return "", errors.New("rate limited")
//	}
//
//	// Check call counts
//	count := summarizer.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockSummarizer: Returns a deterministic one-line description of the table
//   - MockProvider: Aggregates mock embedder and summarizer
//
// All mocks are safe for concurrent use.
package mock
