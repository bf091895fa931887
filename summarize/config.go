package summarize

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config controls retries, timeouts and summary sizes.
type Config struct {
	// MaxAttempts is the number of summarizer calls per table before falling back.
	MaxAttempts int `validate:"gte=1,lte=10"`
	// BaseDelay is the backoff after the first failed call; it doubles per retry.
	BaseDelay time.Duration `validate:"gte=0"`
	// CallTimeout bounds a single summarizer call.
	CallTimeout time.Duration `validate:"gt=0"`
	// FallbackChars is how much flattened table text a fallback summary keeps.
	FallbackChars int `validate:"gte=1"`
	// MaxSummaryChars truncates overly long summaries.
	MaxSummaryChars int `validate:"gte=1"`
	// Concurrency bounds the in-flight calls for one document.
	Concurrency int `validate:"gte=1"`
}

// DefaultConfig returns the adapter defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		BaseDelay:       500 * time.Millisecond,
		CallTimeout:     30 * time.Second,
		FallbackChars:   200,
		MaxSummaryChars: 600,
		Concurrency:     4,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("summarize config: %w", err)
	}
	return nil
}
