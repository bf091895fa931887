package coverage

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config bounds the rolling window of a company's coverage.
// A zero field disables that bound; entries are pruned when either bound
// excludes them.
type Config struct {
	// WindowRuns keeps the contributions of the latest N ingestion runs.
	WindowRuns int `validate:"gte=0"`
	// WindowAge drops contributions recorded longer ago than this.
	WindowAge time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a 20-run, 90-day window.
func DefaultConfig() Config {
	return Config{
		WindowRuns: 20,
		WindowAge:  90 * 24 * time.Hour,
	}
}

// Validate checks the window bounds.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
