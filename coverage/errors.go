package coverage

import "errors"

var (
	// ErrEmptyCompanyKey is returned when a chunk batch has no company.
	ErrEmptyCompanyKey = errors.New("coverage: company key cannot be empty")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("coverage: invalid config")
)
