package validate

import "errors"

var (
	// ErrInvalidConfig is returned when the chunk limits are out of range
	ErrInvalidConfig = errors.New("invalid validation config")

	// ErrIssuesFound is returned by Report.Err when any issue was recorded
	ErrIssuesFound = errors.New("validation issues found")
)
