// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package retry runs operations against external services with bounded
// exponential backoff and per-attempt timeouts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts (must be > 0).
	MaxAttempts int
	// BaseDelay is the delay after the first failure; it doubles on each retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff delay. Zero means no cap.
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt. Zero means no per-attempt timeout.
	// An attempt that times out is retried like any other failure.
	AttemptTimeout time.Duration
	// Wait, when set, runs before every attempt on the caller's context,
	// outside AttemptTimeout. Typically a rate limiter. Its error ends Do
	// wrapped in ErrWaitFailed and does not count as an attempt.
	Wait func(ctx context.Context) error
}

// DefaultPolicy is three attempts starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

// delay returns the backoff before attempt+1: BaseDelay * 2^(attempt-1).
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Do retries operation with exponential backoff.
// Returns the error from the last attempt if all attempts fail, the
// wrapped error of a Permanent failure, or ctx.Err() once ctx is done.
func (p Policy) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		// Check context before attempting
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.Wait != nil {
			if err := p.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %w", ErrWaitFailed, err)
			}
		}

		lastErr = p.attempt(ctx, operation)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if IsPermanent(lastErr) {
			var perm *permanentError
			errors.As(lastErr, &perm)
			return perm.err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", p.MaxAttempts, "error", lastErr)

		// Don't sleep after the last attempt
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func (p Policy) attempt(ctx context.Context, operation func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return operation(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return operation(attemptCtx)
}
