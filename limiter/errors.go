package limiter

import (
	"fmt"
	"time"

	"github.com/stokry/vectra/errcode"
)

// RateLimitError is returned when no token could be obtained.
// It matches errcode.ErrRateLimitExceeded through errors.Is.
type RateLimitError struct {
	Name     string
	WaitTime time.Duration // time until the next token would be available
	Cause    error         // context error when the wait was cancelled
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("rate limit exceeded for %q, retry after %s", e.Name, e.WaitTime)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Kind implements the errcode kind lookup
func (e *RateLimitError) Kind() errcode.Kind {
	return errcode.KindRateLimit
}

// Is matches errcode.ErrRateLimitExceeded
func (e *RateLimitError) Is(target error) bool {
	return target == errcode.ErrRateLimitExceeded
}

func (e *RateLimitError) Unwrap() error {
	return e.Cause
}
