package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/stokry/vectra/errcode"
)

// Classifier decides whether a failed attempt is retried
type Classifier interface {
	// ShouldRetry is called with the error of attempt (starting at 1)
	ShouldRetry(err error, attempt int) bool
}

// ClassifierFunc adapts a function to Classifier
type ClassifierFunc func(err error, attempt int) bool

// ShouldRetry implements Classifier
func (f ClassifierFunc) ShouldRetry(err error, attempt int) bool {
	return err != nil && f(err, attempt)
}

// transientPatterns are matched case-insensitively against error messages
var transientPatterns = []string{"timeout", "connection", "temporary"}

// IsRetryable is the default classification. Validation, authentication and
// not-found errors never retry; transient kinds, deadline errors, network
// timeouts and messages containing a transient pattern do.
func IsRetryable(err error) bool {
	if err == nil || errcode.IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errcode.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// DefaultClassifier classifies with IsRetryable
func DefaultClassifier() Classifier {
	return ClassifierFunc(func(err error, _ int) bool { return IsRetryable(err) })
}

// Always retries every error
func Always() Classifier {
	return ClassifierFunc(func(error, int) bool { return true })
}

// Never disables retries
func Never() Classifier {
	return ClassifierFunc(func(error, int) bool { return false })
}

// OnErrors retries errors matching any target with errors.Is
func OnErrors(targets ...error) Classifier {
	return ClassifierFunc(func(err error, _ int) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	})
}

// OnKinds retries errors whose errcode kind is one of kinds
func OnKinds(kinds ...errcode.Kind) Classifier {
	return ClassifierFunc(func(err error, _ int) bool {
		k := errcode.KindOf(err)
		for _, kind := range kinds {
			if k == kind {
				return true
			}
		}
		return false
	})
}

// OnFunc retries when fn returns true
func OnFunc(fn func(error) bool) Classifier {
	return ClassifierFunc(func(err error, _ int) bool { return fn(err) })
}

// And retries only when every classifier agrees
func And(classifiers ...Classifier) Classifier {
	return ClassifierFunc(func(err error, attempt int) bool {
		for _, c := range classifiers {
			if !c.ShouldRetry(err, attempt) {
				return false
			}
		}
		return true
	})
}

// Or retries when any classifier agrees
func Or(classifiers ...Classifier) Classifier {
	return ClassifierFunc(func(err error, attempt int) bool {
		for _, c := range classifiers {
			if c.ShouldRetry(err, attempt) {
				return true
			}
		}
		return false
	})
}

// Not negates a classifier
func Not(c Classifier) Classifier {
	return ClassifierFunc(func(err error, attempt int) bool {
		return !c.ShouldRetry(err, attempt)
	})
}
