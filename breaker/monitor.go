package breaker

import (
	"context"
	"errors"

	"github.com/stokry/vectra/errcode"
)

// MonitorFunc decides whether an error counts as a breaker failure
type MonitorFunc func(err error) bool

// DefaultMonitoredKinds are counted by DefaultMonitor, together with errors carrying no kind
var DefaultMonitoredKinds = []errcode.Kind{
	errcode.KindConnection,
	errcode.KindTimeout,
	errcode.KindServer,
}

// DefaultMonitor counts infrastructure failures and unclassified errors.
// Caller cancellation is never counted.
func DefaultMonitor(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	kind := errcode.KindOf(err)
	if kind == errcode.KindUnknown {
		return true
	}
	for _, k := range DefaultMonitoredKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// MonitorKinds counts only errors of the given kinds; include errcode.KindUnknown
// to also count unclassified errors
func MonitorKinds(kinds ...errcode.Kind) MonitorFunc {
	set := make(map[errcode.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(err error) bool {
		if err == nil {
			return false
		}
		_, ok := set[errcode.KindOf(err)]
		return ok
	}
}
