package breaker

import (
	"fmt"
	"time"

	"github.com/stokry/vectra/errcode"
)

// OpenCircuitError is returned while the circuit is open and no fallback was given.
// It matches errcode.ErrOpenCircuit through errors.Is.
type OpenCircuitError struct {
	Name         string
	FailureCount int
	OpenedAt     time.Time
}

func (e *OpenCircuitError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open (failures=%d, opened_at=%s)",
		e.Name, e.FailureCount, e.OpenedAt.Format(time.RFC3339Nano))
}

// Kind implements the errcode kind lookup
func (e *OpenCircuitError) Kind() errcode.Kind {
	return errcode.KindOpenCircuit
}

// Is matches errcode.ErrOpenCircuit
func (e *OpenCircuitError) Is(target error) bool {
	return target == errcode.ErrOpenCircuit
}
