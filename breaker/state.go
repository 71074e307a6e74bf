package breaker

// State circuit breaker state
type State int

const (
	// StateClosed calls pass through, failures are counted
	StateClosed State = iota

	// StateOpen calls fail fast or use the fallback
	StateOpen

	// StateHalfOpen probing after the recovery timeout
	StateHalfOpen
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// IsOpen is the circuit open
func (s State) IsOpen() bool {
	return s == StateOpen
}

// IsClosed is the circuit closed
func (s State) IsClosed() bool {
	return s == StateClosed
}

// IsHalfOpen is the circuit probing
func (s State) IsHalfOpen() bool {
	return s == StateHalfOpen
}
