package errcode

import (
	"fmt"
	"sort"
	"sync"
)

// Registry indexes error definitions by code, so a code read off the wire
// resolves back to its definition. Two definitions never share a code.
type Registry struct {
	mu     sync.RWMutex
	byCode map[int]*LayeredError
	sealed bool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byCode: make(map[int]*LayeredError)}
}

// Default holds every definition declared with Register
var Default = NewRegistry()

// Register adds err to Default; meant for package-level var blocks
func Register(err *LayeredError) *LayeredError {
	return Default.Register(err)
}

// Lookup resolves a code in Default
func Lookup(code int) (*LayeredError, bool) {
	return Default.Lookup(code)
}

// Register adds the definition and returns it unchanged.
// It panics when the code belongs to another module:msgKey or the registry is sealed.
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := err.Code()
	if r.sealed {
		panic(fmt.Sprintf("errcode: registry sealed, cannot register %d", code))
	}
	if existing, ok := r.byCode[code]; ok {
		if identity(existing) != identity(err) {
			panic(fmt.Sprintf("errcode: code %d already registered as %s, cannot register as %s",
				code, identity(existing), identity(err)))
		}
		return err
	}
	r.byCode[code] = err
	return err
}

func identity(e *LayeredError) string {
	return e.Module() + ":" + e.MsgKey()
}

// Lookup returns the definition registered for code
func (r *Registry) Lookup(code int) (*LayeredError, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byCode[code]
	return e, ok
}

// Seal rejects further registrations; call it once all packages are initialized
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Codes returns the registered codes in ascending order
func (r *Registry) Codes() []int {
	r.mu.RLock()
	codes := make([]int, 0, len(r.byCode))
	for code := range r.byCode {
		codes = append(codes, code)
	}
	r.mu.RUnlock()
	sort.Ints(codes)
	return codes
}

// Count returns the number of registered codes
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}
