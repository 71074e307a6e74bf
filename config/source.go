package config

// ConfigSource is implemented by every configuration source
type ConfigSource interface {
	// Name identifies the source in errors and logs
	Name() string

	// Priority orders sources; higher values win.
	// Suggested: defaults 1, file 10, env file 20, environment 50, flags 100
	Priority() int

	// Load returns a flat map with dot-separated keys such as "breaker.failure_threshold"
	Load() (map[string]interface{}, error)
}

// MapSource serves an in-memory map (defaults, tests)
type MapSource struct {
	name     string
	priority int
	data     map[string]interface{}
}

// NewMapSource flattens data and serves it at priority
func NewMapSource(name string, data map[string]interface{}, priority int) *MapSource {
	return &MapSource{name: name, priority: priority, data: flattenMap("", data)}
}

// Name implements ConfigSource
func (s *MapSource) Name() string {
	return "map:" + s.name
}

// Priority implements ConfigSource
func (s *MapSource) Priority() int {
	return s.priority
}

// Load implements ConfigSource
func (s *MapSource) Load() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}
