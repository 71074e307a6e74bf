package config

import (
	"os"
	"strings"
)

// EnvSeparator separates nesting levels in environment variable names.
// VECTRA_BREAKER__FAILURE_THRESHOLD -> breaker.failure_threshold
const EnvSeparator = "__"

// EnvSource reads prefixed environment variables
type EnvSource struct {
	prefix   string
	priority int
	bindings map[string]string // config key -> env var
	environ  func() []string
}

// NewEnvSource creates an environment source for prefix (e.g. "VECTRA")
func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{
		prefix:   prefix,
		priority: priority,
		bindings: make(map[string]string),
		environ:  os.Environ,
	}
}

// AddBinding maps an explicit variable to a key, e.g. ("backend.dsn", "DATABASE_URL")
func (s *EnvSource) AddBinding(key, envKey string) {
	s.bindings[key] = envKey
}

// Name implements ConfigSource
func (s *EnvSource) Name() string {
	return "env:" + s.prefix
}

// Priority implements ConfigSource
func (s *EnvSource) Priority() int {
	return s.priority
}

// Load scans prefixed variables, then applies explicit bindings on top
func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})

	if s.prefix != "" {
		prefix := s.prefix + "_"
		for _, env := range s.environ() {
			key, value, ok := strings.Cut(env, "=")
			if !ok || !strings.HasPrefix(key, prefix) {
				continue
			}
			configKey := strings.ToLower(strings.TrimPrefix(key, prefix))
			configKey = strings.ReplaceAll(configKey, strings.ToLower(EnvSeparator), ".")
			if configKey != "" {
				result[configKey] = value
			}
		}
	}

	for key, envKey := range s.bindings {
		if value, ok := os.LookupEnv(envKey); ok && value != "" {
			result[key] = value
		}
	}

	return result, nil
}
