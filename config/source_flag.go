package config

import (
	"github.com/spf13/pflag"
)

// FlagSource exposes explicitly set command line flags as configuration keys
type FlagSource struct {
	flags    *pflag.FlagSet
	mapping  map[string]string // flag name -> config key
	priority int
}

// NewFlagSource maps flag names to keys; unmapped flags use their own name with '-' kept
func NewFlagSource(flags *pflag.FlagSet, mapping map[string]string, priority int) *FlagSource {
	if mapping == nil {
		mapping = map[string]string{}
	}
	return &FlagSource{flags: flags, mapping: mapping, priority: priority}
}

// Name implements ConfigSource
func (s *FlagSource) Name() string {
	return "flags"
}

// Priority implements ConfigSource
func (s *FlagSource) Priority() int {
	return s.priority
}

// Load returns only flags changed on the command line, so defaults never override files
func (s *FlagSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.flags == nil {
		return result, nil
	}

	s.flags.Visit(func(f *pflag.Flag) {
		key, ok := s.mapping[f.Name]
		if !ok {
			key = f.Name
		}
		result[key] = f.Value.String()
	})
	return result, nil
}
