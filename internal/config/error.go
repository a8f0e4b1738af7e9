package config

import (
	"fmt"
	"strings"
)

// ConfigError collects everything wrong with a loaded config file so
// the user sees one report instead of fixing problems one at a time.
type ConfigError struct {
	Path    string   // config file path
	Missing []string // unresolved environment variables
	Errors  []string // validation errors
}

func (e *ConfigError) Error() string {
	if !e.HasErrors() {
		return ""
	}

	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing environment variables: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Errors) > 0 {
		parts = append(parts, "validation failed:")
		for _, msg := range e.Errors {
			parts = append(parts, fmt.Sprintf("  - %s", msg))
		}
	}
	return strings.Join(parts, "\n")
}

// HasErrors reports whether the error carries anything actionable.
func (e *ConfigError) HasErrors() bool {
	return len(e.Missing) > 0 || len(e.Errors) > 0
}
