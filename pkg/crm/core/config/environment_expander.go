package config

import (
	"os"
	"regexp"
)

// EnvironmentExpander expands environment variable placeholders in raw configuration bytes.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// placeholderPattern matches ${VAR} and ${VAR:-default}. A bare $VAR is left untouched
// so that literal dollar signs survive in YAML values.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// OsEnvironmentExpander resolves placeholders from the process environment.
type OsEnvironmentExpander struct {
	lookup func(string) (string, bool)
}

// NewOsEnvironmentExpander creates an expander backed by os.LookupEnv.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{lookup: os.LookupEnv}
}

// Expand replaces every placeholder with the variable's value, falling back to the
// inline default, or to an empty string when neither exists.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return placeholderPattern.ReplaceAllFunc(input, func(match []byte) []byte {
		groups := placeholderPattern.FindSubmatch(match)
		if value, ok := e.lookup(string(groups[1])); ok && value != "" {
			return []byte(value)
		}
		return groups[2]
	}), nil
}
