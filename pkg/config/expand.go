package config

import (
	"log/slog"
	"os"
	"regexp"
)

// envRef matches ${NAME} where NAME is a shell-style identifier. A literal
// dollar not followed by a brace, and brace contents that are not
// identifiers, pass through untouched so regex patterns in trigger files
// survive expansion.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv substitutes ${NAME} references with environment values. An
// unresolved reference is replaced by the empty string and logged; missing
// required values surface later during validation.
func ExpandEnv(data []byte, log *slog.Logger) []byte {
	return envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envRef.FindSubmatch(ref)[1])
		value, ok := os.LookupEnv(name)
		if !ok {
			log.Warn("unresolved environment reference in config", "name", name)
			return nil
		}
		return []byte(value)
	})
}
