// Package config loads the YAML config file shared by imagestream
// commands.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${VAR} and ${VAR:-default}. A bare $VAR is left alone.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment references in input. A variable that
// is unset or empty takes its default, or the empty string without one.
func ExpandEnv(input string) string {
	matches := envRef.FindAllStringSubmatchIndex(input, -1)
	if matches == nil {
		return input
	}
	var b strings.Builder
	b.Grow(len(input))
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		v := os.Getenv(input[m[2]:m[3]])
		if v == "" && m[4] >= 0 {
			v = input[m[4]:m[5]]
		}
		b.WriteString(v)
		last = m[1]
	}
	b.WriteString(input[last:])
	return b.String()
}
