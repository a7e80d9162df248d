package environment

import (
	"strings"

	"github.com/railwayapp/stevedore/internal/environment/types"
)

const redacted = "[redacted]"

// Redact masks the values of NAME=value pairs that look like credentials
func Redact(pairs []string) []string {
	out := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if _, sensitive := types.ClassifyEnvVar(name, value); ok && sensitive && value != "" {
			pair = name + "=" + redacted
		}
		out = append(out, pair)
	}
	return out
}
