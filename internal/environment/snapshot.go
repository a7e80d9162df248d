// Package environment captures the process environment once so that
// configuration is resolved from an explicit value instead of ad hoc lookups.
package environment

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// Snapshot is an immutable copy of environment variables
type Snapshot struct {
	vars map[string]string
}

// FromOS snapshots the current process environment
func FromOS() Snapshot {
	return FromPairs(os.Environ())
}

// FromPairs builds a snapshot from KEY=VALUE entries; later entries win
func FromPairs(pairs []string) Snapshot {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = value
	}
	return Snapshot{vars: vars}
}

// FromMap copies m into a snapshot
func FromMap(m map[string]string) Snapshot {
	vars := make(map[string]string, len(m))
	for k, v := range m {
		vars[k] = v
	}
	return Snapshot{vars: vars}
}

// Load reads dotenv files into a snapshot; later files override earlier ones
func Load(files ...string) (Snapshot, error) {
	vars := make(map[string]string)
	for _, file := range files {
		env, err := godotenv.Read(file)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to read env file %s: %w", file, err)
		}
		for k, v := range env {
			vars[k] = v
		}
	}
	return Snapshot{vars: vars}, nil
}

// Merge returns a new snapshot with other's values layered over s
func (s Snapshot) Merge(other Snapshot) Snapshot {
	vars := make(map[string]string, len(s.vars)+len(other.vars))
	for k, v := range s.vars {
		vars[k] = v
	}
	for k, v := range other.vars {
		vars[k] = v
	}
	return Snapshot{vars: vars}
}

// With returns a copy of s with key set to value
func (s Snapshot) With(key, value string) Snapshot {
	return s.Merge(Snapshot{vars: map[string]string{key: value}})
}

func (s Snapshot) Lookup(key string) (string, bool) {
	v, ok := s.vars[key]
	return v, ok
}

func (s Snapshot) Len() int {
	return len(s.vars)
}

// Pairs returns the snapshot as sorted KEY=VALUE entries, the form exec expects
func (s Snapshot) Pairs() []string {
	pairs := make([]string, 0, len(s.vars))
	for k, v := range s.vars {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}
